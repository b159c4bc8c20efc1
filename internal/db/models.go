package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// softDelete extends base with a nullable DeletedAt field for soft deletion.
type softDelete struct {
	base
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// -----------------------------------------------------------------------------
// Users & Auth
// -----------------------------------------------------------------------------

// User is the authoritative account record. Session (in-memory, see
// internal/session) carries a denormalized copy of the fields a handler
// needs on every request so it never has to re-query User.
type User struct {
	base
	Email             string          `gorm:"uniqueIndex;not null"`
	UserName          string          `gorm:"uniqueIndex;not null"`
	PasswordHash      EncryptedString `gorm:"type:text;not null"`
	CountryCode       int32           `gorm:"not null"`
	LanguageCode      int32           `gorm:"not null"`
	IsEmailVerified   bool            `gorm:"not null;default:false"`
	IsSuperuser       bool            `gorm:"not null;default:false"`
	ProfilePictureURL string          `gorm:"default:''"`
}

// EmailVerificationToken is a one-time token mailed to the user on signup.
// Verification and delivery themselves are external collaborators; this
// table only records the outstanding token.
type EmailVerificationToken struct {
	base
	UserID    uuid.UUID `gorm:"type:text;not null;index"`
	Token     string    `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	UsedAt    *time.Time
}

// PasswordResetToken mirrors EmailVerificationToken for the reset-password flow.
type PasswordResetToken struct {
	base
	UserID    uuid.UUID `gorm:"type:text;not null;index"`
	Token     string    `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	UsedAt    *time.Time
}

// -----------------------------------------------------------------------------
// Blog
// -----------------------------------------------------------------------------

// Post is the authoritative row behind Post Metadata Cache (C5) entries and
// Search Index (C6) documents. Tags are resolved through PostTag/Tag rather
// than stored inline, matching the relational authority spec.md names.
type Post struct {
	base
	AuthorID    uuid.UUID `gorm:"type:text;not null;index"`
	Title       string    `gorm:"not null"`
	Subtitle    string    `gorm:"default:''"`
	Content     string    `gorm:"type:text;not null"`
	PreviewText string    `gorm:"default:''"`
	IsPublished bool      `gorm:"not null;default:true"`
	Upvotes     int64     `gorm:"not null;default:0"`
	Downvotes   int64     `gorm:"not null;default:0"`

	// Tags is resolved manually via PostTag/Tag; GORM cannot follow a
	// many-to-many join when the primary key is uuid.UUID without a
	// matching foreign-key type hint, so it is excluded from auto-loading.
	Tags []string `gorm:"-"`
}

// Tag is a deduplicated, lowercase tag string shared across posts.
type Tag struct {
	base
	Name string `gorm:"uniqueIndex;not null"` // always lowercase
}

// PostTag is the join table between Post and Tag.
type PostTag struct {
	PostID uuid.UUID `gorm:"type:text;primaryKey"`
	TagID  uuid.UUID `gorm:"type:text;primaryKey"`
}

// Comment is a threaded reply on a Post. ParentCommentID is nil for
// top-level comments.
type Comment struct {
	base
	PostID          uuid.UUID `gorm:"type:text;not null;index"`
	AuthorID        uuid.UUID `gorm:"type:text;not null;index"`
	ParentCommentID *uuid.UUID `gorm:"type:text;index"`
	Body            string    `gorm:"type:text;not null"`
	Upvotes         int64     `gorm:"not null;default:0"`
	Downvotes       int64     `gorm:"not null;default:0"`
}

// PostVote records one user's up/down vote on a post; unique per (post, user).
type PostVote struct {
	PostID    uuid.UUID `gorm:"type:text;primaryKey"`
	UserID    uuid.UUID `gorm:"type:text;primaryKey"`
	Direction int8      `gorm:"not null"` // +1 or -1
}

// CommentVote mirrors PostVote for comments.
type CommentVote struct {
	CommentID uuid.UUID `gorm:"type:text;primaryKey"`
	UserID    uuid.UUID `gorm:"type:text;primaryKey"`
	Direction int8      `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Photography
// -----------------------------------------------------------------------------

// Photograph references an S3 object (upload/transcode/delete are external
// collaborators; the core only needs the resulting object key and metadata).
type Photograph struct {
	base
	UploaderID  uuid.UUID `gorm:"type:text;not null;index"`
	ObjectKey   string    `gorm:"uniqueIndex;not null"`
	Caption     string    `gorm:"default:''"`
	TakenAt     *time.Time
	LatBits     uint64 `gorm:"not null"` // big-endian f64 bit pattern, see internal/visitorboard
	LonBits     uint64 `gorm:"not null"`
	WidthPixel  int32  `gorm:"default:0"`
	HeightPixel int32  `gorm:"default:0"`
}

// -----------------------------------------------------------------------------
// WASM modules (C7 authoritative row)
// -----------------------------------------------------------------------------

// WasmModule is the authoritative row for WASM Bundle Cache entries. The
// cache itself stores only (bytes, content_type) keyed by ID in memory;
// nothing in the server loads this table into the cache; bundles reach the
// cache through wasmcache.Cache.Put and PutNormalized.
type WasmModule struct {
	base
	Name        string `gorm:"not null"`
	Description string `gorm:"default:''"`
	ContentType string `gorm:"not null"` // "application/wasm" | "text/html; charset=utf-8"
	GzipBytes   []byte `gorm:"type:blob;not null"`
}

// -----------------------------------------------------------------------------
// i18n (C4 authoritative rows)
// -----------------------------------------------------------------------------

// I18nString is one localized string row, field-for-field matching
// spec.md's I18nString shape and the original source's InternationalizationStrings.
type I18nString struct {
	base
	Content               string  `gorm:"type:text;not null"`
	CreatedBy             uuid.UUID `gorm:"type:text;not null;index"`
	UpdatedBy             uuid.UUID `gorm:"type:text;not null;index"`
	LanguageCode          int32   `gorm:"not null;index"`
	CountryCode           int32   `gorm:"not null;index"`
	CountrySubdivisionCode *string `gorm:"index"`
	ReferenceKey          string  `gorm:"not null;index"`
}

// -----------------------------------------------------------------------------
// ISO reference data (C3 authoritative rows)
// -----------------------------------------------------------------------------

// IsoCountry is one row of the ISO-3166 country table.
type IsoCountry struct {
	NumericCode int32  `gorm:"primaryKey"`
	Alpha2      string `gorm:"uniqueIndex;not null"`
	Alpha3      string `gorm:"uniqueIndex;not null"`
	EnglishName string `gorm:"not null"`
}

// TableName matches the singular table name used by the migrations.
func (IsoCountry) TableName() string { return "iso_country" }

// IsoCountrySubdivision is one row of the ISO-3166-2 subdivision table.
type IsoCountrySubdivision struct {
	Code            string `gorm:"primaryKey"` // e.g. "US-CA"
	CountryNumeric  int32  `gorm:"not null;index"`
	Name            string `gorm:"not null"`
	Category        string `gorm:"default:''"` // "state", "province", ...
}

// TableName matches the singular table name used by the migrations.
func (IsoCountrySubdivision) TableName() string { return "iso_country_subdivision" }

// IsoCurrency is one row of the ISO-4217 currency table.
type IsoCurrency struct {
	NumericCode  int32  `gorm:"primaryKey"`
	Alpha3       string `gorm:"uniqueIndex;not null"`
	EnglishName  string `gorm:"not null"`
	MinorUnit    int32  `gorm:"not null;default:2"`
}

// TableName matches the singular table name used by the migrations.
func (IsoCurrency) TableName() string { return "iso_currency" }

// IsoLanguage is one row of the ISO-639 language table.
type IsoLanguage struct {
	NumericCode int32  `gorm:"primaryKey"`
	Alpha2      string `gorm:"index"`
	Alpha3      string `gorm:"uniqueIndex;not null"`
	EnglishName string `gorm:"not null"`
}

// TableName matches the singular table name used by the migrations.
func (IsoLanguage) TableName() string { return "iso_language" }

// -----------------------------------------------------------------------------
// Visitor board (C8 authoritative rows)
// -----------------------------------------------------------------------------

// VisitationDatum is one accumulated (lat, lon) visit count, synced into
// the in-memory visitor board on startup and by the scheduler.
type VisitationDatum struct {
	LatBits uint64 `gorm:"primaryKey"`
	LonBits uint64 `gorm:"primaryKey"`
	Count   uint64 `gorm:"not null;default:0"`
}
