package i18n

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/apperr"
	"github.com/cyhdev/backend/internal/db"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := gormDB.AutoMigrate(&db.I18nString{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return gormDB
}

func TestGetBundleFreshness(t *testing.T) {
	gormDB := openTestDB(t)
	user := uuid.New()
	t0 := time.Now().UTC()

	row := db.I18nString{
		Content:      "Hello",
		CreatedBy:    user,
		UpdatedBy:    user,
		CountryCode:  840,
		LanguageCode: 1033,
		ReferenceKey: "greeting.hello",
	}
	row.CreatedAt, row.UpdatedAt = t0, t0
	if err := gormDB.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	cache := New(gormDB)
	if n, err := cache.SyncI18n(context.Background()); err != nil || n != 1 {
		t.Fatalf("SyncI18n: n=%d err=%v", n, err)
	}

	b0, err := cache.GetBundle(840, 1033)
	if err != nil {
		t.Fatalf("GetBundle: %v", err)
	}

	// Update the row to a later updated_at and re-sync; the bundle must
	// rebuild to different bytes.
	t1 := t0.Add(time.Hour)
	if err := gormDB.Model(&db.I18nString{}).Where("id = ?", row.ID).Updates(map[string]any{
		"content":    "Hello there",
		"updated_at": t1,
	}).Error; err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := cache.SyncI18n(context.Background()); err != nil {
		t.Fatalf("SyncI18n: %v", err)
	}

	b1, err := cache.GetBundle(840, 1033)
	if err != nil {
		t.Fatalf("GetBundle after update: %v", err)
	}
	if string(b0) == string(b1) {
		t.Fatalf("expected bundle bytes to change after freshness-breaking update")
	}

	decoded, err := DecodeBundle(b1)
	if err != nil {
		t.Fatalf("DecodeBundle: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Content != "Hello there" {
		t.Fatalf("unexpected decoded bundle: %+v", decoded)
	}
}

func TestGetBundleEmptyMatchReturnsNotFound(t *testing.T) {
	gormDB := openTestDB(t)
	cache := New(gormDB)
	if _, err := cache.SyncI18n(context.Background()); err != nil {
		t.Fatalf("SyncI18n: %v", err)
	}

	_, err := cache.GetBundle(1, 1)
	if err == nil {
		t.Fatalf("expected an error for an empty match set")
	}
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != apperr.KindMissingResource {
		t.Fatalf("expected a MissingResource apperr.Error, got %v", err)
	}
}

func TestGetBundleCachedWhenFresh(t *testing.T) {
	gormDB := openTestDB(t)
	user := uuid.New()
	row := db.I18nString{Content: "x", CreatedBy: user, UpdatedBy: user, CountryCode: 1, LanguageCode: 1, ReferenceKey: "k"}
	gormDB.Create(&row)

	cache := New(gormDB)
	cache.SyncI18n(context.Background())

	b0, err := cache.GetBundle(1, 1)
	if err != nil {
		t.Fatalf("GetBundle: %v", err)
	}
	b1, err := cache.GetBundle(1, 1)
	if err != nil {
		t.Fatalf("GetBundle: %v", err)
	}
	if string(b0) != string(b1) {
		t.Fatalf("expected identical bytes for an unchanged bundle")
	}
}
