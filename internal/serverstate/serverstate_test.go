package serverstate

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	gormsqlite "gorm.io/driver/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/db"
	"github.com/cyhdev/backend/internal/session"
)

func netIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("invalid IP literal %q", s)
	}
	return ip
}

func sessionUser() session.NewUser {
	return session.NewUser{
		UserID:          uuid.New(),
		UserName:        "tester",
		UserCountry:     840,
		UserLanguage:    1033,
		IsEmailVerified: true,
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&db.Post{}, &db.Tag{}, &db.PostTag{},
		&db.I18nString{}, &db.IsoCountry{}, &db.IsoCountrySubdivision{}, &db.IsoCurrency{}, &db.IsoLanguage{},
		&db.VisitationDatum{},
	); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return gormDB
}

func newTestState(t *testing.T) *ServerState {
	t.Helper()
	gormDB := openTestDB(t)
	state, err := New(context.Background(), Options{
		DB:              gormDB,
		Logger:          zap.NewNop(),
		SearchIndexPath: filepath.Join(t.TempDir(), "search_index"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return state
}

// TestPostCreateThenSearch is scenario S1: seeding a post and then
// searching for it by title must find exactly that post.
func TestPostCreateThenSearch(t *testing.T) {
	state := newTestState(t)
	defer state.Close()

	author := uuid.New()
	post := db.Post{AuthorID: author, Title: "Hello Rust", Content: "body", IsPublished: true}
	if err := state.DB.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	tag := db.Tag{Name: "rust"}
	if err := state.DB.Create(&tag).Error; err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if err := state.DB.Create(&db.PostTag{PostID: post.ID, TagID: tag.ID}).Error; err != nil {
		t.Fatalf("create post_tag: %v", err)
	}

	if err := state.Posts.SyncPosts(context.Background()); err != nil {
		t.Fatalf("SyncPosts: %v", err)
	}
	added, _, err := state.SearchIndex.SyncWithPosts(state.Posts)
	if err != nil {
		t.Fatalf("SyncWithPosts: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 post added to the search index, got %d", added)
	}

	res, err := state.SearchIndex.SearchTitle("rust", 0, 10)
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if len(res.PostIDs) != 1 || res.PostIDs[0] != post.ID {
		t.Fatalf("expected exactly post %v, got %v", post.ID, res.PostIDs)
	}
	if res.Total != 1 {
		t.Fatalf("expected total 1, got %d", res.Total)
	}
}

// TestPostDeleteThenSearch is scenario S2: deleting a post and
// reconciling must make it disappear from search, down to num_docs() == 0.
func TestPostDeleteThenSearch(t *testing.T) {
	state := newTestState(t)
	defer state.Close()

	author := uuid.New()
	post := db.Post{AuthorID: author, Title: "Hello Rust", Content: "body", IsPublished: true}
	if err := state.DB.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	if err := state.Posts.SyncPosts(context.Background()); err != nil {
		t.Fatalf("SyncPosts: %v", err)
	}
	if _, _, err := state.SearchIndex.SyncWithPosts(state.Posts); err != nil {
		t.Fatalf("SyncWithPosts: %v", err)
	}

	if err := state.DB.Delete(&post).Error; err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if err := state.Posts.SyncPosts(context.Background()); err != nil {
		t.Fatalf("SyncPosts after delete: %v", err)
	}
	_, removed, err := state.SearchIndex.SyncWithPosts(state.Posts)
	if err != nil {
		t.Fatalf("SyncWithPosts after delete: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 post removed from the search index, got %d", removed)
	}

	res, err := state.SearchIndex.SearchTitle("rust", 0, 10)
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if len(res.PostIDs) != 0 {
		t.Fatalf("expected no matches after delete, got %v", res.PostIDs)
	}
	n, err := state.SearchIndex.NumDocs()
	if err != nil || n != 0 {
		t.Fatalf("expected num_docs 0, got n=%d err=%v", n, err)
	}
}

// TestGeoIPLookupScenario is scenario S6 against the embedded fixture.
func TestGeoIPLookupScenario(t *testing.T) {
	state := newTestState(t)
	defer state.Close()

	loc, ok := state.GeoIP.LookupLocation(netIP(t, "1.0.1.10"))
	if !ok {
		t.Fatalf("expected a match for 1.0.1.10")
	}
	if loc.CountryCode != "US" || loc.Lat != 37.75 || loc.Lon != -97.82 {
		t.Fatalf("unexpected location: %+v", loc)
	}

	if _, ok := state.GeoIP.LookupLocation(netIP(t, "9.9.9.9")); ok {
		t.Fatalf("expected no match for 9.9.9.9")
	}
}

// TestSessionLifecycleThroughState is scenario S3, exercised through the
// facade rather than the session package directly.
func TestSessionLifecycleThroughState(t *testing.T) {
	state := newTestState(t)
	defer state.Close()

	sid, err := state.Sessions.NewSession(sessionUser(), 1*time.Second)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := state.Sessions.GetSession(sid); err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	time.Sleep(1200 * time.Millisecond)

	pruned, _ := state.Sessions.PurgeExpired()
	if pruned < 1 {
		t.Fatalf("expected at least 1 pruned session, got %d", pruned)
	}
	if _, err := state.Sessions.GetSession(sid); err == nil {
		t.Fatalf("expected the expired session to be gone")
	}
}
