package postcache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/db"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := gormDB.AutoMigrate(&db.Post{}, &db.Tag{}, &db.PostTag{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return gormDB
}

func seedPost(t *testing.T, gormDB *gorm.DB, title string, createdAt time.Time, tags ...string) db.Post {
	t.Helper()
	author := uuid.New()
	p := db.Post{AuthorID: author, Title: title, Content: "body", IsPublished: true}
	p.CreatedAt, p.UpdatedAt = createdAt, createdAt
	if err := gormDB.Create(&p).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	for _, name := range tags {
		tag := db.Tag{Name: name}
		gormDB.Where(db.Tag{Name: name}).FirstOrCreate(&tag)
		gormDB.Create(&db.PostTag{PostID: p.ID, TagID: tag.ID})
	}
	return p
}

func TestSyncPostsOrderingAndPagination(t *testing.T) {
	gormDB := openTestDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedPost(t, gormDB, "post", base.Add(time.Duration(i)*time.Hour), "rust", "systems")
	}

	cache := New(gormDB)
	if err := cache.SyncPosts(context.Background()); err != nil {
		t.Fatalf("SyncPosts: %v", err)
	}

	page1, totalPages := cache.GetPage(1, 2)
	if totalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", totalPages)
	}
	if len(page1) != 2 {
		t.Fatalf("expected 2 items on page 1, got %d", len(page1))
	}
	// Newest first (post created at base+4h) must be first.
	if !page1[0].CreatedAt.Equal(base.Add(4 * time.Hour)) {
		t.Fatalf("expected descending order by created_at, got %v first", page1[0].CreatedAt)
	}
	if len(page1[0].Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", page1[0].Tags)
	}

	// Page beyond the end must return empty with the correct total_pages.
	empty, totalPages2 := cache.GetPage(10, 2)
	if len(empty) != 0 {
		t.Fatalf("expected an empty page beyond total, got %d items", len(empty))
	}
	if totalPages2 != totalPages {
		t.Fatalf("total_pages should be stable across calls")
	}

	// End index must clamp, not go out of bounds, on the last partial page.
	last, _ := cache.GetPage(3, 2)
	if len(last) != 1 {
		t.Fatalf("expected the last partial page to have 1 item, got %d", len(last))
	}
}

func TestInsertUpdateDeletePost(t *testing.T) {
	gormDB := openTestDB(t)
	cache := New(gormDB)
	if err := cache.SyncPosts(context.Background()); err != nil {
		t.Fatalf("SyncPosts: %v", err)
	}

	p := PostInfo{ID: uuid.New(), Title: "Hello Rust", Tags: []string{"rust"}, CreatedAt: time.Now()}
	cache.InsertPost(p)
	if cache.Len() != 1 {
		t.Fatalf("expected 1 post after insert")
	}
	title, tags, err := cache.GetForSearch(p.ID)
	if err != nil || title != "Hello Rust" || len(tags) != 1 {
		t.Fatalf("GetForSearch mismatch: title=%q tags=%v err=%v", title, tags, err)
	}

	p.Title = "Hello Rust (edited)"
	cache.UpdatePost(p)
	title, _, _ = cache.GetForSearch(p.ID)
	if title != "Hello Rust (edited)" {
		t.Fatalf("expected update to be reflected, got %q", title)
	}

	cache.DeletePost(p.ID)
	if cache.Len() != 0 {
		t.Fatalf("expected 0 posts after delete")
	}
	if _, _, err := cache.GetForSearch(p.ID); err == nil {
		t.Fatalf("expected an error looking up a deleted post")
	}
}
