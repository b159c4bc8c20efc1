// Package postcache implements the Post Metadata Cache (component C5): an
// in-memory, write-lock-guarded vector of post summaries (plus tags),
// ordered by post_created_at descending, with paginated access and
// insert/update/delete hooks that mutate the cache only after the
// authoritative DB write has committed.
package postcache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/apperr"
	"github.com/cyhdev/backend/internal/db"
)

// PostInfo is the cached post summary, field-for-field matching spec.md's
// PostInfo shape: summary fields plus lowercase, deduplicated tags.
type PostInfo struct {
	ID          uuid.UUID
	AuthorID    uuid.UUID
	Title       string
	Subtitle    string
	PreviewText string
	IsPublished bool
	Upvotes     int64
	Downvotes   int64
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Cache is the write-lock-guarded post vector. The zero value is not
// usable; use New.
type Cache struct {
	gormD *gorm.DB

	mu    sync.RWMutex
	posts []PostInfo          // ordered by CreatedAt descending
	byID  map[uuid.UUID]int   // index into posts, for O(1) lookup
}

// New constructs an empty Cache. Call SyncPosts before serving reads.
func New(gormDB *gorm.DB) *Cache {
	return &Cache{gormD: gormDB, byID: make(map[uuid.UUID]int)}
}

// SyncPosts bulk-loads every post from the DB (ordered by post_created_at
// desc, joined with tags) and replaces the cache vector under the write lock.
func (c *Cache) SyncPosts(ctx context.Context) error {
	var rows []db.Post
	if err := c.gormD.WithContext(ctx).Order("created_at desc").Find(&rows).Error; err != nil {
		return apperr.Wrap(apperr.KindQueryFailure, 5001, "failed to load posts", err)
	}

	tagsByPost, err := c.loadTags(ctx, rows)
	if err != nil {
		return err
	}

	next := make([]PostInfo, 0, len(rows))
	for _, r := range rows {
		next = append(next, PostInfo{
			ID: r.ID, AuthorID: r.AuthorID, Title: r.Title, Subtitle: r.Subtitle,
			PreviewText: r.PreviewText, IsPublished: r.IsPublished,
			Upvotes: r.Upvotes, Downvotes: r.Downvotes,
			Tags: tagsByPost[r.ID], CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
	}

	byID := make(map[uuid.UUID]int, len(next))
	for i, p := range next {
		byID[p.ID] = i
	}

	c.mu.Lock()
	c.posts = next
	c.byID = byID
	c.mu.Unlock()
	return nil
}

func (c *Cache) loadTags(ctx context.Context, posts []db.Post) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(posts))
	if len(posts) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	var joins []db.PostTag
	if err := c.gormD.WithContext(ctx).Where("post_id IN ?", ids).Find(&joins).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindQueryFailure, 5002, "failed to load post tags", err)
	}
	if len(joins) == 0 {
		return out, nil
	}

	tagIDs := make([]uuid.UUID, 0, len(joins))
	for _, j := range joins {
		tagIDs = append(tagIDs, j.TagID)
	}
	var tags []db.Tag
	if err := c.gormD.WithContext(ctx).Where("id IN ?", tagIDs).Find(&tags).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindQueryFailure, 5003, "failed to load tags", err)
	}
	nameByID := make(map[uuid.UUID]string, len(tags))
	for _, t := range tags {
		nameByID[t.ID] = t.Name
	}
	for _, j := range joins {
		if name, ok := nameByID[j.TagID]; ok {
			out[j.PostID] = append(out[j.PostID], name)
		}
	}
	for id, names := range out {
		out[id] = NormalizeTags(names)
	}
	return out, nil
}

// NormalizeTags lowercases, sorts, and deduplicates a tag list. Both the
// DB-backed sync path (loadTags) and any handler writing directly into the
// cache must run tags through this before InsertPost, so a post's cached
// tag set always matches what a resync from the database would produce.
func NormalizeTags(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.ToLower(t)
	}
	sort.Strings(out)
	return dedupSorted(out)
}

func dedupSorted(sorted []string) []string {
	out := sorted[:0]
	var prev string
	first := true
	for _, s := range sorted {
		if first || s != prev {
			out = append(out, s)
			prev = s
			first = false
		}
	}
	return out
}

// GetPage paginates the cached ordering. page is 1-based. If start >= total
// it returns an empty slice with the correct total_pages, per spec.md's
// "Open Question" resolution: end is clamped with min(end, total) before slicing.
func (c *Cache) GetPage(page, size int) ([]PostInfo, int) {
	if size <= 0 {
		size = 1
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := len(c.posts)
	totalPages := (total + size - 1) / size
	if total == 0 {
		totalPages = 0
	}

	start := (page - 1) * size
	if start < 0 || start >= total {
		return []PostInfo{}, totalPages
	}
	end := start + size
	if end > total {
		end = total
	}

	out := make([]PostInfo, end-start)
	copy(out, c.posts[start:end])
	return out, totalPages
}

// GetForSearch returns the (title, tags) pair used by the search index to
// stay in sync with this cache, or apperr.ErrNotFound if absent.
func (c *Cache) GetForSearch(id uuid.UUID) (title string, tags []string, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byID[id]
	if !ok {
		return "", nil, apperr.Wrap(apperr.KindMissingResource, 5004, "post not found", apperr.ErrNotFound)
	}
	p := c.posts[idx]
	return p.Title, append([]string(nil), p.Tags...), nil
}

// AllIDs returns every post_id currently cached, used by the search index's
// full SyncWithPosts reconciliation.
func (c *Cache) AllIDs() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]uuid.UUID, len(c.posts))
	for i, p := range c.posts {
		out[i] = p.ID
	}
	return out
}

// InsertPost mutates the cache to reflect a post already committed to the
// DB. Callers must commit the DB write first; this call only updates the
// in-memory view.
func (c *Cache) InsertPost(p PostInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[p.ID]; exists {
		c.replaceLocked(p)
		return
	}
	// Maintain CreatedAt-descending order on insert.
	i := sort.Search(len(c.posts), func(i int) bool { return c.posts[i].CreatedAt.Before(p.CreatedAt) })
	c.posts = append(c.posts, PostInfo{})
	copy(c.posts[i+1:], c.posts[i:])
	c.posts[i] = p
	c.reindexLocked()
}

// UpdatePost mutates the cache to reflect a post update already committed
// to the DB.
func (c *Cache) UpdatePost(p PostInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaceLocked(p)
}

func (c *Cache) replaceLocked(p PostInfo) {
	idx, ok := c.byID[p.ID]
	if !ok {
		return
	}
	c.posts[idx] = p
}

// DeletePost mutates the cache to reflect a post deletion already
// committed to the DB.
func (c *Cache) DeletePost(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.byID[id]
	if !ok {
		return
	}
	c.posts = append(c.posts[:idx], c.posts[idx+1:]...)
	c.reindexLocked()
}

func (c *Cache) reindexLocked() {
	c.byID = make(map[uuid.UUID]int, len(c.posts))
	for i, p := range c.posts {
		c.byID[p.ID] = i
	}
}

// Len returns the number of cached posts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.posts)
}
