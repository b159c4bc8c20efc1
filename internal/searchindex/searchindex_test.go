package searchindex

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

// fakePostSource is a minimal in-memory PostSource for sync tests.
type fakePostSource struct {
	titles map[uuid.UUID]string
	tags   map[uuid.UUID][]string
	order  []uuid.UUID
}

func newFakePostSource() *fakePostSource {
	return &fakePostSource{titles: map[uuid.UUID]string{}, tags: map[uuid.UUID][]string{}}
}

func (f *fakePostSource) add(title string, tags ...string) uuid.UUID {
	id := uuid.New()
	f.titles[id] = title
	f.tags[id] = tags
	f.order = append(f.order, id)
	return id
}

func (f *fakePostSource) remove(id uuid.UUID) {
	delete(f.titles, id)
	delete(f.tags, id)
	for i, existing := range f.order {
		if existing == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *fakePostSource) GetForSearch(id uuid.UUID) (string, []string, error) {
	return f.titles[id], f.tags[id], nil
}

func (f *fakePostSource) AllIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(f.order))
	copy(out, f.order)
	return out
}

func TestOpenCreatesWhenMissing(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "idx"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	n, err := idx.NumDocs()
	if err != nil || n != 0 {
		t.Fatalf("expected a fresh empty index, got n=%d err=%v", n, err)
	}
}

func TestUpsertSearchDelete(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "idx"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	id := uuid.New()
	if err := idx.Upsert(id, "Rust Systems Programming", []string{"Rust", "Systems"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	res, err := idx.SearchTitle("rust", 0, 10)
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if len(res.PostIDs) != 1 || res.PostIDs[0] != id {
		t.Fatalf("expected exactly one match for %v, got %v", id, res.PostIDs)
	}

	tagRes, err := idx.SearchTag("rust", 0, 10)
	if err != nil {
		t.Fatalf("SearchTag: %v", err)
	}
	if len(tagRes.PostIDs) != 1 || tagRes.PostIDs[0] != id {
		t.Fatalf("expected tag search (case-insensitive) to find %v, got %v", id, tagRes.PostIDs)
	}

	if err := idx.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := idx.NumDocs()
	if err != nil || n != 0 {
		t.Fatalf("expected 0 docs after delete, got n=%d err=%v", n, err)
	}

	afterDelete, err := idx.SearchTitle("rust", 0, 10)
	if err != nil {
		t.Fatalf("SearchTitle after delete: %v", err)
	}
	if len(afterDelete.PostIDs) != 0 {
		t.Fatalf("expected no matches after delete, got %v", afterDelete.PostIDs)
	}
}

func TestSearchTitleAndTagsIntersection(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "idx"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	match := uuid.New()
	other := uuid.New()
	if err := idx.Upsert(match, "Concurrency in Go", []string{"go", "concurrency"}); err != nil {
		t.Fatalf("Upsert match: %v", err)
	}
	if err := idx.Upsert(other, "Concurrency in Go", []string{"go"}); err != nil {
		t.Fatalf("Upsert other: %v", err)
	}

	res, err := idx.SearchTitleAndTags("concurrency", []string{"go", "concurrency"}, 0, 10)
	if err != nil {
		t.Fatalf("SearchTitleAndTags: %v", err)
	}
	if len(res.PostIDs) != 1 || res.PostIDs[0] != match {
		t.Fatalf("expected exactly %v, got %v", match, res.PostIDs)
	}
}

func TestSyncWithPostsReconciles(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "idx"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	source := newFakePostSource()
	a := source.add("Hello World", "intro")
	b := source.add("Goodbye World", "outro")

	added, removed, err := idx.SyncWithPosts(source)
	if err != nil {
		t.Fatalf("SyncWithPosts: %v", err)
	}
	if added != 2 || removed != 0 {
		t.Fatalf("expected 2 added 0 removed, got added=%d removed=%d", added, removed)
	}

	// Simulate a post deletion at the source and a new post appearing.
	source.remove(a)
	c := source.add("A Third Post", "misc")

	added2, removed2, err := idx.SyncWithPosts(source)
	if err != nil {
		t.Fatalf("SyncWithPosts: %v", err)
	}
	if added2 != 1 || removed2 != 1 {
		t.Fatalf("expected 1 added 1 removed, got added=%d removed=%d", added2, removed2)
	}

	ids, err := idx.AllPostIDs()
	if err != nil {
		t.Fatalf("AllPostIDs: %v", err)
	}
	got := map[uuid.UUID]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if got[a] || !got[b] || !got[c] {
		t.Fatalf("reconciliation mismatch: %v", ids)
	}
}
