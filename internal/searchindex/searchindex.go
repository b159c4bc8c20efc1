// Package searchindex implements the Search Index (component C6): a
// disk-persisted, bleve-backed inverted index over post titles (full-text)
// and tags (exact-term, lowercased), kept coherent with the Post Metadata
// Cache (C5) via per-write deltas and a periodic full reconciliation.
package searchindex

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
)

// fieldTitle and fieldTags are the indexed field names used throughout this
// package. Per the resolved "hard-coded field identifier" Open Question,
// queries always go through bleve's named-field API (query.SetField) —
// there is no raw segment walk anywhere in this package, so the
// portability concern does not arise here.
const (
	fieldTitle = "title"
	fieldTags  = "tags"
)

// doc is the on-disk document shape indexed for each post.
type doc struct {
	PostID string   `json:"post_id"`
	Title  string   `json:"title"`
	Tags   []string `json:"tags"`
}

// Index is the disk-persisted inverted index handle.
type Index struct {
	path string
	idx  bleve.Index
}

// Open opens the index from disk, creating it (and its parent directory)
// if missing. If opening an existing directory fails (corruption), the
// directory is cleared and recreated empty — the caller is expected to
// follow with SyncWithPosts to repopulate it.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	switch {
	case err == nil:
		return &Index{path: path, idx: idx}, nil
	case err == bleve.ErrorIndexPathDoesNotExist:
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("searchindex: failed to create index at %s: %w", path, err)
		}
		return &Index{path: path, idx: idx}, nil
	default:
		// Corruption or an incompatible on-disk format. Per spec.md 4.6,
		// clear and recreate empty rather than fail startup.
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("searchindex: failed to clear corrupt index at %s: %w", path, rmErr)
		}
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("searchindex: failed to recreate index at %s: %w", path, err)
		}
		return &Index{path: path, idx: idx}, nil
	}
}

func buildMapping() mapping.IndexMapping {
	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = "en"

	tagsField := bleve.NewTextFieldMapping()
	tagsField.Analyzer = keyword.Name // exact-term, not tokenized

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(fieldTitle, titleField)
	docMapping.AddFieldMappingsAt(fieldTags, tagsField)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = docMapping
	return im
}

// Close releases the underlying index handle.
func (idx *Index) Close() error { return idx.idx.Close() }

// Upsert indexes (or re-indexes) a single post. Per spec.md 4.6's delta
// coherence policy this commits to disk immediately.
func (idx *Index) Upsert(postID uuid.UUID, title string, tags []string) error {
	lowered := make([]string, len(tags))
	for i, t := range tags {
		lowered[i] = strings.ToLower(t)
	}
	return idx.idx.Index(postID.String(), doc{PostID: postID.String(), Title: title, Tags: lowered})
}

// Delete removes a single post's document. A no-op if absent.
func (idx *Index) Delete(postID uuid.UUID) error {
	return idx.idx.Delete(postID.String())
}

// NumDocs returns the number of documents currently in the index.
func (idx *Index) NumDocs() (uint64, error) {
	return idx.idx.DocCount()
}

// AllPostIDs returns every post_id currently in the index, used by
// SyncWithPosts to compute the (missing, extra) delta against C5.
func (idx *Index) AllPostIDs() ([]uuid.UUID, error) {
	count, err := idx.idx.DocCount()
	if err != nil {
		return nil, fmt.Errorf("searchindex: DocCount: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{fieldTitle}

	result, err := idx.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searchindex: match-all search: %w", err)
	}

	out := make([]uuid.UUID, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// PostSource supplies (title, tags) for a post_id, satisfied by
// *postcache.Cache in production and a fake in tests.
type PostSource interface {
	GetForSearch(id uuid.UUID) (title string, tags []string, err error)
	AllIDs() []uuid.UUID
}

// SyncWithPosts computes (missing, extra) against the current index and
// the given post source, adds missing documents, removes extra ones, and
// commits if anything changed. Called at startup and by the scheduler's
// daily post and search-index sync job.
func (idx *Index) SyncWithPosts(source PostSource) (added, removed int, err error) {
	indexed, err := idx.AllPostIDs()
	if err != nil {
		return 0, 0, err
	}
	indexedSet := make(map[uuid.UUID]struct{}, len(indexed))
	for _, id := range indexed {
		indexedSet[id] = struct{}{}
	}

	authoritative := source.AllIDs()
	authoritativeSet := make(map[uuid.UUID]struct{}, len(authoritative))
	for _, id := range authoritative {
		authoritativeSet[id] = struct{}{}
	}

	for _, id := range authoritative {
		if _, ok := indexedSet[id]; ok {
			continue
		}
		title, tags, err := source.GetForSearch(id)
		if err != nil {
			continue
		}
		if err := idx.Upsert(id, title, tags); err != nil {
			return added, removed, fmt.Errorf("searchindex: upsert %s during sync: %w", id, err)
		}
		added++
	}

	for _, id := range indexed {
		if _, ok := authoritativeSet[id]; ok {
			continue
		}
		if err := idx.Delete(id); err != nil {
			return added, removed, fmt.Errorf("searchindex: delete %s during sync: %w", id, err)
		}
		removed++
	}

	return added, removed, nil
}

// Result is the paginated, post-id-only result every search operation returns.
type Result struct {
	PostIDs []uuid.UUID
	Total   uint64
}

func (idx *Index) run(q query.Query, offset, limit int) (Result, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequest(q)
	req.From = offset
	req.Size = limit

	sr, err := idx.idx.Search(req)
	if err != nil {
		return Result{}, fmt.Errorf("searchindex: search failed: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(sr.Hits))
	for _, hit := range sr.Hits {
		if id, err := uuid.Parse(hit.ID); err == nil {
			ids = append(ids, id)
		}
	}
	return Result{PostIDs: ids, Total: sr.Total}, nil
}

// titleQuery builds the query for a title search per spec.md 4.6: a
// single-word query is rewritten as a prefix match (phrase-prefix intent —
// "rus" matches "rust", "rusty") since bleve's stock analyzers have no
// dedicated phrase-prefix query type. The wildcard is OR'd with a match
// query on the same word, because the "en" analyzer stems indexed title
// terms ("concurrency" is stored as "concurr") and a raw wildcard alone
// misses whole words the stemmer shortened. Multi-word queries use a
// standard match query over the analyzed title field.
func titleQuery(q string) query.Query {
	words := strings.Fields(q)
	if len(words) == 1 {
		wq := bleve.NewWildcardQuery(strings.ToLower(words[0]) + "*")
		wq.SetField(fieldTitle)
		wordQ := bleve.NewMatchQuery(words[0])
		wordQ.SetField(fieldTitle)
		return bleve.NewDisjunctionQuery(wq, wordQ)
	}
	mq := bleve.NewMatchQuery(q)
	mq.SetField(fieldTitle)
	return mq
}

// SearchTitle searches post titles only.
func (idx *Index) SearchTitle(q string, offset, limit int) (Result, error) {
	return idx.run(titleQuery(q), offset, limit)
}

// SearchTag searches for an exact, lowercased tag.
func (idx *Index) SearchTag(tag string, offset, limit int) (Result, error) {
	tq := bleve.NewTermQuery(strings.ToLower(tag))
	tq.SetField(fieldTags)
	return idx.run(tq, offset, limit)
}

// SearchTags intersects: every listed tag must match (AND semantics).
func (idx *Index) SearchTags(tags []string, offset, limit int) (Result, error) {
	conjuncts := make([]query.Query, 0, len(tags))
	for _, t := range tags {
		tq := bleve.NewTermQuery(strings.ToLower(t))
		tq.SetField(fieldTags)
		conjuncts = append(conjuncts, tq)
	}
	return idx.run(bleve.NewConjunctionQuery(conjuncts...), offset, limit)
}

// SearchTitleAndTags requires both the title query and every listed tag to match.
func (idx *Index) SearchTitleAndTags(q string, tags []string, offset, limit int) (Result, error) {
	conjuncts := []query.Query{titleQuery(q)}
	for _, t := range tags {
		tq := bleve.NewTermQuery(strings.ToLower(t))
		tq.SetField(fieldTags)
		conjuncts = append(conjuncts, tq)
	}
	return idx.run(bleve.NewConjunctionQuery(conjuncts...), offset, limit)
}

// sortedCopy is a small helper kept local to this package for deterministic
// test assertions over returned ID sets.
func sortedCopy(ids []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
