// Package i18n implements the i18n Cache & Bundle Builder (component C4):
// an in-memory multi-index cache of localized strings plus a lazily-built,
// per-(country, language) compiled bundle with a freshness check against
// the max(updated_at) of the rows it was built from.
//
// The row indices are a direct Go translation of
// _examples/original_source/src/domain/i18n/i18n_cache.rs's I18nCache
// struct: Rust's HashMap secondary indices become Go map[K][]int; Rust's
// BTreeMap ordered indices (created_at, updated_at) become a sorted slice
// searched with sort.Search, since the Go standard library has no ordered
// map.
package i18n

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/apperr"
	"github.com/cyhdev/backend/internal/db"
)

// timeIndexEntry is one bucket of an ordered (BTreeMap-equivalent) index:
// all row indices sharing exactly the same timestamp.
type timeIndexEntry struct {
	at      time.Time
	indices []int
}

// snapshot is the immutable, atomically-swapped row cache.
type snapshot struct {
	rows []db.I18nString

	countryIdx     map[int32][]int
	subdivisionIdx map[string][]int // "" key stands in for a nil subdivision code
	languageIdx    map[int32][]int
	createdByIdx   map[uuid.UUID][]int
	updatedByIdx   map[uuid.UUID][]int
	referenceIdx   map[string][]int

	createdAtIdx []timeIndexEntry // sorted ascending by at
	updatedAtIdx []timeIndexEntry // sorted ascending by at
}

func buildSnapshot(rows []db.I18nString) *snapshot {
	s := &snapshot{
		rows:           rows,
		countryIdx:     make(map[int32][]int),
		subdivisionIdx: make(map[string][]int),
		languageIdx:    make(map[int32][]int),
		createdByIdx:   make(map[uuid.UUID][]int),
		updatedByIdx:   make(map[uuid.UUID][]int),
		referenceIdx:   make(map[string][]int),
	}

	createdAt := make(map[time.Time][]int)
	updatedAt := make(map[time.Time][]int)

	for i, row := range rows {
		s.countryIdx[row.CountryCode] = append(s.countryIdx[row.CountryCode], i)
		s.languageIdx[row.LanguageCode] = append(s.languageIdx[row.LanguageCode], i)
		s.createdByIdx[row.CreatedBy] = append(s.createdByIdx[row.CreatedBy], i)
		s.updatedByIdx[row.UpdatedBy] = append(s.updatedByIdx[row.UpdatedBy], i)
		s.referenceIdx[row.ReferenceKey] = append(s.referenceIdx[row.ReferenceKey], i)

		sub := ""
		if row.CountrySubdivisionCode != nil {
			sub = *row.CountrySubdivisionCode
		}
		s.subdivisionIdx[sub] = append(s.subdivisionIdx[sub], i)

		createdAt[row.CreatedAt] = append(createdAt[row.CreatedAt], i)
		updatedAt[row.UpdatedAt] = append(updatedAt[row.UpdatedAt], i)
	}

	s.createdAtIdx = flattenTimeIndex(createdAt)
	s.updatedAtIdx = flattenTimeIndex(updatedAt)

	return s
}

func flattenTimeIndex(m map[time.Time][]int) []timeIndexEntry {
	out := make([]timeIndexEntry, 0, len(m))
	for t, idxs := range m {
		out = append(out, timeIndexEntry{at: t, indices: idxs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

// RangeUpdatedAt returns rows with updated_at in [start, end], inclusive.
func (s *snapshot) rangeUpdatedAt(start, end time.Time) []int {
	lo := sort.Search(len(s.updatedAtIdx), func(i int) bool { return !s.updatedAtIdx[i].at.Before(start) })
	var out []int
	for i := lo; i < len(s.updatedAtIdx) && !s.updatedAtIdx[i].at.After(end); i++ {
		out = append(out, s.updatedAtIdx[i].indices...)
	}
	return out
}

// latestUpdatedAtForCountryLanguage mirrors the original's
// latest_updated_at_for_country_language: walk the updated_at index from
// the newest entry backward and return the first match for (country,
// language). Returns false if no row matches.
func (s *snapshot) latestUpdatedAtForCountryLanguage(country, language int32) (time.Time, bool) {
	for i := len(s.updatedAtIdx) - 1; i >= 0; i-- {
		entry := s.updatedAtIdx[i]
		for j := len(entry.indices) - 1; j >= 0; j-- {
			row := s.rows[entry.indices[j]]
			if row.CountryCode == country && row.LanguageCode == language {
				return row.UpdatedAt, true
			}
		}
	}
	return time.Time{}, false
}

func (s *snapshot) rowsForCountryLanguage(country, language int32) []db.I18nString {
	var out []db.I18nString
	for _, i := range s.countryIdx[country] {
		row := s.rows[i]
		if row.LanguageCode == language {
			out = append(out, row)
		}
	}
	return out
}

type bundleKey struct {
	country  int32
	language int32
}

type bundleEntry struct {
	builtAt time.Time
	bytes   []byte
}

// Cache holds the row snapshot (rebuilt wholesale by SyncI18n) and the
// bundle cache (built lazily, per spec.md's freshness rule). Per the
// resolved Open Question, the bundle cache uses one coarse lock for the
// whole check-and-maybe-build path rather than per-key locks.
type Cache struct {
	gormD *gorm.DB

	rowsMu sync.RWMutex
	rows   *snapshot

	bundleMu sync.Mutex
	bundles  map[bundleKey]bundleEntry
}

// New constructs an empty Cache. Call SyncI18n before serving GetBundle.
func New(gormDB *gorm.DB) *Cache {
	return &Cache{
		gormD:   gormDB,
		rows:    buildSnapshot(nil),
		bundles: make(map[bundleKey]bundleEntry),
	}
}

// SyncI18n loads the entire i18n_strings table and atomically replaces the
// cache's row vector and all indices.
func (c *Cache) SyncI18n(ctx context.Context) (int, error) {
	var rows []db.I18nString
	if err := c.gormD.WithContext(ctx).Find(&rows).Error; err != nil {
		return 0, apperr.Wrap(apperr.KindQueryFailure, 4001, "failed to load i18n strings", err)
	}

	next := buildSnapshot(rows)

	c.rowsMu.Lock()
	c.rows = next
	c.rowsMu.Unlock()

	return len(rows), nil
}

// GetBundle returns a compact binary encoding of all rows for
// (country_code, language_code), rebuilding it if the cached entry is
// stale (built_at < max(updated_at) over matching rows) or absent. Returns
// apperr.ErrNotFound (wrapped) if no rows match.
func (c *Cache) GetBundle(country, language int32) ([]byte, error) {
	c.bundleMu.Lock()
	defer c.bundleMu.Unlock()

	c.rowsMu.RLock()
	latest, found := c.rows.latestUpdatedAtForCountryLanguage(country, language)
	matching := c.rows.rowsForCountryLanguage(country, language)
	c.rowsMu.RUnlock()

	if !found {
		return nil, apperr.Wrap(apperr.KindMissingResource, 4002, "no i18n bundle for this country/language pair", apperr.ErrNotFound)
	}

	key := bundleKey{country: country, language: language}
	if existing, ok := c.bundles[key]; ok && !existing.builtAt.Before(latest) {
		return existing.bytes, nil
	}

	encoded, err := encodeBundle(matching)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, 4003, "failed to encode i18n bundle", err)
	}

	c.bundles[key] = bundleEntry{builtAt: time.Now().UTC(), bytes: encoded}
	return encoded, nil
}

func encodeBundle(rows []db.I18nString) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rows); err != nil {
		return nil, fmt.Errorf("i18n: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBundle is the inverse of the private encodeBundle, exposed for
// callers (and tests) that need to inspect bundle contents.
func DecodeBundle(data []byte) ([]db.I18nString, error) {
	var rows []db.I18nString
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rows); err != nil {
		return nil, fmt.Errorf("i18n: gob decode: %w", err)
	}
	return rows, nil
}

// ByReference returns all rows sharing the given reference_key, across all
// countries/languages — used by admin/editing surfaces, not by GetBundle.
func (c *Cache) ByReference(key string) []db.I18nString {
	c.rowsMu.RLock()
	defer c.rowsMu.RUnlock()
	var out []db.I18nString
	for _, i := range c.rows.referenceIdx[key] {
		out = append(out, c.rows.rows[i])
	}
	return out
}

// RangeUpdatedAt returns all rows whose updated_at falls within [start, end].
func (c *Cache) RangeUpdatedAt(start, end time.Time) []db.I18nString {
	c.rowsMu.RLock()
	defer c.rowsMu.RUnlock()
	var out []db.I18nString
	for _, i := range c.rows.rangeUpdatedAt(start, end) {
		out = append(out, c.rows.rows[i])
	}
	return out
}
