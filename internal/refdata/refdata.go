// Package refdata implements the Reference-Data Cache (component C3): an
// RWMutex-guarded, bulk-swappable snapshot of the ISO country, subdivision,
// language, and currency tables. Reads take a shared lock; a full rebuild
// is built off-lock and installed under a single exclusive swap.
package refdata

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/db"
)

// Country is the cache's joined view of a country and its subdivisions.
type Country struct {
	NumericCode  int32
	Alpha2       string
	Alpha3       string
	EnglishName  string
	Subdivisions []db.IsoCountrySubdivision
}

// tables is the immutable snapshot installed atomically on each swap.
type tables struct {
	countriesByName  []Country // sorted by EnglishName
	byNumeric        map[int32]*Country
	byAlpha2         map[string]*Country
	byAlpha3         map[string]*Country
	languages        []db.IsoLanguage
	currencies       []db.IsoCurrency
	serializedJSON   []byte
}

// Cache is the read-write-locked holder of the current snapshot.
type Cache struct {
	mu    sync.RWMutex
	gormD *gorm.DB
	cur   *tables
}

// New constructs an empty Cache; call SyncCountryData before serving reads.
func New(gormDB *gorm.DB) *Cache {
	return &Cache{gormD: gormDB, cur: &tables{byNumeric: map[int32]*Country{}, byAlpha2: map[string]*Country{}, byAlpha3: map[string]*Country{}}}
}

// SyncCountryData issues the DB reads for countries, subdivisions,
// currencies, and languages, builds new immutable tables off-lock, then
// swaps them in under a single exclusive lock. The swap is atomic: no
// partially-updated state is observable by a concurrent reader.
func (c *Cache) SyncCountryData(ctx context.Context) error {
	var countries []db.IsoCountry
	var subdivisions []db.IsoCountrySubdivision
	var currencies []db.IsoCurrency
	var languages []db.IsoLanguage

	var wg sync.WaitGroup
	errs := make([]error, 4)
	wg.Add(4)
	go func() { defer wg.Done(); errs[0] = c.gormD.WithContext(ctx).Order("english_name").Find(&countries).Error }()
	go func() { defer wg.Done(); errs[1] = c.gormD.WithContext(ctx).Find(&subdivisions).Error }()
	go func() { defer wg.Done(); errs[2] = c.gormD.WithContext(ctx).Find(&currencies).Error }()
	go func() { defer wg.Done(); errs[3] = c.gormD.WithContext(ctx).Find(&languages).Error }()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	next := build(countries, subdivisions, currencies, languages)

	c.mu.Lock()
	c.cur = next
	c.mu.Unlock()
	return nil
}

func build(countries []db.IsoCountry, subdivisions []db.IsoCountrySubdivision, currencies []db.IsoCurrency, languages []db.IsoLanguage) *tables {
	subsByCountry := make(map[int32][]db.IsoCountrySubdivision)
	for _, s := range subdivisions {
		subsByCountry[s.CountryNumeric] = append(subsByCountry[s.CountryNumeric], s)
	}

	list := make([]Country, 0, len(countries))
	for _, row := range countries {
		list = append(list, Country{
			NumericCode:  row.NumericCode,
			Alpha2:       row.Alpha2,
			Alpha3:       row.Alpha3,
			EnglishName:  row.EnglishName,
			Subdivisions: subsByCountry[row.NumericCode],
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].EnglishName < list[j].EnglishName })

	t := &tables{
		countriesByName: list,
		byNumeric:       make(map[int32]*Country, len(list)),
		byAlpha2:        make(map[string]*Country, len(list)),
		byAlpha3:        make(map[string]*Country, len(list)),
		languages:       languages,
		currencies:      currencies,
	}
	for i := range list {
		t.byNumeric[list[i].NumericCode] = &list[i]
		t.byAlpha2[list[i].Alpha2] = &list[i]
		t.byAlpha3[list[i].Alpha3] = &list[i]
	}

	// Precompute a serialized JSON view at swap time for cheap dispatch,
	// matching spec.md 4.3's "A serialized JSON view is precomputed at swap
	// time for cheap dispatch."
	if serialized, err := json.Marshal(struct {
		Countries  []Country           `json:"countries"`
		Languages  []db.IsoLanguage    `json:"languages"`
		Currencies []db.IsoCurrency    `json:"currencies"`
	}{list, languages, currencies}); err == nil {
		t.serializedJSON = serialized
	}

	return t
}

// Countries returns the full, name-sorted country list.
func (c *Cache) Countries() []Country {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Country, len(c.cur.countriesByName))
	copy(out, c.cur.countriesByName)
	return out
}

// CountryByNumeric looks up a country by its ISO-3166 numeric code.
func (c *Cache) CountryByNumeric(code int32) (Country, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctry, ok := c.cur.byNumeric[code]
	if !ok {
		return Country{}, false
	}
	return *ctry, true
}

// CountryByAlpha2 looks up a country by its two-letter code.
func (c *Cache) CountryByAlpha2(code string) (Country, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctry, ok := c.cur.byAlpha2[code]
	if !ok {
		return Country{}, false
	}
	return *ctry, true
}

// CountryByAlpha3 looks up a country by its three-letter code.
func (c *Cache) CountryByAlpha3(code string) (Country, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctry, ok := c.cur.byAlpha3[code]
	if !ok {
		return Country{}, false
	}
	return *ctry, true
}

// Languages returns the full language table.
func (c *Cache) Languages() []db.IsoLanguage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]db.IsoLanguage, len(c.cur.languages))
	copy(out, c.cur.languages)
	return out
}

// Currencies returns the full currency table.
func (c *Cache) Currencies() []db.IsoCurrency {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]db.IsoCurrency, len(c.cur.currencies))
	copy(out, c.cur.currencies)
	return out
}

// SerializedJSON returns the precomputed JSON view built at the last swap.
func (c *Cache) SerializedJSON() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur.serializedJSON
}
