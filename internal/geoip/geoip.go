// Package geoip implements the Geo-IP Database (component C1): an
// immutable, in-memory range table loaded once at process start from a
// zstd-compressed, embedded binary blob and queried by IPv4/IPv6 address
// for the rest of the process lifetime.
package geoip

import (
	"bytes"
	"embed"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// blob is the compressed, sorted range table embedded into the binary.
// Produced out-of-band from the ISO country centroid data set; the format
// is a flat stream of fixed-width records (see recordSize) rather than a
// self-describing encoding — see DESIGN.md for why.
//
//go:embed geoip.bin.zst
var embeddedBlob embed.FS

var blob = mustReadEmbedded()

func mustReadEmbedded() []byte {
	b, err := embeddedBlob.ReadFile("geoip.bin.zst")
	if err != nil {
		panic(fmt.Sprintf("geoip: embedded blob missing: %v", err))
	}
	return b
}

// recordSize is the on-disk width of one GeoIpEntry: start(4) + end(4) +
// country(2) + lat(8) + lon(8).
const recordSize = 4 + 4 + 2 + 8 + 8

// Location is the result of a successful LookupLocation.
type Location struct {
	CountryCode string
	Lat         float64
	Lon         float64
}

// entry is the in-memory decoded form of one range record.
type entry struct {
	start, end uint32
	country    string
	lat, lon   float64
}

// Database is the read-only, binary-searchable range table. Safe for
// unsynchronized concurrent reads once constructed — it is never mutated
// after Load returns.
type Database struct {
	entries []entry
}

// Load decompresses and decodes the embedded blob. Any failure here is
// fatal to server startup, matching spec.md 4.1's "If decompression or
// decoding fails, server initialization aborts with a fatal error."
func Load() (*Database, error) {
	return decode(blob)
}

// LoadFrom decodes an already-compressed blob read from an arbitrary
// source (used by tests to avoid depending on the embedded fixture).
func LoadFrom(compressed []byte) (*Database, error) {
	return decode(compressed)
}

func decode(compressed []byte) (*Database, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to construct zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to decompress blob: %w", err)
	}
	if len(raw)%recordSize != 0 {
		return nil, fmt.Errorf("geoip: decompressed blob length %d is not a multiple of record size %d", len(raw), recordSize)
	}

	count := len(raw) / recordSize
	entries := make([]entry, 0, count)
	r := bytes.NewReader(raw)
	for i := 0; i < count; i++ {
		var start, end uint32
		var country [2]byte
		var lat, lonBits uint64
		var lon float64

		if err := binary.Read(r, binary.BigEndian, &start); err != nil {
			return nil, fmt.Errorf("geoip: decoding record %d: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &end); err != nil {
			return nil, fmt.Errorf("geoip: decoding record %d: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &country); err != nil {
			return nil, fmt.Errorf("geoip: decoding record %d: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &lat); err != nil {
			return nil, fmt.Errorf("geoip: decoding record %d: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &lonBits); err != nil {
			return nil, fmt.Errorf("geoip: decoding record %d: %w", i, err)
		}
		lon = float64FromBits(lonBits)

		entries = append(entries, entry{
			start:   start,
			end:     end,
			country: string(country[:]),
			lat:     float64FromBits(lat),
			lon:     lon,
		})
	}

	if !sort.SliceIsSorted(entries, func(i, j int) bool { return entries[i].start < entries[j].start }) {
		sort.Slice(entries, func(i, j int) bool { return entries[i].start < entries[j].start })
	}

	return &Database{entries: entries}, nil
}

// LookupLocation returns the range entry containing ip's numeric form, or
// false if ip falls outside every range. Implements spec.md 4.1's
// binary-search algorithm: find the largest start <= numeric(ip), then
// check end >= numeric(ip).
func (d *Database) LookupLocation(ip net.IP) (Location, bool) {
	v4 := ip.To4()
	if v4 == nil {
		// IPv6 is accepted by the contract but this table only carries
		// IPv4 ranges; no match is possible.
		return Location{}, false
	}
	n := binary.BigEndian.Uint32(v4)

	i := sort.Search(len(d.entries), func(i int) bool { return d.entries[i].start > n })
	if i == 0 {
		return Location{}, false
	}
	e := d.entries[i-1]
	if e.end < n {
		return Location{}, false
	}
	return Location{CountryCode: e.country, Lat: e.lat, Lon: e.lon}, true
}

// Len reports the number of loaded range entries.
func (d *Database) Len() int { return len(d.entries) }

func float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}
