// Package wasmcache implements the WASM Bundle Cache (component C7): an
// in-memory, UUID-keyed store of gzip-compressed static bundles (WASM
// binaries or their HTML loader shells), normalized at write time so every
// stored entry is already gzip-compressed and content-type-tagged.
//
// Grounded directly on
// _examples/original_source/src/util/wasm_bundle.rs: the magic-byte
// sniffing rules (looks_like_html, is_wasm_magic), the gzip-at-max-level
// re-compression step, and the decompress-with-a-size-ceiling guard are
// all translated here field-for-field. flate2's GzEncoder/GzDecoder become
// the standard library's compress/gzip — gzip is itself the teacher's own
// wire contract ("gz_bytes"), so there is no third-party gzip replacement
// to reach for.
package wasmcache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyhdev/backend/internal/apperr"
)

const (
	// HTMLContentType and WASMContentType mirror the original's constants.
	HTMLContentType = "text/html; charset=utf-8"
	WASMContentType = "application/wasm"

	// defaultMaxDecompressedSize bounds decompression of an untrusted
	// upload before it is re-validated and re-compressed.
	defaultMaxDecompressedSize = 64 << 20 // 64 MiB
)

// Bundle is a single normalized, gzip-compressed entry.
type Bundle struct {
	ID          uuid.UUID
	GzBytes     []byte
	ContentType string
	UpdatedAt   time.Time
}

// Cache is the in-memory bundle store, keyed by module id.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Bundle
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[uuid.UUID]Bundle)}
}

// LooksLikeHTML reports whether data appears to be an HTML document,
// tolerating a leading UTF-8 BOM and leading whitespace.
func LooksLikeHTML(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	idx := 0
	if len(data) >= 3 && data[0] == 0xef && data[1] == 0xbb && data[2] == 0xbf {
		idx = 3
	}
	for idx < len(data) && isASCIIWhitespace(data[idx]) {
		idx++
	}
	head := data[idx:]
	return hasPrefix(head, "<!DOCTYPE") || hasPrefix(head, "<html") || hasPrefix(head, "<HTML") || hasPrefix(head, "<")
}

func isASCIIWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	default:
		return false
	}
}

func hasPrefix(data []byte, prefix string) bool {
	return len(data) >= len(prefix) && string(data[:len(prefix)]) == prefix
}

// IsWasmMagic reports whether data begins with the WASM binary magic
// number (\0asm).
func IsWasmMagic(data []byte) bool {
	return len(data) >= 4 && data[0] == 0x00 && data[1] == 'a' && data[2] == 's' && data[3] == 'm'
}

// GzipCompressMax gzip-compresses data at the best-compression level.
func GzipCompressMax(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("wasmcache: gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("wasmcache: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("wasmcache: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// GzipDecompressLimited decompresses data, aborting once more than
// maxSize bytes have been produced.
func GzipDecompressLimited(data []byte, maxSize int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("wasmcache: gzip reader: %w", err)
	}
	defer r.Close()

	out := make([]byte, 0, 8192)
	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if len(out)+n > maxSize {
				return nil, fmt.Errorf("wasmcache: decompressed bundle exceeds %d bytes", maxSize)
			}
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wasmcache: gzip read: %w", err)
		}
	}
	return out, nil
}

// NormalizeBundleBytes validates and re-compresses an uploaded bundle.
// isGzipped indicates whether data arrives already gzip-compressed;
// isHTML indicates whether the caller asserts the payload is the HTML
// loader shell rather than the WASM binary itself. The content, once
// decompressed, must match the asserted kind or normalization fails.
func NormalizeBundleBytes(data []byte, isGzipped, isHTML bool, maxDecompressedSize int) (gzBytes []byte, contentType string, err error) {
	if maxDecompressedSize <= 0 {
		maxDecompressedSize = defaultMaxDecompressedSize
	}

	var raw []byte
	if isGzipped {
		raw, err = GzipDecompressLimited(data, maxDecompressedSize)
		if err != nil {
			return nil, "", apperr.Wrap(apperr.KindValidation, 7001, "failed to decompress bundle", err)
		}
	} else {
		if len(data) > maxDecompressedSize {
			return nil, "", apperr.New(apperr.KindValidation, 7002, fmt.Sprintf("bundle exceeds %d bytes", maxDecompressedSize))
		}
		raw = data
	}

	if isHTML {
		if !LooksLikeHTML(raw) {
			return nil, "", apperr.New(apperr.KindValidation, 7003, "bundle marked as HTML but contents do not look like HTML")
		}
	} else if !IsWasmMagic(raw) {
		return nil, "", apperr.New(apperr.KindValidation, 7004, "invalid WASM file (missing magic number)")
	}

	gz, err := GzipCompressMax(raw)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindInternal, 7005, "failed to recompress bundle", err)
	}

	ct := WASMContentType
	if isHTML {
		ct = HTMLContentType
	}
	return gz, ct, nil
}

// SniffContentTypeFromGzipBytes peeks at the first bytes of a
// decompressed gzip stream to recover the content type of an
// already-normalized bundle, without needing a stored flag.
func SniffContentTypeFromGzipBytes(data []byte) (string, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("wasmcache: gzip reader: %w", err)
	}
	defer r.Close()

	buf := make([]byte, 512)
	n, readErr := io.ReadFull(r, buf)
	if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		return "", fmt.Errorf("wasmcache: gzip read: %w", readErr)
	}
	head := buf[:n]

	switch {
	case IsWasmMagic(head):
		return WASMContentType, nil
	case LooksLikeHTML(head):
		return HTMLContentType, nil
	default:
		return "", fmt.Errorf("wasmcache: unable to detect bundle content type")
	}
}

// Put stores a normalized bundle, overwriting any existing entry for id.
func (c *Cache) Put(id uuid.UUID, gzBytes []byte, contentType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = Bundle{ID: id, GzBytes: gzBytes, ContentType: contentType, UpdatedAt: time.Now().UTC()}
}

// PutNormalized validates, re-compresses, and stores data in one call.
func (c *Cache) PutNormalized(id uuid.UUID, data []byte, isGzipped, isHTML bool) error {
	gz, ct, err := NormalizeBundleBytes(data, isGzipped, isHTML, defaultMaxDecompressedSize)
	if err != nil {
		return err
	}
	c.Put(id, gz, ct)
	return nil
}

// Get returns the stored bundle for id, or apperr.ErrNotFound.
func (c *Cache) Get(id uuid.UUID) (Bundle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[id]
	if !ok {
		return Bundle{}, apperr.Wrap(apperr.KindMissingResource, 7006, "wasm bundle not found", apperr.ErrNotFound)
	}
	return b, nil
}

// Delete removes a bundle from the cache. A no-op if absent.
func (c *Cache) Delete(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Len returns the number of cached bundles.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
