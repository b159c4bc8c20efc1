package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cyhdev/backend/internal/apperr"
	"github.com/cyhdev/backend/internal/wasmcache"
)

// getWasmBundle serves a normalized bundle's gzip bytes with the right
// Content-Type and Content-Encoding headers (C7). Clients that cannot
// accept gzip are out of scope — bundles are always stored pre-gzipped.
func (h *handlers) getWasmBundle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h, apperr.New(apperr.KindValidation, 7010, "module id must be a UUID"))
		return
	}

	bundle, err := h.state.WasmBundles.Get(id)
	if err != nil {
		writeError(w, h, err)
		return
	}

	w.Header().Set("Content-Type", bundle.ContentType)
	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bundle.GzBytes)
}

// putWasmBundle accepts a raw (possibly already-gzipped) bundle body,
// normalizes it through the HTML/WASM sniffing + gzip pipeline, and caches
// it under the given module id. The body is capped well above any real
// demo bundle's size to bound memory use while decompressing.
func (h *handlers) putWasmBundle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h, apperr.New(apperr.KindValidation, 7012, "module id must be a UUID"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeError(w, h, apperr.Wrap(apperr.KindValidation, 7013, "failed to read request body", err))
		return
	}

	isGzipped := strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip")
	sniff := data
	if isGzipped {
		if raw, err := wasmcache.GzipDecompressLimited(data, 64<<20); err == nil {
			sniff = raw
		}
	}
	isHTML := wasmcache.LooksLikeHTML(sniff)

	if err := h.state.WasmBundles.PutNormalized(id, data, isGzipped, isHTML); err != nil {
		writeError(w, h, err)
		return
	}
	noContent(w)
}
