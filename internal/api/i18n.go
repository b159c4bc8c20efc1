package api

import (
	"net/http"
	"strconv"

	"github.com/cyhdev/backend/internal/apperr"
)

// i18nBundle serves the gob-encoded string bundle for ?country=&language=
// (C4) directly from cache, building it lazily on first request for that
// (country, language) pair.
func (h *handlers) i18nBundle(w http.ResponseWriter, r *http.Request) {
	country, cerr := strconv.Atoi(r.URL.Query().Get("country"))
	language, lerr := strconv.Atoi(r.URL.Query().Get("language"))
	if cerr != nil || lerr != nil {
		writeError(w, h, apperr.New(apperr.KindValidation, 3001, "country and language must be numeric codes"))
		return
	}

	bundle, err := h.state.I18n.GetBundle(int32(country), int32(language))
	if err != nil {
		writeError(w, h, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bundle)
}
