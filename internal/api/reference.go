package api

import "net/http"

// listCountries serves the reference-data cache's full country table (C3).
func (h *handlers) listCountries(w http.ResponseWriter, r *http.Request) {
	ok(w, h.state.RefData.Countries())
}

// listLanguages serves the reference-data cache's full language table (C3).
func (h *handlers) listLanguages(w http.ResponseWriter, r *http.Request) {
	ok(w, h.state.RefData.Languages())
}
