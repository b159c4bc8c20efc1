package api

import "net/http"

type recordVisitRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// recordVisit increments the visitor board (C8) at the given coordinate.
// The caller is expected to have already resolved the coordinate from an
// IP via /geo/lookup; this endpoint just records the count.
func (h *handlers) recordVisit(w http.ResponseWriter, r *http.Request) {
	var req recordVisitRequest
	if !decodeJSON(w, h, r, &req) {
		return
	}
	h.state.VisitorBoard.Record(req.Lat, req.Lon)
	noContent(w)
}

// visitorSnapshot serves the full visitor board as (lat, lon, count)
// triples, filtering NaN coordinates per spec.md 4.8.
func (h *handlers) visitorSnapshot(w http.ResponseWriter, r *http.Request) {
	ok(w, h.state.VisitorBoard.Snapshot())
}
