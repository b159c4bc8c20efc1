package api

import (
	"net"
	"net/http"

	"github.com/cyhdev/backend/internal/apperr"
)

// geoLookup resolves ?ip=<ip> against the embedded geo-ip table (C1).
func (h *handlers) geoLookup(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ip")
	ip := net.ParseIP(raw)
	if ip == nil {
		writeError(w, h, apperr.New(apperr.KindValidation, 2001, "ip query parameter is required and must be a valid IP"))
		return
	}

	loc, found := h.state.GeoIP.LookupLocation(ip)
	if !found {
		writeError(w, h, apperr.New(apperr.KindMissingResource, 2002, "no geo-ip range covers this address"))
		return
	}
	ok(w, loc)
}
