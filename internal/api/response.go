// Package api implements the HTTP surface over ServerState: a thin Chi
// router exercising the blog, i18n, geo-ip, visitor-board, system-stats
// and wasm-bundle caches. Every handler's failure path funnels through
// writeError, which translates an *apperr.Error into the five X-Error-*
// headers named by the error handling design, stripped entirely from the
// JSON body.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cyhdev/backend/internal/apperr"
)

// envelope is the standard JSON response wrapper. Successful responses
// wrap the payload in a "data" key; errors never reach the body as JSON
// fields — only as the X-Error-* header set.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func ok(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusOK, envelope{"data": payload})
}

func created(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusCreated, envelope{"data": payload})
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeError sets the full X-Error-* header set from an apperr.Error and
// writes an otherwise-empty JSON body. Non-apperr errors are treated as
// KindInternal with a generic message, never leaking their own text.
func writeError(w http.ResponseWriter, logger errLogger, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Wrap(apperr.KindInternal, 0, "an internal error occurred", err)
	}

	h := w.Header()
	h.Set("X-Error-Code", strconv.Itoa(appErr.Code))
	h.Set("X-Error-Status-Code", strconv.Itoa(appErr.Status()))
	h.Set("X-Error-Log-Level", appErr.LogLevel().String())
	h.Set("X-Error-Message", appErr.Message)
	if appErr.Detail != "" {
		h.Set("X-Error-Detail", appErr.Detail)
	}

	logger.logAppErr(appErr)
	writeJSON(w, appErr.Status(), envelope{})
}

// errLogger is the minimal logging capability writeError needs; satisfied
// by *handlers (which close over a *zap.Logger).
type errLogger interface {
	logAppErr(*apperr.Error)
}

// decodeJSON decodes the request body into dst, writing a validation
// error and returning false on failure so callers can early-return.
func decodeJSON(w http.ResponseWriter, logger errLogger, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, logger, apperr.Wrap(apperr.KindValidation, 1000, "invalid request body", err))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
