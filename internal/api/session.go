package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cyhdev/backend/internal/apperr"
	"github.com/cyhdev/backend/internal/session"
)

type createSessionRequest struct {
	UserID          uuid.UUID `json:"user_id"`
	UserName        string    `json:"user_name"`
	UserCountry     int32     `json:"user_country"`
	UserLanguage    int32     `json:"user_language"`
	IsEmailVerified bool      `json:"is_email_verified"`
	TTLSeconds      int64     `json:"ttl_seconds"`
}

// createSession mints a new in-memory session (C2). Credential
// verification is assumed to have already happened upstream of this
// handler — the session store is purely a post-authentication concern.
func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, h, r, &req) {
		return
	}

	ttl := session.DefaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	id, err := h.state.Sessions.NewSession(session.NewUser{
		UserID:          req.UserID,
		UserName:        req.UserName,
		UserCountry:     req.UserCountry,
		UserLanguage:    req.UserLanguage,
		IsEmailVerified: req.IsEmailVerified,
	}, ttl)
	if err != nil {
		writeError(w, h, apperr.Wrap(apperr.KindInternal, 2101, "failed to create session", err))
		return
	}
	created(w, envelope{"session_id": id})
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h, apperr.New(apperr.KindValidation, 2102, "session id must be a UUID"))
		return
	}
	sess, err := h.state.Sessions.GetSession(id)
	if err != nil {
		writeError(w, h, apperr.Wrap(apperr.KindAuthorization, 2103, "session not found or expired", err))
		return
	}
	ok(w, sess)
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h, apperr.New(apperr.KindValidation, 2104, "session id must be a UUID"))
		return
	}
	if _, _, err := h.state.Sessions.RemoveSession(id); err != nil {
		writeError(w, h, apperr.Wrap(apperr.KindAuthorization, 2105, "session not found", err))
		return
	}
	noContent(w)
}
