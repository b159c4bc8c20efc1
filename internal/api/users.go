package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/cyhdev/backend/internal/apperr"
	"github.com/cyhdev/backend/internal/db"
)

type registerUserRequest struct {
	Email        string `json:"email"`
	UserName     string `json:"user_name"`
	Password     string `json:"password"`
	CountryCode  int32  `json:"country_code"`
	LanguageCode int32  `json:"language_code"`
}

type userResponse struct {
	ID       uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	UserName string    `json:"user_name"`
}

// registerUser hashes the submitted password with Argon2id before storing
// it, on top of the AES-256-GCM encryption EncryptedString already applies
// at the column level — two independent layers, neither a substitute for
// the other.
func (h *handlers) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decodeJSON(w, h, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.UserName) == "" {
		writeError(w, h, apperr.New(apperr.KindValidation, 1101, "email and user_name are required"))
		return
	}
	if len(req.Password) < 8 {
		writeError(w, h, apperr.New(apperr.KindValidation, 1102, "password must be at least 8 characters"))
		return
	}

	hash, err := db.HashPassword(req.Password)
	if err != nil {
		writeError(w, h, apperr.Wrap(apperr.KindInternal, 1103, "failed to hash password", err))
		return
	}

	user := db.User{
		Email:        req.Email,
		UserName:     req.UserName,
		PasswordHash: db.EncryptedString(hash),
		CountryCode:  req.CountryCode,
		LanguageCode: req.LanguageCode,
	}
	if err := h.state.DB.Create(&user).Error; err != nil {
		writeError(w, h, apperr.Wrap(apperr.KindQueryFailure, 1104, "failed to create user", err))
		return
	}

	created(w, userResponse{ID: user.ID, Email: user.Email, UserName: user.UserName})
}
