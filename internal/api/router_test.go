package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/db"
	"github.com/cyhdev/backend/internal/serverstate"
)

func setupTestRouter(t *testing.T) http.Handler {
	t.Helper()

	if err := db.InitEncryption([]byte("01234567890123456789012345678901")); err != nil {
		t.Fatalf("InitEncryption: %v", err)
	}

	gormDB, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&db.Post{}, &db.Tag{}, &db.PostTag{}, &db.User{},
		&db.I18nString{}, &db.IsoCountry{}, &db.IsoCountrySubdivision{}, &db.IsoCurrency{}, &db.IsoLanguage{},
		&db.VisitationDatum{},
	); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	state, err := serverstate.New(context.Background(), serverstate.Options{
		DB:              gormDB,
		Logger:          zap.NewNop(),
		SearchIndexPath: filepath.Join(t.TempDir(), "search_index"),
	})
	if err != nil {
		t.Fatalf("serverstate.New: %v", err)
	}
	t.Cleanup(func() { _ = state.Close() })

	return NewRouter(RouterConfig{State: state, Logger: zap.NewNop()})
}

func TestCreatePostThenSearch(t *testing.T) {
	router := setupTestRouter(t)

	body := `{"author_id":"` + authorUUID + `","title":"Hello Rust","content":"body","tags":["rust","systems"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/blog/posts", jsonBody(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	searchReq := httptest.NewRequest(http.MethodGet, "/api/v1/blog/search?q=rust&search_type=title", nil)
	searchRec := httptest.NewRecorder()
	router.ServeHTTP(searchRec, searchReq)
	if searchRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", searchRec.Code, searchRec.Body.String())
	}

	var payload struct {
		Data struct {
			PostIDs []string `json:"post_ids"`
			Total   uint64   `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(searchRec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Data.Total != 1 || len(payload.Data.PostIDs) != 1 {
		t.Fatalf("expected exactly one match, got %+v", payload.Data)
	}
}

func TestGeoLookupMissingIPWritesErrorHeaders(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/geo/lookup", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec.Header().Get("X-Error-Code") == "" {
		t.Fatalf("expected X-Error-Code header to be set")
	}
	if rec.Header().Get("X-Error-Message") == "" {
		t.Fatalf("expected X-Error-Message header to be set")
	}
}

func TestSessionLifecycleThroughRouter(t *testing.T) {
	router := setupTestRouter(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/", jsonBody(`{"user_name":"tester","user_country":840,"user_language":1033,"is_email_verified":true}`))
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", createRec.Code, createRec.Body.String())
	}

	var created struct {
		Data struct {
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.Data.SessionID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cyhdev_sessions_active") {
		t.Fatalf("expected cyhdev_sessions_active gauge in output, got %s", rec.Body.String())
	}
}

func TestRegisterUserHashesPassword(t *testing.T) {
	router := setupTestRouter(t)

	body := `{"email":"a@example.com","user_name":"tester","password":"correcthorsebattery","country_code":840,"language_code":1033}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/", jsonBody(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	shortBody := `{"email":"b@example.com","user_name":"tester2","password":"short"}`
	shortReq := httptest.NewRequest(http.MethodPost, "/api/v1/users/", jsonBody(shortBody))
	shortRec := httptest.NewRecorder()
	router.ServeHTTP(shortRec, shortReq)
	if shortRec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", shortRec.Code)
	}
}

const authorUUID = "00000000-0000-0000-0000-000000000001"

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
