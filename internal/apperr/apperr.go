// Package apperr defines the error taxonomy shared by every core component.
// Components wrap the failures they surface to callers into an *Error
// carrying a Kind, a stable numeric Code, and an HTTP status, so the HTTP
// layer (internal/api) can translate them into the X-Error-* header set
// without knowing anything about the component that produced them. Not
// every error is wrapped: some components (geoip, searchindex, refdata)
// return plain errors, which the HTTP layer reports as internal errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap/zapcore"
)

// Kind is one of the six error categories named by the error handling design.
type Kind int

const (
	// KindUnavailable: DB pool acquisition failed, downstream service timed
	// out. Retryable by the caller.
	KindUnavailable Kind = iota
	// KindQueryFailure: DB execution error not otherwise classified.
	KindQueryFailure
	// KindValidation: invalid input shape (email, username, password, IP,
	// MIME type, oversized payload).
	KindValidation
	// KindAuthorization: no session, expired session, insufficient role.
	KindAuthorization
	// KindMissingResource: post, country, wasm module, ip range, i18n
	// bundle absent.
	KindMissingResource
	// KindInternal: image decoding, index corruption, filesystem I/O.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindQueryFailure:
		return "query_failure"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindMissingResource:
		return "missing_resource"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// httpStatus maps each Kind to the default status code named in §7.
// Individual call sites may override via WithStatus (e.g. unique-violation
// under KindQueryFailure surfaces as 409, not the kind's default 500).
func (k Kind) httpStatus() int {
	switch k {
	case KindUnavailable:
		return http.StatusInternalServerError
	case KindQueryFailure:
		return http.StatusInternalServerError
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindMissingResource:
		return http.StatusNotFound
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) logLevel() zapcore.Level {
	switch k {
	case KindValidation, KindAuthorization, KindMissingResource:
		return zapcore.InfoLevel
	case KindUnavailable:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Error is the typed error every core component returns. It carries enough
// information for internal/api to write the full X-Error-* header set
// without re-inspecting the error's origin.
type Error struct {
	Kind    Kind
	Code    int    // stable numeric error_code, unique per call site
	Message string // human-readable, safe to show to the client
	Detail  string // diagnostic detail, for X-Error-Detail only — never in the JSON body
	status  int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code this error should surface as.
func (e *Error) Status() int {
	if e.status != 0 {
		return e.status
	}
	return e.Kind.httpStatus()
}

// LogLevel returns the zap level this error should be logged at.
func (e *Error) LogLevel() zapcore.Level { return e.Kind.logLevel() }

// New constructs an *Error of the given kind with a stable numeric code.
func New(kind Kind, code int, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap constructs an *Error that preserves the original error via errors.Unwrap.
func Wrap(kind Kind, code int, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// WithStatus overrides the default HTTP status for this Kind (e.g. a
// unique-violation under KindQueryFailure surfaces as 409 instead of 500).
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.status = status
	return &cp
}

// WithDetail attaches a diagnostic detail string, exposed only via the
// X-Error-Detail header, never in the JSON response body.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// As is a thin convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var target *Error
	ok := errors.As(err, &target)
	return target, ok
}

// Sentinel errors recognized by multiple components. Wrap these with
// apperr.Wrap at the package boundary rather than returning them bare.
var (
	ErrNotFound   = errors.New("apperr: not found")
	ErrConflict   = errors.New("apperr: conflict")
	ErrStale      = errors.New("apperr: stale")
	ErrBuildBusy  = errors.New("apperr: build already in progress")
)
