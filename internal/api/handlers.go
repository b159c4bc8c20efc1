package api

import (
	"go.uber.org/zap"

	"github.com/cyhdev/backend/internal/apperr"
	"github.com/cyhdev/backend/internal/serverstate"
)

// handlers is the receiver for every route in this package; it closes over
// the ServerState facade so handlers read caches directly rather than going
// through a repository layer, per the facade's own doc comment.
type handlers struct {
	state  *serverstate.ServerState
	logger *zap.Logger
}

func (h *handlers) logAppErr(e *apperr.Error) {
	h.logger.Check(e.LogLevel(), "request failed").Write(
		zap.Int("error_code", e.Code),
		zap.String("error_kind", e.Kind.String()),
		zap.Error(e),
	)
}
