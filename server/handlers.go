package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/channel-tender/archive"
	"github.com/onnwee/channel-tender/lifecycle"
)

// Reconciler runs passes, reports the last one and clears overrides between passes.
// *lifecycle.Driver implements it.
type Reconciler interface {
	Run(ctx context.Context, reason string) (lifecycle.PassResult, error)
	LastResult() (lifecycle.PassResult, bool)
	ClearOverride(ctx context.Context, channelID uint64) bool
}

// Deps are the collaborators the handlers read from.
type Deps struct {
	Reconciler Reconciler
	// Store is read-only here; mutations go through Reconciler.
	Store *archive.Store
	// SessionReady reports whether the Discord gateway session is up.
	SessionReady func() bool
	// DB is set only for the postgres override backend; readiness pings it.
	DB *sql.DB
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
	// ctx bounds passes started from HTTP so they outlive the request but not the process.
	ctx context.Context
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	if deps.SessionReady == nil {
		deps.SessionReady = func() bool { return true }
	}
	return &Handlers{deps: deps, ctx: ctx}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", slog.Any("err", err), slog.String("component", "http"))
	}
}
