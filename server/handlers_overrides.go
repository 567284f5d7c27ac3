package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/channel-tender/telemetry"
)

type overrideView struct {
	ChannelID  uint64    `json:"channel_id,string"`
	ArchivedAt time.Time `json:"archived_at"`
	Position   int       `json:"position"`
}

// HandleOverrides lists the stored overrides in insertion order.
func (h *Handlers) HandleOverrides(w http.ResponseWriter, _ *http.Request) {
	entries := h.deps.Store.Entries()
	out := make([]overrideView, 0, len(entries))
	for i, e := range entries {
		out = append(out, overrideView{ChannelID: e.ChannelID, ArchivedAt: e.Timestamp, Position: i})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "overrides": out})
}

// HandleOverrideDelete clears the override for one channel once any running pass has finished. The
// next pass files the channel by activity alone.
func (h *Handlers) HandleOverrideDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}
	if !h.deps.Reconciler.ClearOverride(r.Context(), id) {
		http.Error(w, "no override for channel", http.StatusNotFound)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("override removed via http",
		slog.Uint64("channel_id", id),
		slog.String("component", "http"))
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus returns the summary of the last finished pass.
func (h *Handlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	res, ok := h.deps.Reconciler.LastResult()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "no_pass_yet", "overrides": h.deps.Store.Len()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "overrides": h.deps.Store.Len(), "last_pass": res})
}

// HandleReconcile queues a manual pass and returns immediately.
func (h *Handlers) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	corr := telemetry.GetCorrelation(r.Context())
	go func() {
		ctx := telemetry.WithCorrelation(h.ctx, corr)
		if _, err := h.deps.Reconciler.Run(ctx, "http"); err != nil {
			telemetry.LoggerWithCorr(ctx).Warn("manual pass failed", slog.Any("err", err), slog.String("component", "http"))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
