package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/DSMD-D/primor/server/domain"
)

// StateSource は現在のワールドを返します。
type StateSource interface {
	Snapshot() domain.WorldSnapshot
}

// NewStateHandler はブロードキャストの world と同じ形でワールドを返します。
func NewStateHandler(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(src.Snapshot()); err != nil {
			slog.WarnContext(r.Context(), "failed to write state", "err", err)
		}
	}
}

// NewHealthHandler は稼働確認用に現在の tick と接続数を1行で返します。
func NewHealthHandler(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := src.Snapshot()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "ok tick=%d players=%d bots=%d\n", snap.Tick, snap.Players, snap.Bots)
	}
}
