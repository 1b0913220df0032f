package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/api"
)

// Pinger reports database reachability. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

// NewHealthHandler returns a health check. A nil db reports ok without
// pinging the database.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			api.Error(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}
