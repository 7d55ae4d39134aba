// backend/src/handlers/health_handler.go
package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/username/tradereview/backend/src/logger"
	"github.com/username/tradereview/backend/src/utils"
)

type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "disabled"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			logger.FromContext(r.Context()).Error("Health check: database ping failed", "error", err)
			status["status"], status["database"] = "degraded", "unreachable"
			utils.SendJSON(w, status, http.StatusServiceUnavailable)
			return
		}
		status["database"] = "ok"
	}
	utils.SendJSON(w, status, http.StatusOK)
}
