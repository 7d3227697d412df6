package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goodpapers/goodpapers/internal/models"
	"github.com/goodpapers/goodpapers/internal/storage"
)

// GetUpdates handles GET /api/updates. It returns the activity log, newest
// first, optionally filtered by the "paper_id" query parameter.
func GetUpdates(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var (
			updates []models.Update
			err     error
		)
		if raw := r.URL.Query().Get("paper_id"); raw != "" {
			paperID, parseErr := strconv.ParseInt(raw, 10, 64)
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid paper_id parameter")
				return
			}
			updates, err = store.ListUpdatesForPaper(ctx, paperID)
		} else {
			updates, err = store.ListUpdates(ctx)
		}
		if err != nil {
			slog.Error("failed to list updates", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to get updates")
			return
		}

		if updates == nil {
			updates = []models.Update{}
		}
		writeJSON(w, http.StatusOK, updates)
	}
}

// Health handles GET /api/health. It answers 200 as long as the database is
// reachable.
func Health(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
