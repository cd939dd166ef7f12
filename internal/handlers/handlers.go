package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/devanchen/needix-mvp/internal/config"
	"github.com/devanchen/needix-mvp/internal/db"
	"github.com/devanchen/needix-mvp/internal/ingest"
	"github.com/go-chi/chi/v5"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db     *db.DB
	cfg    *config.Config
	ingest *ingest.Service
}

// New creates a new Handlers instance
func New(database *db.DB, cfg *config.Config, ingestSvc *ingest.Service) *Handlers {
	return &Handlers{
		db:     database,
		cfg:    cfg,
		ingest: ingestSvc,
	}
}

// Routes mounts the JSON API
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/subscriptions", h.ListSubscriptions)
		r.Post("/subscriptions", h.CreateSubscription)
		r.Get("/subscriptions/summary", h.SubscriptionSummary)
		r.Get("/subscriptions/{id}", h.GetSubscription)
		r.Patch("/subscriptions/{id}", h.PatchSubscription)
		r.Delete("/subscriptions/{id}", h.DeleteSubscription)

		r.Post("/detections/ingest", h.StartIngest)
		r.Get("/detections/ingest/status", h.IngestStatus)
		r.Get("/detections/pending", h.PendingDetections)
		r.Post("/detections/{id}/accept", h.AcceptDetection)
		r.Post("/detections/{id}/dismiss", h.DismissDetection)

		r.Get("/reminders/upcoming", h.UpcomingReminders)
	})
}

// Health reports service liveness
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseDate accepts RFC 3339 timestamps and bare dates
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// startOfToday is the past-date cutoff for next_date validation
func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
