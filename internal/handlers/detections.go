package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/devanchen/needix-mvp/internal/db"
	"github.com/devanchen/needix-mvp/internal/ingest"
	"github.com/devanchen/needix-mvp/internal/receipt"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const pendingDetectionLimit = 100

type detectionResponse struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	MerchantRaw string    `json:"merchantRaw"`
	Amount      *float64  `json:"amount"`
	Currency    string    `json:"currency,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
	Cadence     string    `json:"cadence"`
	Confidence  int       `json:"confidence"`
	Subject     string    `json:"subject"`
}

func detectionToResponse(d *db.Detection) detectionResponse {
	return detectionResponse{
		ID:          d.ID,
		Source:      d.Source,
		MerchantRaw: d.MerchantRaw,
		Amount:      d.Amount,
		Currency:    d.Currency,
		OccurredAt:  d.OccurredAt,
		Cadence:     string(d.Cadence),
		Confidence:  d.Confidence,
		Subject:     d.Subject,
	}
}

type ingestRequest struct {
	MaxMessages int `json:"maxMessages"`
}

// StartIngest kicks off a background mailbox scan. Only one scan runs
// at a time.
func (h *Handlers) StartIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	// the scan outlives the request, so it must not inherit its context
	if err := h.ingest.Start(context.Background(), req.MaxMessages); err != nil {
		if errors.Is(err, ingest.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "An ingest run is already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start ingest")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

// IngestStatus reports progress of the current or most recent scan
func (h *Handlers) IngestStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ingest.Progress())
}

// PendingDetections returns unresolved, undismissed detections
func (h *Handlers) PendingDetections(w http.ResponseWriter, r *http.Request) {
	detections, err := h.db.ListPendingDetections(pendingDetectionLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list detections")
		return
	}

	items := make([]detectionResponse, 0, len(detections))
	for _, d := range detections {
		items = append(items, detectionToResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

type acceptRequest struct {
	Service   *string  `json:"service"`
	Plan      *string  `json:"plan"`
	Price     *float64 `json:"price"`
	NextDate  *string  `json:"nextDate"`
	ManageURL *string  `json:"manageUrl"`
}

// AcceptDetection turns a pending detection into a subscription. Body
// fields override the defaults derived from the detection.
func (h *Handlers) AcceptDetection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detection, err := h.db.GetDetectionByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load detection")
		return
	}
	if detection == nil {
		writeError(w, http.StatusNotFound, "Detection not found")
		return
	}
	if detection.ResolvedToSubscriptionID.Valid {
		writeError(w, http.StatusConflict, "Detection already resolved")
		return
	}

	var req acceptRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	sub := &db.Subscription{
		ID:      uuid.NewString(),
		Service: detection.MerchantRaw,
		Plan:    req.Plan,
		Price:   detection.Amount,
	}
	sub.CreatedFromDetectionID.String = detection.ID
	sub.CreatedFromDetectionID.Valid = true
	if req.Service != nil && *req.Service != "" {
		sub.Service = *req.Service
	}
	if sub.Service == "" {
		sub.Service = "Subscription"
	}
	if req.Price != nil {
		sub.Price = req.Price
	}
	if req.ManageURL != nil {
		sub.ManageURL = req.ManageURL
	}

	if req.NextDate != nil {
		nextDate, err := parseDate(*req.NextDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid nextDate")
			return
		}
		sub.NextDate = db.NullTime{Time: nextDate, Valid: true}
	} else if next, ok := nextRenewal(detection.OccurredAt, detection.Cadence); ok {
		sub.NextDate = db.NullTime{Time: next, Valid: true}
	}

	if err := h.db.InsertSubscription(sub); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create subscription")
		return
	}
	if err := h.db.ResolveDetection(detection.ID, sub.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve detection")
		return
	}

	created, err := h.db.GetSubscriptionByID(sub.ID)
	if err != nil || created == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}
	writeJSON(w, http.StatusCreated, subscriptionToResponse(created))
}

// nextRenewal projects the renewal after occurredAt, pinned to noon UTC
// so date-only display never shifts across timezones.
func nextRenewal(occurredAt time.Time, cadence receipt.Cadence) (time.Time, bool) {
	base := time.Date(
		occurredAt.Year(), occurredAt.Month(), occurredAt.Day(),
		12, 0, 0, 0, time.UTC,
	)
	switch cadence {
	case receipt.CadenceWeekly:
		return base.AddDate(0, 0, 7), true
	case receipt.CadenceMonthly:
		return base.AddDate(0, 1, 0), true
	case receipt.CadenceYearly:
		return base.AddDate(1, 0, 0), true
	}
	return time.Time{}, false
}

// DismissDetection hides a detection from the pending list
func (h *Handlers) DismissDetection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detection, err := h.db.GetDetectionByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load detection")
		return
	}
	if detection == nil {
		writeError(w, http.StatusNotFound, "Detection not found")
		return
	}

	if err := h.db.DismissDetection(id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to dismiss detection")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
