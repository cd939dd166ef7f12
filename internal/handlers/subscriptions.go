package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devanchen/needix-mvp/internal/db"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type subscriptionResponse struct {
	ID        string     `json:"id"`
	Service   string     `json:"service"`
	Plan      *string    `json:"plan"`
	Price     *float64   `json:"price"`
	NextDate  *time.Time `json:"nextDate"`
	ManageURL *string    `json:"manageUrl"`
	Canceled  bool       `json:"canceled"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

func subscriptionToResponse(s *db.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		ID:        s.ID,
		Service:   s.Service,
		Plan:      s.Plan,
		Price:     s.Price,
		ManageURL: s.ManageURL,
		Canceled:  s.Canceled,
	}
	if s.NextDate.Valid {
		resp.NextDate = &s.NextDate.Time
	}
	if s.CreatedAt.Valid {
		resp.CreatedAt = &s.CreatedAt.Time
	}
	if s.UpdatedAt.Valid {
		resp.UpdatedAt = &s.UpdatedAt.Time
	}
	return resp
}

// ListSubscriptions returns all subscriptions, active first
func (h *Handlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.db.ListSubscriptions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list subscriptions")
		return
	}

	items := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		items = append(items, subscriptionToResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

type subscriptionCreateRequest struct {
	Service   string   `json:"service"`
	Plan      *string  `json:"plan"`
	Price     *float64 `json:"price"`
	NextDate  *string  `json:"nextDate"`
	ManageURL *string  `json:"manageUrl"`
}

// CreateSubscription adds a subscription from a JSON body
func (h *Handlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Service == "" {
		writeError(w, http.StatusBadRequest, "Service name is required")
		return
	}

	sub := &db.Subscription{
		ID:        uuid.NewString(),
		Service:   req.Service,
		Plan:      req.Plan,
		Price:     req.Price,
		ManageURL: req.ManageURL,
	}
	if req.NextDate != nil {
		nextDate, err := parseDate(*req.NextDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid nextDate")
			return
		}
		if nextDate.Before(startOfToday()) {
			writeError(w, http.StatusBadRequest, "Next renewal date cannot be in the past")
			return
		}
		sub.NextDate = db.NullTime{Time: nextDate, Valid: true}
	}

	if err := h.db.InsertSubscription(sub); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create subscription")
		return
	}

	created, err := h.db.GetSubscriptionByID(sub.ID)
	if err != nil || created == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}
	writeJSON(w, http.StatusCreated, subscriptionToResponse(created))
}

// GetSubscription returns a single subscription by id
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.db.GetSubscriptionByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	writeJSON(w, http.StatusOK, subscriptionToResponse(sub))
}

// PatchSubscription applies a partial update. Fields present in the
// body are updated; a JSON null clears the column.
func (h *Handlers) PatchSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.db.GetSubscriptionByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "Subscription not found")
		return
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	patch, err := buildPatch(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.db.UpdateSubscription(id, patch); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update subscription")
		return
	}

	updated, err := h.db.GetSubscriptionByID(id)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}
	writeJSON(w, http.StatusOK, subscriptionToResponse(updated))
}

func buildPatch(fields map[string]json.RawMessage) (db.SubscriptionPatch, error) {
	var patch db.SubscriptionPatch

	if raw, ok := fields["service"]; ok {
		var service string
		if err := json.Unmarshal(raw, &service); err != nil || service == "" {
			return patch, fmt.Errorf("Service name is required")
		}
		patch.Service = &service
	}
	if raw, ok := fields["plan"]; ok {
		patch.PlanSet = true
		if !isJSONNull(raw) {
			var plan string
			if err := json.Unmarshal(raw, &plan); err != nil {
				return patch, fmt.Errorf("Invalid plan")
			}
			patch.Plan = &plan
		}
	}
	if raw, ok := fields["price"]; ok {
		patch.PriceSet = true
		if !isJSONNull(raw) {
			var price float64
			if err := json.Unmarshal(raw, &price); err != nil {
				return patch, fmt.Errorf("Invalid price")
			}
			patch.Price = &price
		}
	}
	if raw, ok := fields["nextDate"]; ok {
		patch.NextDateSet = true
		if !isJSONNull(raw) {
			var dateStr string
			if err := json.Unmarshal(raw, &dateStr); err != nil {
				return patch, fmt.Errorf("Invalid nextDate")
			}
			nextDate, err := parseDate(dateStr)
			if err != nil {
				return patch, fmt.Errorf("Invalid nextDate")
			}
			if nextDate.Before(startOfToday()) {
				return patch, fmt.Errorf("Next renewal date cannot be in the past")
			}
			patch.NextDate = &nextDate
		}
	}
	if raw, ok := fields["manageUrl"]; ok {
		patch.ManageURLSet = true
		if !isJSONNull(raw) {
			var manageURL string
			if err := json.Unmarshal(raw, &manageURL); err != nil {
				return patch, fmt.Errorf("Invalid manageUrl")
			}
			patch.ManageURL = &manageURL
		}
	}
	if raw, ok := fields["canceled"]; ok {
		var canceled bool
		if err := json.Unmarshal(raw, &canceled); err != nil {
			return patch, fmt.Errorf("Invalid canceled flag")
		}
		patch.Canceled = &canceled
	}

	return patch, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// DeleteSubscription removes a subscription by id
func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.db.GetSubscriptionByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	if err := h.db.DeleteSubscription(id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SubscriptionSummary reports the active monthly total and the number
// of renewals inside the reminder window
func (h *Handlers) SubscriptionSummary(w http.ResponseWriter, r *http.Request) {
	total, err := h.db.MonthlyTotal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute summary")
		return
	}

	now := time.Now()
	upcoming, err := h.db.UpcomingRenewals(now, now.AddDate(0, 0, h.cfg.ReminderDays))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute summary")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monthlyTotal":  total,
		"upcomingCount": len(upcoming),
	})
}
