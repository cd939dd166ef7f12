package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// UpcomingReminders lists active subscriptions renewing within the next
// N days. The window defaults to the configured reminder_days.
func (h *Handlers) UpcomingReminders(w http.ResponseWriter, r *http.Request) {
	days := h.cfg.ReminderDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		days = parsed
	}

	now := time.Now()
	subs, err := h.db.UpcomingRenewals(now, now.AddDate(0, 0, days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list upcoming renewals")
		return
	}

	items := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		items = append(items, subscriptionToResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":  days,
		"items": items,
	})
}
