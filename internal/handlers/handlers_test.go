package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devanchen/needix-mvp/internal/config"
	"github.com/devanchen/needix-mvp/internal/db"
	"github.com/devanchen/needix-mvp/internal/ingest"
	"github.com/devanchen/needix-mvp/internal/receipt"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailbox struct {
	ids   []string
	msgs  map[string]*receipt.RawMessage
	block chan struct{}
}

func (f *fakeMailbox) Source() string { return "test" }

func (f *fakeMailbox) List(ctx context.Context, query string, max int) ([]string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.ids, nil
}

func (f *fakeMailbox) Get(ctx context.Context, id string) (*receipt.RawMessage, error) {
	msg, ok := f.msgs[id]
	if !ok {
		return nil, fmt.Errorf("no such message: %s", id)
	}
	return msg, nil
}

func setupTestServer(t *testing.T, mbox *fakeMailbox) (http.Handler, *db.DB) {
	t.Helper()

	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })

	if mbox == nil {
		mbox = &fakeMailbox{}
	}

	cfg := config.Default()
	h := New(database, cfg, ingest.New(database, mbox, ""))

	router := chi.NewRouter()
	h.Routes(router)
	return router, database
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	handler, _ := setupTestServer(t, nil)

	rec := doRequest(t, handler, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
}

func TestCreateSubscription(t *testing.T) {
	handler, _ := setupTestServer(t, nil)

	nextDate := time.Now().AddDate(0, 0, 10).Format("2006-01-02")
	rec := doRequest(t, handler, "POST", "/api/subscriptions", map[string]interface{}{
		"service":  "Netflix",
		"plan":     "Premium",
		"price":    15.49,
		"nextDate": nextDate,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created subscriptionResponse
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Netflix", created.Service)
	require.NotNil(t, created.Plan)
	assert.Equal(t, "Premium", *created.Plan)
	require.NotNil(t, created.Price)
	assert.InDelta(t, 15.49, *created.Price, 0.001)
	require.NotNil(t, created.NextDate)
	assert.False(t, created.Canceled)
}

func TestCreateSubscription_RequiresService(t *testing.T) {
	handler, _ := setupTestServer(t, nil)

	rec := doRequest(t, handler, "POST", "/api/subscriptions", map[string]interface{}{
		"price": 9.99,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Service name is required")
}

func TestCreateSubscription_RejectsPastNextDate(t *testing.T) {
	handler, _ := setupTestServer(t, nil)

	rec := doRequest(t, handler, "POST", "/api/subscriptions", map[string]interface{}{
		"service":  "Spotify",
		"nextDate": "2020-01-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot be in the past")
}

func TestGetSubscription_NotFound(t *testing.T) {
	handler, _ := setupTestServer(t, nil)

	rec := doRequest(t, handler, "GET", "/api/subscriptions/missing-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchSubscription(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	sub := db.CreateTestSubscription("Spotify", 9.99)
	require.NoError(t, database.InsertSubscription(sub))

	rec := doRequest(t, handler, "PATCH", "/api/subscriptions/"+sub.ID, map[string]interface{}{
		"price":    11.99,
		"canceled": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated subscriptionResponse
	decodeBody(t, rec, &updated)
	require.NotNil(t, updated.Price)
	assert.InDelta(t, 11.99, *updated.Price, 0.001)
	assert.True(t, updated.Canceled)
	assert.Equal(t, "Spotify", updated.Service)
}

func TestPatchSubscription_NullClearsField(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	sub := db.CreateTestSubscription("Hulu", 7.99)
	plan := "Ad-free"
	sub.Plan = &plan
	require.NoError(t, database.InsertSubscription(sub))

	rec := doRequest(t, handler, "PATCH", "/api/subscriptions/"+sub.ID, map[string]interface{}{
		"plan": nil,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated subscriptionResponse
	decodeBody(t, rec, &updated)
	assert.Nil(t, updated.Plan)
}

func TestPatchSubscription_RejectsEmptyService(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	sub := db.CreateTestSubscription("Hulu", 7.99)
	require.NoError(t, database.InsertSubscription(sub))

	rec := doRequest(t, handler, "PATCH", "/api/subscriptions/"+sub.ID, map[string]interface{}{
		"service": "",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteSubscription(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	sub := db.CreateTestSubscription("Hulu", 7.99)
	require.NoError(t, database.InsertSubscription(sub))

	rec := doRequest(t, handler, "DELETE", "/api/subscriptions/"+sub.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, "DELETE", "/api/subscriptions/"+sub.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptionSummary(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	active := db.CreateTestSubscription("Netflix", 15.49)
	active.NextDate = db.NullTime{Time: time.Now().AddDate(0, 0, 3), Valid: true}
	require.NoError(t, database.InsertSubscription(active))

	canceled := db.CreateTestSubscription("Hulu", 7.99)
	canceled.Canceled = true
	require.NoError(t, database.InsertSubscription(canceled))

	rec := doRequest(t, handler, "GET", "/api/subscriptions/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary struct {
		MonthlyTotal  float64 `json:"monthlyTotal"`
		UpcomingCount int     `json:"upcomingCount"`
	}
	decodeBody(t, rec, &summary)
	assert.InDelta(t, 15.49, summary.MonthlyTotal, 0.001)
	assert.Equal(t, 1, summary.UpcomingCount)
}

func TestPendingDetections(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	pending := db.CreateTestDetection("gmail", "msg-1", "Netflix")
	dismissed := db.CreateTestDetection("gmail", "msg-2", "Spotify")
	dismissed.Dismissed = true
	db.InsertTestDetections(t, database, []*db.Detection{pending, dismissed})

	rec := doRequest(t, handler, "GET", "/api/detections/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []detectionResponse `json:"items"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, pending.ID, resp.Items[0].ID)
	assert.Equal(t, "Netflix", resp.Items[0].MerchantRaw)
}

func TestAcceptDetection_Defaults(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	detection := db.CreateTestDetection("gmail", "msg-1", "Netflix")
	amount := 15.49
	detection.Amount = &amount
	detection.Currency = "USD"
	detection.Cadence = receipt.CadenceMonthly
	detection.OccurredAt = time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	db.InsertTestDetections(t, database, []*db.Detection{detection})

	rec := doRequest(t, handler, "POST", "/api/detections/"+detection.ID+"/accept", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sub subscriptionResponse
	decodeBody(t, rec, &sub)
	assert.Equal(t, "Netflix", sub.Service)
	require.NotNil(t, sub.Price)
	assert.InDelta(t, 15.49, *sub.Price, 0.001)
	require.NotNil(t, sub.NextDate)
	assert.Equal(t, time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC), sub.NextDate.UTC())

	// detection leaves the pending list
	pendingRec := doRequest(t, handler, "GET", "/api/detections/pending", nil)
	var resp struct {
		Items []detectionResponse `json:"items"`
	}
	decodeBody(t, pendingRec, &resp)
	assert.Empty(t, resp.Items)
}

func TestAcceptDetection_Overrides(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	detection := db.CreateTestDetection("gmail", "msg-1", "hello")
	db.InsertTestDetections(t, database, []*db.Detection{detection})

	rec := doRequest(t, handler, "POST", "/api/detections/"+detection.ID+"/accept", map[string]interface{}{
		"service":  "HelloFresh",
		"price":    59.99,
		"nextDate": "2030-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var sub subscriptionResponse
	decodeBody(t, rec, &sub)
	assert.Equal(t, "HelloFresh", sub.Service)
	require.NotNil(t, sub.Price)
	assert.InDelta(t, 59.99, *sub.Price, 0.001)
	require.NotNil(t, sub.NextDate)
}

func TestAcceptDetection_AlreadyResolved(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	detection := db.CreateTestDetection("gmail", "msg-1", "Netflix")
	db.InsertTestDetections(t, database, []*db.Detection{detection})

	rec := doRequest(t, handler, "POST", "/api/detections/"+detection.ID+"/accept", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, handler, "POST", "/api/detections/"+detection.ID+"/accept", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAcceptDetection_NotFound(t *testing.T) {
	handler, _ := setupTestServer(t, nil)

	rec := doRequest(t, handler, "POST", "/api/detections/missing-id/accept", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDismissDetection(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	detection := db.CreateTestDetection("gmail", "msg-1", "Netflix")
	db.InsertTestDetections(t, database, []*db.Detection{detection})

	rec := doRequest(t, handler, "POST", "/api/detections/"+detection.ID+"/dismiss", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	pendingRec := doRequest(t, handler, "GET", "/api/detections/pending", nil)
	var resp struct {
		Items []detectionResponse `json:"items"`
	}
	decodeBody(t, pendingRec, &resp)
	assert.Empty(t, resp.Items)
}

func TestUpcomingReminders(t *testing.T) {
	handler, database := setupTestServer(t, nil)

	soon := db.CreateTestSubscription("Netflix", 15.49)
	soon.NextDate = db.NullTime{Time: time.Now().AddDate(0, 0, 2), Valid: true}
	require.NoError(t, database.InsertSubscription(soon))

	far := db.CreateTestSubscription("Prime", 14.99)
	far.NextDate = db.NullTime{Time: time.Now().AddDate(0, 2, 0), Valid: true}
	require.NoError(t, database.InsertSubscription(far))

	rec := doRequest(t, handler, "GET", "/api/reminders/upcoming", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Days  int                    `json:"days"`
		Items []subscriptionResponse `json:"items"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 7, resp.Days)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Netflix", resp.Items[0].Service)

	rec = doRequest(t, handler, "GET", "/api/reminders/upcoming?days=90", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Len(t, resp.Items, 2)
}

func TestUpcomingReminders_InvalidDays(t *testing.T) {
	handler, _ := setupTestServer(t, nil)

	rec := doRequest(t, handler, "GET", "/api/reminders/upcoming?days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartIngest_Conflict(t *testing.T) {
	blocked := make(chan struct{})
	handler, _ := setupTestServer(t, &fakeMailbox{block: blocked})

	rec := doRequest(t, handler, "POST", "/api/detections/ingest", map[string]interface{}{
		"maxMessages": 10,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, handler, "POST", "/api/detections/ingest", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(blocked)
	assert.Eventually(t, func() bool {
		status := doRequest(t, handler, "GET", "/api/detections/ingest/status", nil)
		var progress ingest.Progress
		decodeBody(t, status, &progress)
		return !progress.Running
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIngestStatus_Idle(t *testing.T) {
	handler, _ := setupTestServer(t, nil)

	rec := doRequest(t, handler, "GET", "/api/detections/ingest/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var progress ingest.Progress
	decodeBody(t, rec, &progress)
	assert.False(t, progress.Running)
}
