package db

import (
	"testing"
	"time"

	"github.com/devanchen/needix-mvp/internal/receipt"
	"github.com/google/uuid"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestDetection creates a detection with default values
func CreateTestDetection(source, rawID, merchant string) *Detection {
	return &Detection{
		ID:          uuid.NewString(),
		Source:      source,
		RawID:       rawID,
		MerchantRaw: merchant,
		OccurredAt:  time.Now().UTC(),
		Cadence:     receipt.CadenceNone,
		Confidence:  60,
		Subject:     merchant + " - Your receipt",
	}
}

// CreateTestSubscription creates a subscription with default values
func CreateTestSubscription(service string, price float64) *Subscription {
	return &Subscription{
		ID:      uuid.NewString(),
		Service: service,
		Price:   &price,
	}
}

// InsertTestDetections inserts detections, failing the test on error
func InsertTestDetections(t *testing.T, db *DB, detections []*Detection) {
	t.Helper()

	for i, d := range detections {
		if err := db.InsertDetection(d); err != nil {
			t.Fatalf("Failed to insert test detection %d: %v", i, err)
		}
	}
}
