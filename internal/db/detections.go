package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/devanchen/needix-mvp/internal/receipt"
)

// Detection is a candidate subscription/charge record derived from a
// parsed receipt, pending user review. Amount and Currency are both set
// or both absent.
type Detection struct {
	ID                       string
	Source                   string
	RawID                    string
	MerchantRaw              string
	MerchantID               sql.NullString
	Amount                   *float64
	Currency                 string
	OccurredAt               time.Time
	Cadence                  receipt.Cadence
	Confidence               int
	Subject                  string
	Dismissed                bool
	ResolvedToSubscriptionID sql.NullString
	CreatedAt                NullTime
}

const detectionColumns = `id, source, raw_id, merchant_raw, merchant_id, amount, currency,
	       occurred_at, cadence, confidence, subject, dismissed,
	       resolved_to_subscription_id, created_at`

// InsertDetection inserts a new detection
func (db *DB) InsertDetection(d *Detection) error {
	var amount sql.NullFloat64
	if d.Amount != nil {
		amount = sql.NullFloat64{Float64: *d.Amount, Valid: true}
	}
	currency := sql.NullString{String: d.Currency, Valid: d.Currency != ""}

	_, err := db.Exec(`
		INSERT INTO detections (
			id, source, raw_id, merchant_raw, merchant_id, amount, currency,
			occurred_at, cadence, confidence, subject, dismissed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.Source, d.RawID, d.MerchantRaw, d.MerchantID, amount, currency,
		d.OccurredAt, string(d.Cadence), d.Confidence, d.Subject, d.Dismissed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

// DetectionExists reports whether a detection for the given source message
// was already stored. This is the per-message idempotency check.
func (db *DB) DetectionExists(source, rawID string) (bool, error) {
	var exists bool
	err := db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM detections WHERE source = ? AND raw_id = ?)",
		source, rawID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check detection existence: %w", err)
	}
	return exists, nil
}

// GetDetectionByID retrieves a detection by its ID, or nil when absent
func (db *DB) GetDetectionByID(id string) (*Detection, error) {
	row := db.QueryRow(`
		SELECT `+detectionColumns+`
		FROM detections WHERE id = ?
	`, id)

	d, err := scanDetection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}
	return d, nil
}

// ListPendingDetections returns unresolved, undismissed detections,
// newest occurrence first
func (db *DB) ListPendingDetections(limit int) ([]*Detection, error) {
	rows, err := db.Query(`
		SELECT `+detectionColumns+`
		FROM detections
		WHERE resolved_to_subscription_id IS NULL AND dismissed = 0
		ORDER BY occurred_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending detections: %w", err)
	}
	defer rows.Close()

	var detections []*Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, d)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating detections: %w", err)
	}

	return detections, nil
}

// DismissDetection marks a detection as dismissed
func (db *DB) DismissDetection(id string) error {
	_, err := db.Exec("UPDATE detections SET dismissed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to dismiss detection: %w", err)
	}
	return nil
}

// ResolveDetection links a detection to the subscription created from it
func (db *DB) ResolveDetection(id, subscriptionID string) error {
	_, err := db.Exec(
		"UPDATE detections SET resolved_to_subscription_id = ? WHERE id = ?",
		subscriptionID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve detection: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDetection(row rowScanner) (*Detection, error) {
	d := &Detection{}
	var amount sql.NullFloat64
	var currency sql.NullString
	var cadence string
	var occurredAt NullTime

	err := row.Scan(
		&d.ID, &d.Source, &d.RawID, &d.MerchantRaw, &d.MerchantID, &amount, &currency,
		&occurredAt, &cadence, &d.Confidence, &d.Subject, &d.Dismissed,
		&d.ResolvedToSubscriptionID, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if amount.Valid {
		d.Amount = &amount.Float64
	}
	d.Currency = currency.String
	d.Cadence = receipt.Cadence(cadence)
	d.OccurredAt = occurredAt.Time
	return d, nil
}
