package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Subscription is a tracked recurring charge.
type Subscription struct {
	ID                     string
	Service                string
	Plan                   *string
	Price                  *float64
	NextDate               NullTime
	ManageURL              *string
	Canceled               bool
	CreatedFromDetectionID sql.NullString
	CreatedAt              NullTime
	UpdatedAt              NullTime
}

// SubscriptionPatch carries a partial update. A nil pointer together with
// a false Set flag means "leave unchanged"; a Set flag with a nil pointer
// clears the column.
type SubscriptionPatch struct {
	Service      *string
	Plan         *string
	PlanSet      bool
	Price        *float64
	PriceSet     bool
	NextDate     *time.Time
	NextDateSet  bool
	ManageURL    *string
	ManageURLSet bool
	Canceled     *bool
}

const subscriptionColumns = `id, service, plan, price, next_date, manage_url, canceled,
	       created_from_detection_id, created_at, updated_at`

// InsertSubscription inserts a new subscription
func (db *DB) InsertSubscription(s *Subscription) error {
	_, err := db.Exec(`
		INSERT INTO subscriptions (
			id, service, plan, price, next_date, manage_url, canceled,
			created_from_detection_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID, s.Service, nullString(s.Plan), nullFloat(s.Price), s.NextDate,
		nullString(s.ManageURL), s.Canceled, s.CreatedFromDetectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// GetSubscriptionByID retrieves a subscription by its ID, or nil when absent
func (db *DB) GetSubscriptionByID(id string) (*Subscription, error) {
	row := db.QueryRow(`
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE id = ?
	`, id)

	s, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

// ListSubscriptions returns all subscriptions, active ones first, ordered
// by upcoming renewal date
func (db *DB) ListSubscriptions() ([]*Subscription, error) {
	rows, err := db.Query(`
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		ORDER BY canceled ASC, next_date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subs, nil
}

// UpdateSubscription applies a partial update and bumps updated_at
func (db *DB) UpdateSubscription(id string, patch SubscriptionPatch) error {
	set := "updated_at = CURRENT_TIMESTAMP"
	var args []interface{}

	if patch.Service != nil {
		set += ", service = ?"
		args = append(args, *patch.Service)
	}
	if patch.PlanSet {
		set += ", plan = ?"
		args = append(args, nullString(patch.Plan))
	}
	if patch.PriceSet {
		set += ", price = ?"
		args = append(args, nullFloat(patch.Price))
	}
	if patch.NextDateSet {
		set += ", next_date = ?"
		if patch.NextDate != nil {
			args = append(args, NullTime{Time: *patch.NextDate, Valid: true})
		} else {
			args = append(args, NullTime{})
		}
	}
	if patch.ManageURLSet {
		set += ", manage_url = ?"
		args = append(args, nullString(patch.ManageURL))
	}
	if patch.Canceled != nil {
		set += ", canceled = ?"
		args = append(args, *patch.Canceled)
	}

	args = append(args, id)
	_, err := db.Exec("UPDATE subscriptions SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a subscription
func (db *DB) DeleteSubscription(id string) error {
	_, err := db.Exec("DELETE FROM subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// UpcomingRenewals returns active subscriptions whose next_date falls
// inside [from, to], soonest first
func (db *DB) UpcomingRenewals(from, to time.Time) ([]*Subscription, error) {
	rows, err := db.Query(`
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE canceled = 0 AND next_date IS NOT NULL AND next_date >= ? AND next_date <= ?
		ORDER BY next_date ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming renewals: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating renewals: %w", err)
	}

	return subs, nil
}

// MonthlyTotal sums the prices of active subscriptions
func (db *DB) MonthlyTotal() (float64, error) {
	var total sql.NullFloat64
	err := db.QueryRow(
		"SELECT SUM(price) FROM subscriptions WHERE canceled = 0 AND price IS NOT NULL",
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to compute monthly total: %w", err)
	}
	return total.Float64, nil
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	s := &Subscription{}
	var plan, manageURL sql.NullString
	var price sql.NullFloat64

	err := row.Scan(
		&s.ID, &s.Service, &plan, &price, &s.NextDate, &manageURL, &s.Canceled,
		&s.CreatedFromDetectionID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if plan.Valid {
		s.Plan = &plan.String
	}
	if price.Valid {
		s.Price = &price.Float64
	}
	if manageURL.Valid {
		s.ManageURL = &manageURL.String
	}
	return s, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
