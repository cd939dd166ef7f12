package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
)

// Merchant is a canonical merchant entry with the raw aliases seen for it.
type Merchant struct {
	ID      string
	Name    string
	Aliases []string
}

// EnsureMerchant finds or creates the merchant with the given canonical
// name, recording alias as a raw-name alias when it is new.
func (db *DB) EnsureMerchant(name, alias string) (*Merchant, error) {
	m, err := db.getMerchantByName(name)
	if err != nil {
		return nil, err
	}

	if m == nil {
		m = &Merchant{ID: uuid.NewString(), Name: name}
		if alias != "" {
			m.Aliases = []string{alias}
		}
		raw, err := json.Marshal(m.Aliases)
		if err != nil {
			return nil, fmt.Errorf("failed to encode aliases: %w", err)
		}
		if _, err := db.Exec(
			"INSERT INTO merchants (id, name, aliases) VALUES (?, ?, ?)",
			m.ID, m.Name, string(raw),
		); err != nil {
			return nil, fmt.Errorf("failed to insert merchant: %w", err)
		}
		return m, nil
	}

	if alias == "" || containsFold(m.Aliases, alias) {
		return m, nil
	}

	m.Aliases = append(m.Aliases, alias)
	raw, err := json.Marshal(m.Aliases)
	if err != nil {
		return nil, fmt.Errorf("failed to encode aliases: %w", err)
	}
	if _, err := db.Exec("UPDATE merchants SET aliases = ? WHERE id = ?", string(raw), m.ID); err != nil {
		return nil, fmt.Errorf("failed to update merchant aliases: %w", err)
	}
	return m, nil
}

// FindMerchant resolves a raw merchant name to a registered merchant. It
// tries exact name and alias matches first (case-insensitive), then a
// Levenshtein near-miss on the canonical name so small spelling variants
// of an already-seen merchant still link up. Returns nil when nothing is
// close enough.
func (db *DB) FindMerchant(raw string) (*Merchant, error) {
	merchants, err := db.listMerchants()
	if err != nil {
		return nil, err
	}

	for _, m := range merchants {
		if strings.EqualFold(m.Name, raw) || containsFold(m.Aliases, raw) {
			return m, nil
		}
	}

	// Near-miss on canonical names: same threshold the transaction
	// reconciler uses for fuzzy description matches.
	for _, m := range merchants {
		a, b := strings.ToUpper(m.Name), strings.ToUpper(raw)
		maxLen := len(a)
		if len(b) > maxLen {
			maxLen = len(b)
		}
		if maxLen == 0 {
			continue
		}
		dist := levenshtein.ComputeDistance(a, b)
		if float64(dist)/float64(maxLen) < 0.4 {
			return m, nil
		}
	}

	return nil, nil
}

func (db *DB) getMerchantByName(name string) (*Merchant, error) {
	var m Merchant
	var raw string
	err := db.QueryRow(
		"SELECT id, name, aliases FROM merchants WHERE name = ?", name,
	).Scan(&m.ID, &m.Name, &raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &m.Aliases); err != nil {
		return nil, fmt.Errorf("failed to decode aliases: %w", err)
	}
	return &m, nil
}

func (db *DB) listMerchants() ([]*Merchant, error) {
	rows, err := db.Query("SELECT id, name, aliases FROM merchants")
	if err != nil {
		return nil, fmt.Errorf("failed to list merchants: %w", err)
	}
	defer rows.Close()

	var merchants []*Merchant
	for rows.Next() {
		m := &Merchant{}
		var raw string
		if err := rows.Scan(&m.ID, &m.Name, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan merchant: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &m.Aliases); err != nil {
			return nil, fmt.Errorf("failed to decode aliases: %w", err)
		}
		merchants = append(merchants, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merchants: %w", err)
	}

	return merchants, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
