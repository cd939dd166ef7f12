// Package ingest runs the mailbox scan: list candidate messages, classify
// each one, and store new detections. The loop is sequential on purpose;
// the suspension points are the per-message mailbox fetches, and a bounded
// batch (tens to low hundreds) does not need a worker pool.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/devanchen/needix-mvp/internal/db"
	"github.com/devanchen/needix-mvp/internal/mailbox"
	"github.com/devanchen/needix-mvp/internal/receipt"
	"github.com/google/uuid"
)

// DefaultQuery matches the mailbox search the original importer uses.
const DefaultQuery = `newer_than:365d (receipt OR invoice OR subscription OR "thanks for your order" OR renewal)`

const (
	// DefaultMaxMessages is the batch size when the caller does not ask
	// for one.
	DefaultMaxMessages = 50
	maxMessagesCeiling = 200

	// defaultConfidence is the fixed score stored on every detection.
	// A score derived from match strength would be better; this is the
	// single seam where such a scorer would plug in.
	defaultConfidence = 60
)

// ErrAlreadyRunning is returned by Start when a scan is active.
var ErrAlreadyRunning = errors.New("ingest already in progress")

// Result summarizes one completed scan.
type Result struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Progress is a point-in-time snapshot of the active (or last) scan.
type Progress struct {
	Running    bool      `json:"running"`
	Scanned    int       `json:"scanned"`
	Created    int       `json:"created"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Service drives mailbox scans against one mailbox client.
type Service struct {
	db     *db.DB
	client mailbox.Client
	query  string

	mu       sync.Mutex
	progress Progress
}

// New creates an ingest service. An empty query selects DefaultQuery.
func New(database *db.DB, client mailbox.Client, query string) *Service {
	if query == "" {
		query = DefaultQuery
	}
	return &Service{
		db:     database,
		client: client,
		query:  query,
	}
}

// Start launches a scan in the background. It returns ErrAlreadyRunning
// when a scan is active.
func (s *Service) Start(ctx context.Context, maxMessages int) error {
	s.mu.Lock()
	if s.progress.Running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.progress = Progress{Running: true, StartedAt: time.Now()}
	s.mu.Unlock()

	go func() {
		if _, err := s.run(ctx, maxMessages); err != nil {
			log.Printf("Ingest failed: %v", err)
		}
	}()

	return nil
}

// Run performs a scan synchronously. It returns ErrAlreadyRunning when a
// background scan is active.
func (s *Service) Run(ctx context.Context, maxMessages int) (*Result, error) {
	s.mu.Lock()
	if s.progress.Running {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.progress = Progress{Running: true, StartedAt: time.Now()}
	s.mu.Unlock()

	return s.run(ctx, maxMessages)
}

// Progress returns a snapshot of the current scan state.
func (s *Service) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Service) run(ctx context.Context, maxMessages int) (result *Result, err error) {
	defer func() {
		s.mu.Lock()
		s.progress.Running = false
		s.progress.FinishedAt = time.Now()
		if err != nil {
			s.progress.Error = err.Error()
		}
		s.mu.Unlock()
	}()

	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if maxMessages > maxMessagesCeiling {
		maxMessages = maxMessagesCeiling
	}

	ids, err := s.client.List(ctx, s.query, maxMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	result = &Result{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Scanned++
		if err := s.processMessage(ctx, id); err != nil {
			if errors.Is(err, errSkipped) {
				result.Skipped++
			} else {
				log.Printf("Failed to process message %s: %v", id, err)
				result.Skipped++
			}
		} else {
			result.Created++
		}

		s.mu.Lock()
		s.progress.Scanned = result.Scanned
		s.progress.Created = result.Created
		s.progress.Skipped = result.Skipped
		s.mu.Unlock()
	}

	if err := s.db.SetSetting("last_ingest_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Printf("Failed to record ingest time: %v", err)
	}

	return result, nil
}

// errSkipped marks the expected non-creation outcomes: not receipt-like,
// or already stored.
var errSkipped = errors.New("skipped")

func (s *Service) processMessage(ctx context.Context, id string) error {
	msg, err := s.client.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	parsed := receipt.Classify(*msg)
	if parsed == nil {
		return errSkipped
	}

	source := s.client.Source()
	exists, err := s.db.DetectionExists(source, id)
	if err != nil {
		return err
	}
	if exists {
		return errSkipped
	}

	detection := &db.Detection{
		ID:          uuid.NewString(),
		Source:      source,
		RawID:       id,
		MerchantRaw: parsed.MerchantRaw,
		Amount:      parsed.Amount,
		Currency:    parsed.Currency,
		OccurredAt:  parsed.OccurredAt,
		Cadence:     receipt.GuessCadence(parsed.Subject),
		Confidence:  defaultConfidence,
		Subject:     parsed.Subject,
	}

	if merchant, err := s.linkMerchant(parsed.MerchantRaw); err != nil {
		log.Printf("Failed to link merchant %q: %v", parsed.MerchantRaw, err)
	} else {
		detection.MerchantID.String = merchant.ID
		detection.MerchantID.Valid = true
	}

	return s.db.InsertDetection(detection)
}

// linkMerchant resolves the parsed merchant name against the registry,
// creating the entry on first sight and recording the raw name as an
// alias of an existing near-miss match.
func (s *Service) linkMerchant(merchantRaw string) (*db.Merchant, error) {
	name := merchantRaw
	if existing, err := s.db.FindMerchant(merchantRaw); err != nil {
		return nil, err
	} else if existing != nil {
		name = existing.Name
	}
	return s.db.EnsureMerchant(name, merchantRaw)
}
