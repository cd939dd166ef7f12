// Package mailbox provides the mail sources that feed the receipt
// classifier: the Gmail REST API for linked accounts and a local .eml
// directory for offline use. Both emit the same RawMessage envelope, so
// the classifier never knows where a message came from.
package mailbox

import (
	"context"

	"github.com/devanchen/needix-mvp/internal/receipt"
)

// Client lists candidate messages by search query and fetches full
// message bodies. Implementations own their timeout/retry policy; the
// classifier itself does no I/O.
type Client interface {
	// Source identifies the mailbox kind ("gmail", "maildir"); stored on
	// detections as part of the idempotency key.
	Source() string

	// List returns up to max message ids matching query, newest first
	// where the backend supports it.
	List(ctx context.Context, query string, max int) ([]string, error)

	// Get fetches one full message by id.
	Get(ctx context.Context, id string) (*receipt.RawMessage, error)
}
