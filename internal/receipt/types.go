package receipt

import "time"

// Header is a single message header as returned by mailbox APIs.
type Header struct {
	Name  string
	Value string
}

// BodyPart is one MIME part of a message. Data is base64url-encoded,
// matching the envelope shape of the Gmail REST API.
type BodyPart struct {
	MimeType string
	Data     string
}

// RawMessage is the wire-level message handed to the classifier.
// Headers and body data come straight from the mailbox source; nothing
// is decoded up front.
type RawMessage struct {
	ID      string
	Headers []Header
	Parts   []BodyPart
	Body    string // root-level body data (base64url), used when Parts is empty
}

// ParsedReceipt is the classifier's output for a receipt-like message.
// MerchantRaw is always non-empty. OccurredAt is always a valid time.
// Amount and Currency are set together or not at all.
type ParsedReceipt struct {
	MerchantRaw string
	OccurredAt  time.Time
	Amount      *float64
	Currency    string
	Subject     string
}
