package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/devanchen/needix-mvp/internal/receipt"
	"golang.org/x/oauth2"
)

const gmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// GmailReadScope is the OAuth scope the linked account must grant.
const GmailReadScope = "https://www.googleapis.com/auth/gmail.readonly"

// Gmail fetches messages through the Gmail REST API. The oauth2 client
// handles access-token refresh transparently.
type Gmail struct {
	client  *http.Client
	baseURL string
}

// NewGmail creates a Gmail client from an oauth2 token source
func NewGmail(ctx context.Context, ts oauth2.TokenSource) *Gmail {
	return &Gmail{
		client:  oauth2.NewClient(ctx, ts),
		baseURL: gmailBaseURL,
	}
}

// WithBaseURL overrides the API endpoint (used in tests)
func (g *Gmail) WithBaseURL(base string) *Gmail {
	g.baseURL = base
	return g
}

func (g *Gmail) Source() string {
	return "gmail"
}

// gmailMessageRef is one entry of a messages.list response.
type gmailMessageRef struct {
	ID string `json:"id"`
}

type gmailListResponse struct {
	Messages []gmailMessageRef `json:"messages"`
}

// gmailPayload mirrors the message payload of a messages.get format=full
// response. Part data stays base64url-encoded; decoding is the
// classifier's job.
type gmailPayload struct {
	MimeType string        `json:"mimeType"`
	Headers  []gmailHeader `json:"headers"`
	Body     gmailBody     `json:"body"`
	Parts    []gmailPart   `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailBody struct {
	Data string `json:"data"`
}

type gmailPart struct {
	MimeType string    `json:"mimeType"`
	Body     gmailBody `json:"body"`
}

type gmailMessage struct {
	ID      string       `json:"id"`
	Payload gmailPayload `json:"payload"`
}

// List returns ids of messages matching the Gmail search query
func (g *Gmail) List(ctx context.Context, query string, max int) ([]string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(max))

	var resp gmailListResponse
	if err := g.getJSON(ctx, "/users/me/messages?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Get fetches a full message and maps it onto the classifier's envelope
func (g *Gmail) Get(ctx context.Context, id string) (*receipt.RawMessage, error) {
	var msg gmailMessage
	if err := g.getJSON(ctx, "/users/me/messages/"+url.PathEscape(id)+"?format=full", &msg); err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	raw := &receipt.RawMessage{
		ID:   msg.ID,
		Body: msg.Payload.Body.Data,
	}
	for _, h := range msg.Payload.Headers {
		raw.Headers = append(raw.Headers, receipt.Header{Name: h.Name, Value: h.Value})
	}
	for _, p := range msg.Payload.Parts {
		raw.Parts = append(raw.Parts, receipt.BodyPart{MimeType: p.MimeType, Data: p.Body.Data})
	}
	return raw, nil
}

func (g *Gmail) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail api returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
