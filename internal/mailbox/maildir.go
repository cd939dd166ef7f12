package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/devanchen/needix-mvp/internal/receipt"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Maildir reads .eml files from a local directory and presents them as
// mailbox messages. Message ids are paths relative to the root, so the
// idempotency key survives moving the directory.
type Maildir struct {
	rootPath  string
	sanitizer *bluemonday.Policy
}

// NewMaildir creates a maildir source rooted at rootPath
func NewMaildir(rootPath string) *Maildir {
	return &Maildir{
		rootPath:  rootPath,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (m *Maildir) Source() string {
	return "maildir"
}

// List walks the root for .eml files. The search query is ignored: a
// local directory has no search index, every message is a candidate and
// the classifier does the filtering.
func (m *Maildir) List(ctx context.Context, _ string, max int) ([]string, error) {
	absRoot, err := filepath.Abs(m.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	var ids []string
	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() || len(ids) >= max {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != ".eml" {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		// Normalize to forward slashes for cross-platform stability
		ids = append(ids, filepath.ToSlash(relPath))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return ids, nil
}

// Get parses one .eml file into the classifier's envelope. Part data is
// re-encoded as base64url so local mail carries the exact shape the Gmail
// API delivers.
func (m *Maildir) Get(ctx context.Context, id string) (*receipt.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := filepath.Clean(filepath.FromSlash(id))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid message id: %s", id)
	}

	f, err := os.Open(filepath.Join(m.rootPath, clean))
	if err != nil {
		return nil, fmt.Errorf("failed to open message: %w", err)
	}
	defer f.Close()

	mr, err := mail.CreateReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	header := mr.Header
	subject, err := header.Subject()
	if err != nil {
		// Fall back to the raw header when MIME-word decoding fails
		subject = header.Get("Subject")
	}

	raw := &receipt.RawMessage{
		ID: id,
		Headers: []receipt.Header{
			{Name: "Subject", Value: subject},
			{Name: "From", Value: header.Get("From")},
			{Name: "Date", Value: header.Get("Date")},
		},
	}

	var hasPlain bool
	var htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue // attachments carry no receipt text
		}

		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}

		raw.Parts = append(raw.Parts, receipt.BodyPart{
			MimeType: contentType,
			Data:     base64.RawURLEncoding.EncodeToString(body),
		})
		if strings.HasPrefix(contentType, "text/plain") {
			hasPlain = true
		}
		if strings.HasPrefix(contentType, "text/html") && htmlBody == "" {
			htmlBody = string(body)
		}
	}

	// HTML-only mail: append a stripped-text part so amount extraction
	// has plain text to search, matching what Gmail's API provides.
	if !hasPlain && htmlBody != "" {
		text := m.sanitizer.Sanitize(htmlBody)
		raw.Parts = append(raw.Parts, receipt.BodyPart{
			MimeType: "text/plain",
			Data:     base64.RawURLEncoding.EncodeToString([]byte(text)),
		})
	}

	return raw, nil
}
