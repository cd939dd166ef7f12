package receipt

import (
	"encoding/base64"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// Keywords that mark a message as a purchase/subscription receipt.
	// Matched against the lower-cased subject + from haystack.
	reReceiptLike = regexp.MustCompile(`receipt|subscription|renewal|invoice|order confirmation|thanks for your order`)

	// First USD-style amount in the body text, up to two fraction digits.
	reAmount = regexp.MustCompile(`(?i)(?:USD|US\$|\$)\s?(\d+(?:\.\d{1,2})?)`)
)

// Classify decides whether msg looks like a purchase or subscription
// receipt and extracts merchant, timestamp, and amount from it. It returns
// nil for messages that do not look receipt-like; every other malformed or
// missing field degrades to a safe default instead of failing the call.
//
// Classify is pure: no I/O, no shared state, safe for concurrent use.
func Classify(msg RawMessage) *ParsedReceipt {
	headers := headerMap(msg.Headers)
	subject := headers["subject"]
	from := headers["from"]

	haystack := strings.ToLower(subject + " " + from)
	if !reReceiptLike.MatchString(haystack) {
		return nil
	}

	merchantRaw := merchantFromAddress(from)
	if subject != "" {
		token := strings.TrimSpace(splitSubject(subject))
		if utf8.RuneCountInString(token) >= 3 {
			merchantRaw = token
		}
	}

	occurredAt := time.Now()
	if dateHeader := headers["date"]; dateHeader != "" {
		if t, err := mail.ParseDate(dateHeader); err == nil {
			occurredAt = t
		}
	}

	bodyText := decodeBase64URL(selectBodyData(msg))

	var amount *float64
	var currency string
	if m := reAmount.FindStringSubmatch(bodyText); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			amount = &v
			currency = "USD"
		}
	}

	return &ParsedReceipt{
		MerchantRaw: NormalizeMerchant(merchantRaw),
		OccurredAt:  occurredAt,
		Amount:      amount,
		Currency:    currency,
		Subject:     subject,
	}
}

// headerMap builds a case-insensitive lookup of header name to value.
// Missing headers read as empty strings.
func headerMap(headers []Header) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[strings.ToLower(h.Name)] = h.Value
	}
	return m
}

// merchantFromAddress derives a merchant name from the From header: strip
// the display-name angle-bracket wrapper and take the local part of the
// address. Falls back to the raw header so the result is never empty for a
// non-empty From.
func merchantFromAddress(from string) string {
	addr := from
	if i := strings.Index(addr, "<"); i >= 0 {
		addr = addr[i+1:]
	}
	if i := strings.Index(addr, ">"); i >= 0 {
		addr = addr[:i]
	}
	local, _, _ := strings.Cut(addr, "@")
	if local == "" {
		return from
	}
	return local
}

// splitSubject returns the first subject segment before a '-' or '|'
// separator. Subjects like "Netflix - Your receipt" carry a cleaner brand
// name than a generic reply-to address.
func splitSubject(subject string) string {
	if i := strings.IndexAny(subject, "-|"); i >= 0 {
		return subject[:i]
	}
	return subject
}

// selectBodyData picks a usable text payload: prefer a text/plain part,
// else the first part, else the root body.
func selectBodyData(msg RawMessage) string {
	for _, p := range msg.Parts {
		if strings.Contains(p.MimeType, "text/plain") && p.Data != "" {
			return p.Data
		}
	}
	if len(msg.Parts) > 0 {
		return msg.Parts[0].Data
	}
	return msg.Body
}

// decodeBase64URL decodes base64url data (- and _ instead of + and /) to
// UTF-8 text. Undecodable input yields "" rather than an error; amount
// extraction simply finds nothing.
func decodeBase64URL(data string) string {
	if data == "" {
		return ""
	}
	normalized := strings.NewReplacer("-", "+", "_", "/").Replace(data)
	normalized = strings.TrimRight(normalized, "=")
	if m := len(normalized) % 4; m != 0 {
		normalized += strings.Repeat("=", 4-m)
	}
	decoded, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return ""
	}
	return string(decoded)
}
