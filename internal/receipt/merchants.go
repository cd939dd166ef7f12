package receipt

import "strings"

// brandAlias maps a substring of the upper-cased raw merchant name to its
// canonical display form. Entries are ordered so more specific needles win
// over their prefixes (e.g. "AMAZON SUBSCRIBE & SAVE" before "AMAZON").
type brandAlias struct {
	needle    string
	canonical string
}

// Raw sender/subject strings are inconsistent ("no-reply@netflixmail.com"
// vs "Netflix" vs "NETFLIX INC") while deduplication and display need a
// single label per merchant.
var brandTable = []brandAlias{
	{"NETFLIX", "Netflix"},
	{"SPOTIFY", "Spotify"},
	{"ADOBE", "Adobe"},
	{"AMAZON SUBSCRIBE & SAVE", "Amazon"},
	{"AMAZON", "Amazon"},
	{"MICROSOFT", "Microsoft"},
	{"APPLE", "Apple"},
	{"HULU", "Hulu"},
	{"DISNEY", "Disney+"},
	{"COSTCO", "Costco"},
	{"TARGET", "Target"},
	{"WALMART", "Walmart"},
}

// NormalizeMerchant maps a raw merchant candidate onto its canonical brand
// name when a known brand substring matches; otherwise it returns the
// candidate trimmed.
func NormalizeMerchant(raw string) string {
	key := strings.ToUpper(raw)
	for _, alias := range brandTable {
		if strings.Contains(key, alias.needle) {
			return alias.canonical
		}
	}
	return strings.TrimSpace(raw)
}
