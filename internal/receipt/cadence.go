package receipt

import "strings"

// Cadence is the billing frequency inferred from a message subject.
type Cadence string

const (
	CadenceNone    Cadence = ""
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
)

// GuessCadence infers a billing cadence from subject keywords. It runs
// independently of Classify; callers attach the result to the stored
// detection.
func GuessCadence(subject string) Cadence {
	s := strings.ToLower(subject)
	switch {
	case strings.Contains(s, "monthly"):
		return CadenceMonthly
	case strings.Contains(s, "yearly"), strings.Contains(s, "annual"):
		return CadenceYearly
	case strings.Contains(s, "weekly"):
		return CadenceWeekly
	}
	return CadenceNone
}
