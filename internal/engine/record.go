package engine

import "time"

// Record is one logged bleeding interval as held by the store.
// Start is the bleeding start (KD), End the bleeding end (B). Either may be nil
// when the user has not filled it in yet.
type Record struct {
	ID    string     `json:"id,omitempty"`
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Days is an optional, possibly fractional, day count.
// The zero value is absent.
type Days struct {
	Value float64
	Valid bool
}

// DaysOf returns a present day count.
func DaysOf(v float64) Days {
	return Days{Value: v, Valid: true}
}

// Or returns the day count, or fallback when absent.
func (d Days) Or(fallback float64) float64 {
	if !d.Valid {
		return fallback
	}
	return d.Value
}

// Kind tags what a classified portion of a record means.
type Kind int

const (
	KindNone Kind = iota
	// KindHaid is the valid part of the bleeding, capped at the threshold.
	KindHaid
	// KindIstihadoh is the irregular remainder beyond the threshold.
	KindIstihadoh
	// KindBrokenPattern (taqottu') requires manual consultation.
	KindBrokenPattern
)

// String returns a stable identifier, used in JSON and logs.
func (k Kind) String() string {
	switch k {
	case KindHaid:
		return "haid"
	case KindIstihadoh:
		return "istihadoh"
	case KindBrokenPattern:
		return "broken-pattern"
	default:
		return ""
	}
}

// Portion is a classified share of a record's bleeding, in days.
type Portion struct {
	Kind Kind
	Days float64
}

// Empty reports whether the portion carries no classification.
func (p Portion) Empty() bool {
	return p.Kind == KindNone
}

// Escalation holds the figures sent along with a consultation request.
type Escalation struct {
	// HaidDays and PurityDays describe the older cycle.
	HaidDays   float64
	PurityDays float64
	// BleedingDays is the bleeding that followed it.
	BleedingDays float64
}

// AnnotatedRecord is a Record together with everything derived from the
// record set it belongs to.
type AnnotatedRecord struct {
	Record

	BleedingDays Days
	// PurityDays runs from this record's End to the next more recent Start.
	PurityDays Days

	Haid      Portion
	Istihadoh Portion

	HaidLabel      string
	IstihadohLabel string

	// Escalation and EscalationLink are set only for a broken pattern.
	Escalation     *Escalation
	EscalationLink string

	// ChainedOverflow marks the third (or later) consecutive record above the
	// threshold, which the rules do not resolve reliably.
	ChainedOverflow bool
}

// Result is the output of one classification run.
type Result struct {
	// Records are sorted newest first.
	Records []AnnotatedRecord
	// Flagged and Escalated hold indexes into Records.
	Flagged   []int
	Escalated []int
}
