package engine

import (
	"math"
	"sort"

	"github.com/tartampluch/go-haid/internal/config"
)

// chainedOverflowRun is the length of a run of over-threshold records at
// which the rules stop being trustworthy.
const chainedOverflowRun = 3

// Classifier derives durations and haid/istihadoh labels for a record set.
//
// Classify is pure: it never mutates its input and keeps no state between
// calls, so one Classifier may be shared by concurrent callers.
type Classifier struct {
	// Labels renders the output strings. DefaultLabels is used when nil.
	Labels LabelFormatter
	// Endpoint receives consultation requests for broken patterns.
	Endpoint string
}

// NewClassifier returns a Classifier rendering with labels and linking to endpoint.
func NewClassifier(labels LabelFormatter, endpoint string) *Classifier {
	return &Classifier{Labels: labels, Endpoint: endpoint}
}

// row is the working state of one record during a run. Rows live in a slice
// private to a single Classify call and are only addressed by index.
type row struct {
	bleed      Days
	purity     Days
	haid       Portion
	ist        Portion
	escalation *Escalation
	chained    bool
}

// Classify sorts records newest first and annotates each one.
//
// Pass 1 splits over-threshold bleeding and carries the excess across cycles.
// Pass 2 then looks for broken patterns against the final Pass 1 values.
func (c *Classifier) Classify(records []Record) Result {
	sorted := SortRecords(records)

	rows := make([]row, len(sorted))
	for i, r := range sorted {
		rows[i].bleed = BleedingDuration(r)
		rows[i].purity = PurityDuration(sorted, i)
		if rows[i].bleed.Valid && rows[i].bleed.Value <= config.HaidMaxDays {
			rows[i].haid = haidPortion(rows[i].bleed.Value)
		}
	}

	applyThreshold(rows)
	detectBrokenPattern(rows)

	return c.assemble(sorted, rows)
}

// SortRecords returns a copy of records ordered by Start, newest first.
// Records without a Start sort last; ties keep their input order.
func SortRecords(records []Record) []Record {
	sorted := make([]Record, len(records))
	copy(sorted, records)

	sort.SliceStable(sorted, func(a, b int) bool {
		sa, sb := sorted[a].Start, sorted[b].Start
		switch {
		case sa == nil:
			return false
		case sb == nil:
			return true
		default:
			return sa.After(*sb)
		}
	})
	return sorted
}

// applyThreshold is Pass 1, walking from newest to oldest.
func applyThreshold(rows []row) {
	run := 0
	for i := range rows {
		cur := &rows[i]

		if cur.bleed.Valid && cur.bleed.Value > config.HaidMaxDays {
			run++
			if run >= chainedOverflowRun {
				cur.chained = true
			}
			splitOverflow(rows, i)
			continue
		}
		run = 0

		// Absent bleeding or an open-ended purity window ends this branch.
		if !cur.bleed.Valid || !cur.purity.Valid {
			continue
		}
		cycle := haidDays(cur.haid) + cur.purity.Value
		if cycle < config.HaidMaxDays && cycle+neighborBleed(rows, i) < config.HaidMaxDays {
			lookback(rows, i, cycle)
		}
	}
}

// splitOverflow caps rows[i] at the threshold, moves the excess into its
// purity window and re-derives the newer neighbor against that window.
func splitOverflow(rows []row, i int) {
	cur := &rows[i]
	excess := cur.bleed.Value - config.HaidMaxDays

	cur.haid = haidPortion(config.HaidMaxDays)
	cur.ist = istihadohPortion(excess)
	if !cur.purity.Valid {
		return
	}
	cur.purity.Value += excess

	if i == 0 || !rows[i-1].bleed.Valid {
		return
	}
	newer := &rows[i-1]
	purity, bleed := cur.purity.Value, newer.bleed.Value

	if purity+bleed > config.HaidMaxDays {
		valid := math.Max(0, math.Min(bleed, config.HaidMaxDays-purity))
		newer.haid = haidPortion(valid)
		newer.ist = istihadohPortion(bleed - valid)
		return
	}
	newer.haid = Portion{}
	newer.ist = istihadohPortion(bleed)
}

// lookback accumulates older cycles onto sum until the threshold is crossed
// and splits the record where that happens. Absent bleeding or purity adds
// nothing and the walk goes on.
func lookback(rows []row, i int, sum float64) {
	for j := i + 1; j < len(rows); j++ {
		older := &rows[j]
		bleed := older.bleed.Or(0)

		sum += bleed
		if sum <= config.HaidMaxDays {
			sum += older.purity.Or(0)
		}
		if sum > config.HaidMaxDays {
			excess := sum - config.HaidMaxDays
			older.ist = istihadohPortion(excess)
			older.haid = haidPortion(bleed - excess)
			return
		}
	}
}

// detectBrokenPattern is Pass 2. A cycle that stays under the threshold but
// crosses it once the following bleeding is added cannot be resolved by the
// threshold rule; the newer record is marked for consultation.
func detectBrokenPattern(rows []row) {
	for i := 1; i < len(rows); i++ {
		cur, newer := rows[i], &rows[i-1]

		cycle := haidDays(cur.haid) + cur.purity.Or(0)
		bleed := newer.bleed.Or(0)
		if cycle < config.HaidMaxDays && cycle+bleed > config.HaidMaxDays {
			newer.haid = Portion{Kind: KindBrokenPattern}
			newer.ist = Portion{}
			newer.escalation = &Escalation{
				HaidDays:     haidDays(cur.haid),
				PurityDays:   cur.purity.Or(0),
				BleedingDays: bleed,
			}
		}
	}
}

func (c *Classifier) assemble(sorted []Record, rows []row) Result {
	labels := c.Labels
	if labels == nil {
		labels = DefaultLabels{}
	}

	res := Result{Records: make([]AnnotatedRecord, len(rows))}
	for i, r := range rows {
		out := AnnotatedRecord{
			Record:          sorted[i],
			BleedingDays:    r.bleed,
			PurityDays:      r.purity,
			Haid:            r.haid,
			Istihadoh:       r.ist,
			HaidLabel:       label(labels, r.haid),
			IstihadohLabel:  label(labels, r.ist),
			Escalation:      r.escalation,
			ChainedOverflow: r.chained,
		}
		if r.escalation != nil {
			out.EscalationLink = ConsultationLink(c.Endpoint, labels.ConsultationMessage(*r.escalation))
			res.Escalated = append(res.Escalated, i)
		}
		if r.chained {
			res.Flagged = append(res.Flagged, i)
		}
		res.Records[i] = out
	}
	return res
}

func neighborBleed(rows []row, i int) float64 {
	if i == 0 {
		return 0
	}
	return rows[i-1].bleed.Or(0)
}

func haidDays(p Portion) float64 {
	if p.Kind != KindHaid {
		return 0
	}
	return p.Days
}

func haidPortion(days float64) Portion {
	if days <= 0 {
		return Portion{}
	}
	return Portion{Kind: KindHaid, Days: days}
}

func istihadohPortion(days float64) Portion {
	if days <= 0 {
		return Portion{}
	}
	return Portion{Kind: KindIstihadoh, Days: days}
}
