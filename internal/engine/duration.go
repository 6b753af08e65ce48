package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tartampluch/go-haid/internal/config"
)

// timestampLayouts are tried in order by ParseTimestamp. The last two match
// what a date input joined with a time input produces.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 timestamp. An empty or unparseable value
// yields nil: the engine treats it as an absent field.
func ParseTimestamp(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// BleedingDuration returns End - Start in days, absent unless both are set and
// End is strictly after Start.
func BleedingDuration(r Record) Days {
	if r.Start == nil || r.End == nil {
		return Days{}
	}
	return positiveSpan(*r.Start, *r.End)
}

// PurityDuration returns the days between sorted[i].End and sorted[i-1].Start.
// sorted must be newest first, so index 0 never has a purity duration.
func PurityDuration(sorted []Record, i int) Days {
	if i <= 0 || i >= len(sorted) {
		return Days{}
	}
	end, nextStart := sorted[i].End, sorted[i-1].Start
	if end == nil || nextStart == nil {
		return Days{}
	}
	return positiveSpan(*end, *nextStart)
}

func positiveSpan(from, to time.Time) Days {
	diff := to.Sub(from)
	if diff <= 0 {
		return Days{}
	}
	return DaysOf(diff.Hours() / config.HoursPerDay)
}

// FormatDays renders a day count in the canonical "3 D, 5 H" form. Hours are
// rounded to the nearest integer; a zero segment is omitted. Negative or NaN
// input renders as the absent marker.
func FormatDays(days float64) string {
	if math.IsNaN(days) || days < 0 {
		return config.AbsentValue
	}

	total := int64(math.Round(days * config.HoursPerDay))
	d, h := total/int64(config.HoursPerDay), total%int64(config.HoursPerDay)

	switch {
	case h == 0:
		return fmt.Sprintf("%d %s", d, config.UnitDays)
	case d == 0:
		return fmt.Sprintf("%d %s", h, config.UnitHours)
	default:
		return fmt.Sprintf("%d %s%s%d %s", d, config.UnitDays, config.DurationSeparator, h, config.UnitHours)
	}
}

// ParseDays is the inverse of FormatDays. It also accepts a single decimal
// segment such as "2.5 D" or "36 H". Anything else is absent.
func ParseDays(s string) Days {
	s = strings.TrimSpace(s)
	if s == "" || s == config.AbsentValue {
		return Days{}
	}

	var total float64
	for _, segment := range strings.Split(s, strings.TrimSpace(config.DurationSeparator)) {
		fields := strings.Fields(segment)
		if len(fields) != 2 {
			return Days{}
		}
		value, err := strconv.ParseFloat(fields[0], 64)
		if err != nil || value < 0 {
			return Days{}
		}
		switch fields[1] {
		case config.UnitDays:
			total += value
		case config.UnitHours:
			total += value / config.HoursPerDay
		default:
			return Days{}
		}
	}
	return DaysOf(total)
}

// FormatDecimal renders a number with two decimals, dropping a ".00" suffix.
func FormatDecimal(v float64) string {
	if math.IsNaN(v) {
		return config.AbsentValue
	}
	return strings.TrimSuffix(strconv.FormatFloat(v, 'f', 2, 64), ".00")
}

// FormatBleeding renders a bleeding duration for the table: hours with one
// decimal below a day, days with two decimals otherwise.
func FormatBleeding(d Days) string {
	if !d.Valid {
		return config.AbsentValue
	}
	hours := d.Value * config.HoursPerDay
	if hours < config.HoursPerDay {
		return strconv.FormatFloat(hours, 'f', 1, 64) + " " + config.UnitHours
	}
	return strconv.FormatFloat(d.Value, 'f', 2, 64) + " " + config.UnitDays
}

// FormatPurity renders a purity duration for the table.
func FormatPurity(d Days) string {
	if !d.Valid {
		return config.AbsentValue
	}
	return FormatDecimal(d.Value) + " " + config.UnitDays
}

// FormatTimestamp renders a timestamp as "DD/MM/YYYY HH:mm".
func FormatTimestamp(t *time.Time) string {
	if t == nil {
		return config.AbsentValue
	}
	return t.Format(config.DisplayDateTime)
}
