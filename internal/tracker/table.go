package tracker

import (
	"time"

	"github.com/tartampluch/go-haid/internal/engine"
)

// Table is the classified record table of one user, ready to serve.
type Table struct {
	User string `json:"user"`
	Lang string `json:"lang"`
	Rows []Row  `json:"rows"`
	// Flagged and Escalated index into Rows.
	Flagged   []int `json:"flagged"`
	Escalated []int `json:"escalated"`
}

// Row is one annotated record with its display strings.
type Row struct {
	ID        string     `json:"id"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	StartText string     `json:"start_text"`
	EndText   string     `json:"end_text"`

	BleedingDays *float64 `json:"bleeding_days,omitempty"`
	Bleeding     string   `json:"bleeding"`
	PurityDays   *float64 `json:"purity_days,omitempty"`
	Purity       string   `json:"purity"`

	HaidKind      string `json:"haid_kind,omitempty"`
	Haid          string `json:"haid"`
	IstihadohKind string `json:"istihadoh_kind,omitempty"`
	Istihadoh     string `json:"istihadoh"`

	ConsultURL      string `json:"consult_url,omitempty"`
	ChainedOverflow bool   `json:"chained_overflow,omitempty"`
}

func newTable(user, lang string, res engine.Result) *Table {
	t := &Table{
		User:      user,
		Lang:      lang,
		Rows:      make([]Row, len(res.Records)),
		Flagged:   nonNil(res.Flagged),
		Escalated: nonNil(res.Escalated),
	}
	for i, r := range res.Records {
		t.Rows[i] = Row{
			ID:              r.ID,
			Start:           r.Start,
			End:             r.End,
			StartText:       engine.FormatTimestamp(r.Start),
			EndText:         engine.FormatTimestamp(r.End),
			BleedingDays:    optional(r.BleedingDays),
			Bleeding:        engine.FormatBleeding(r.BleedingDays),
			PurityDays:      optional(r.PurityDays),
			Purity:          engine.FormatPurity(r.PurityDays),
			HaidKind:        r.Haid.Kind.String(),
			Haid:            r.HaidLabel,
			IstihadohKind:   r.Istihadoh.Kind.String(),
			Istihadoh:       r.IstihadohLabel,
			ConsultURL:      r.EscalationLink,
			ChainedOverflow: r.ChainedOverflow,
		}
	}
	return t
}

func optional(d engine.Days) *float64 {
	if !d.Valid {
		return nil
	}
	v := d.Value
	return &v
}

// nonNil keeps empty index lists as [] in JSON.
func nonNil(idx []int) []int {
	if idx == nil {
		return []int{}
	}
	return idx
}
