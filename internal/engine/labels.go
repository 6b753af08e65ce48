package engine

import "fmt"

// LabelFormatter turns classified portions into display strings.
// It lets the i18n layer inject localized labels into the engine output.
type LabelFormatter interface {
	Haid(days float64) string
	Istihadoh(days float64) string
	BrokenPattern() string
	ConsultationMessage(e Escalation) string
}

// DefaultLabels renders the Indonesian labels.
type DefaultLabels struct{}

func (DefaultLabels) Haid(days float64) string {
	return "haid " + FormatDays(days)
}

func (DefaultLabels) Istihadoh(days float64) string {
	return "istihadoh " + FormatDays(days)
}

func (DefaultLabels) BrokenPattern() string {
	return "taqottu'"
}

func (DefaultLabels) ConsultationMessage(e Escalation) string {
	return fmt.Sprintf("Assalamualaikum, saya ingin konsultasi kasus taqottu'.\n\n"+
		"Data terkait:\n"+
		"- Siklus saat ini: Haid %s hari, lalu suci %s hari.\n"+
		"- Darah setelahnya: %s hari.\n\n"+
		"Mohon bantuannya, terima kasih.",
		FormatDecimal(e.HaidDays), FormatDecimal(e.PurityDays), FormatDecimal(e.BleedingDays))
}

// label renders p with f, or "" when p is empty.
func label(f LabelFormatter, p Portion) string {
	switch p.Kind {
	case KindHaid:
		return f.Haid(p.Days)
	case KindIstihadoh:
		return f.Istihadoh(p.Days)
	case KindBrokenPattern:
		return f.BrokenPattern()
	default:
		return ""
	}
}
