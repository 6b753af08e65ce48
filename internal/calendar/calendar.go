package calendar

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/tartampluch/go-haid/internal/engine"
)

// Generator exports a classified table as an iCalendar feed, one event per
// bleeding interval.
type Generator struct {
	Clock Clock
}

// NewGenerator returns a Generator stamping events with clock.
func NewGenerator(clock Clock) *Generator {
	if clock == nil {
		clock = RealClock{}
	}
	return &Generator{Clock: clock}
}

// Render encodes the records of user as a VCALENDAR. Records without a
// bleeding interval are skipped; a table with nothing exportable yields a
// minimal valid calendar.
func (g *Generator) Render(ctx context.Context, user string, records []engine.AnnotatedRecord) ([]byte, error) {
	log := slog.With(
		config.LogKeyComponent, config.CompCalendar,
		config.LogKeyUser, user,
	)

	cal := ical.NewCalendar()
	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	refreshProp := ical.NewProp(config.PropRefresh)
	refreshProp.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refreshProp)

	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(g.Clock.Now().UTC())

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !rec.BleedingDays.Valid {
			log.Debug(config.MsgSkippedRecord, config.LogKeyRecord, rec.ID)
			continue
		}

		event := newEvent(user, rec)
		event.Props.Set(dtStampProp)
		cal.Children = append(cal.Children, event.Component)
	}

	if len(cal.Children) == 0 {
		return []byte(config.StubVCalendar), nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}

	log.Info(config.MsgCalendarRendered,
		config.LogKeyCount, len(cal.Children),
		config.LogKeySizeBytes, buf.Len(),
	)
	return buf.Bytes(), nil
}

func newEvent(user string, rec engine.AnnotatedRecord) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(config.PropUID, EventUID(user, rec.Record))
	event.Props.SetText(config.PropSummary, summary(rec))

	start := ical.NewProp(config.PropDTStart)
	start.SetDateTime(rec.Start.UTC())
	event.Props.Set(start)

	end := ical.NewProp(config.PropDTEnd)
	end.SetDateTime(rec.End.UTC())
	event.Props.Set(end)

	desc := fmt.Sprintf(config.FormatICalDescription,
		engine.FormatBleeding(rec.BleedingDays), engine.FormatPurity(rec.PurityDays))
	if rec.EscalationLink != "" {
		desc += fmt.Sprintf(config.FormatICalConsult, rec.EscalationLink)
		// Set the raw value to avoid a VALUE=TEXT param on a URI property.
		link := ical.NewProp(config.PropURL)
		link.Value = rec.EscalationLink
		event.Props.Set(link)
	}
	event.Props.SetText(config.PropDescription, desc)

	return event
}

// EventUID derives a UID that stays stable across refreshes. Records that were
// never stored fall back to their start time.
func EventUID(user string, rec engine.Record) string {
	key := rec.ID
	if key == "" && rec.Start != nil {
		key = rec.Start.UTC().Format(time.RFC3339)
	}
	hash := sha256.Sum256([]byte(fmt.Sprintf(config.FormatHashInput, user, key)))
	return fmt.Sprintf(config.FormatUID, fmt.Sprintf("%x", hash[:config.UIDHashLength]), config.ICalDomain)
}

func summary(rec engine.AnnotatedRecord) string {
	var parts []string
	for _, l := range []string{rec.HaidLabel, rec.IstihadohLabel} {
		if l != "" {
			parts = append(parts, l)
		}
	}
	if len(parts) == 0 {
		return config.ICalCalName
	}
	return strings.Join(parts, config.ICalSummarySep)
}
