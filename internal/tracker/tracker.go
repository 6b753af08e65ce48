// Package tracker binds the record store to the classification engine and
// keeps derived views (websocket clients, calendar feed) current.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tartampluch/go-haid/internal/calendar"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/tartampluch/go-haid/internal/engine"
	"github.com/tartampluch/go-haid/internal/i18n"
	"github.com/tartampluch/go-haid/internal/observability/metrics"
	"github.com/tartampluch/go-haid/internal/store"
)

var (
	// ErrInvalidTime is returned for a timestamp that is set but unparseable.
	ErrInvalidTime = errors.New(config.ErrInvalidTime)
	// ErrSubscriptionClosed means the store stopped delivering change events.
	ErrSubscriptionClosed = errors.New(config.ErrEventsClosed)
)

// Broadcaster receives every recomputed table.
type Broadcaster interface {
	Publish(user string, data any)
}

// CalendarSink receives every re-rendered calendar feed.
type CalendarSink interface {
	UpdateCalendar(user string, data []byte)
}

// RecordInput is a record as submitted by a client. Empty fields are absent.
type RecordInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Options configures a Service. Store, Catalog and Calendar are required.
type Options struct {
	Store    store.Store
	Catalog  *i18n.Catalog
	Calendar *calendar.Generator
	Metrics  *metrics.ClassificationMetrics

	Language string
	Endpoint string
}

// Service is the application core shared by the HTTP API and the event loop.
type Service struct {
	store    store.Store
	catalog  *i18n.Catalog
	calendar *calendar.Generator
	metrics  *metrics.ClassificationMetrics

	mu       sync.RWMutex
	language string
	endpoint string
	hub      Broadcaster
	sink     CalendarSink
}

// New creates a Service.
func New(opts Options) *Service {
	return &Service{
		store:    opts.Store,
		catalog:  opts.Catalog,
		calendar: opts.Calendar,
		metrics:  opts.Metrics,
		language: opts.Language,
		endpoint: opts.Endpoint,
	}
}

// Attach registers where recomputed tables and calendars are pushed.
// Either may be nil.
func (s *Service) Attach(hub Broadcaster, sink CalendarSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub, s.sink = hub, sink
}

// Configure applies reloaded settings.
func (s *Service) Configure(language, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language, s.endpoint = language, endpoint
}

func (s *Service) settings() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language, s.endpoint
}

// Table classifies the records of user with labels in lang. An empty lang
// selects the configured default.
func (s *Service) Table(ctx context.Context, user, lang string) (*Table, error) {
	res, matched, err := s.classify(ctx, user, lang)
	if err != nil {
		return nil, err
	}
	return newTable(user, matched, res), nil
}

// Calendar renders the calendar feed of user in the default language.
func (s *Service) Calendar(ctx context.Context, user string) ([]byte, error) {
	res, _, err := s.classify(ctx, user, "")
	if err != nil {
		return nil, err
	}
	data, err := s.calendar.Render(ctx, user, res.Records)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrCalendarRender, err)
	}
	return data, nil
}

// classify runs the engine over the stored records of user and returns the
// result with the language actually used.
func (s *Service) classify(ctx context.Context, user, lang string) (engine.Result, string, error) {
	records, err := s.store.List(ctx, user)
	if err != nil {
		return engine.Result{}, "", fmt.Errorf("%s: %w", config.ErrTableCompute, err)
	}

	defaultLang, endpoint := s.settings()
	if strings.TrimSpace(lang) == "" {
		lang = defaultLang
	}
	tr := s.catalog.Translator(lang)

	start := time.Now()
	res := engine.NewClassifier(tr, endpoint).Classify(records)
	s.report(ctx, user, tr.Lang(), res, time.Since(start))

	return res, tr.Lang(), nil
}

func (s *Service) report(ctx context.Context, user, lang string, res engine.Result, elapsed time.Duration) {
	log := slog.With(
		config.LogKeyComponent, config.CompTracker,
		config.LogKeyUser, user,
	)
	for _, i := range res.Flagged {
		log.Warn(config.MsgChainedOverflow,
			config.LogKeyIndex, i,
			config.LogKeyRecord, res.Records[i].ID,
		)
	}
	for _, i := range res.Escalated {
		log.Info(config.MsgEscalation,
			config.LogKeyIndex, i,
			config.LogKeyRecord, res.Records[i].ID,
		)
	}
	log.Debug(config.MsgClassified,
		config.LogKeyCount, len(res.Records),
		config.LogKeyFlagged, len(res.Flagged),
		config.LogKeyEscalated, len(res.Escalated),
		config.LogKeyDuration, elapsed.Milliseconds(),
	)

	if s.metrics != nil {
		s.metrics.RecordClassification(ctx, lang, len(res.Escalated), len(res.Flagged), elapsed)
	}
}

// Add stores a new record for user.
func (s *Service) Add(ctx context.Context, user string, in RecordInput) (engine.Record, error) {
	rec, err := in.record()
	if err != nil {
		return engine.Record{}, err
	}
	return s.store.Put(ctx, user, rec)
}

// Update replaces the timestamps of an existing record.
func (s *Service) Update(ctx context.Context, user, id string, in RecordInput) (engine.Record, error) {
	rec, err := in.record()
	if err != nil {
		return engine.Record{}, err
	}
	if _, err := s.store.Get(ctx, user, id); err != nil {
		return engine.Record{}, err
	}
	rec.ID = id
	return s.store.Put(ctx, user, rec)
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, user, id string) error {
	return s.store.Delete(ctx, user, id)
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Run consumes store change events and pushes the recomputed table and
// calendar of the affected user. It blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	events, err := s.store.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreSubscribe, err)
	}

	log := slog.With(config.LogKeyComponent, config.CompTracker)
	log.Info(config.MsgTrackerStart)

	for {
		select {
		case <-ctx.Done():
			log.Info(config.MsgTrackerStop)
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					log.Info(config.MsgTrackerStop)
					return nil
				}
				return ErrSubscriptionClosed
			}
			log.Debug(config.MsgRecordChanged,
				config.LogKeyUser, ev.User,
				config.LogKeyRecord, ev.RecordID,
				config.LogKeyOp, ev.Op,
			)
			if s.metrics != nil {
				s.metrics.RecordStoreEvent(ctx, ev.Op)
			}
			s.Refresh(ctx, ev.User)
		}
	}
}

// Refresh recomputes user's table and calendar and pushes them to the
// attached hub and sink. Failures are logged, the previous views stay.
func (s *Service) Refresh(ctx context.Context, user string) {
	s.mu.RLock()
	hub, sink := s.hub, s.sink
	s.mu.RUnlock()

	res, lang, err := s.classify(ctx, user, "")
	if err != nil {
		slog.Error(config.ErrTableCompute,
			config.LogKeyComponent, config.CompTracker,
			config.LogKeyUser, user,
			config.LogKeyError, err,
		)
		return
	}
	if hub != nil {
		hub.Publish(user, newTable(user, lang, res))
	}

	if sink == nil {
		return
	}
	data, err := s.calendar.Render(ctx, user, res.Records)
	if err != nil {
		slog.Error(config.ErrCalendarRender,
			config.LogKeyComponent, config.CompTracker,
			config.LogKeyUser, user,
			config.LogKeyError, err,
		)
		return
	}
	sink.UpdateCalendar(user, data)
}

func (in RecordInput) record() (engine.Record, error) {
	start, err := parseOptional(in.Start)
	if err != nil {
		return engine.Record{}, err
	}
	end, err := parseOptional(in.End)
	if err != nil {
		return engine.Record{}, err
	}
	return engine.Record{Start: start, End: end}, nil
}

func parseOptional(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t := engine.ParseTimestamp(value)
	if t == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	return t, nil
}
