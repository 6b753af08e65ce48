package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/tartampluch/go-haid/internal/engine"
)

// Memory keeps records in process. It backs the default local mode and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string]engine.Record
	subs    map[chan Event]struct{}
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]map[string]engine.Record),
		subs:    make(map[chan Event]struct{}),
	}
}

func (m *Memory) List(_ context.Context, user string) ([]engine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.Record, 0, len(m.records[user]))
	for _, r := range m.records[user] {
		out = append(out, r)
	}
	return engine.SortRecords(out), nil
}

func (m *Memory) Get(_ context.Context, user, id string) (engine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[user][id]
	if !ok {
		return engine.Record{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) Put(_ context.Context, user string, rec engine.Record) (engine.Record, error) {
	if err := validate(user); err != nil {
		return engine.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records[user] == nil {
		m.records[user] = make(map[string]engine.Record)
	}
	m.records[user][rec.ID] = rec
	m.publish(Event{User: user, RecordID: rec.ID, Op: config.OpPut})
	return rec, nil
}

func (m *Memory) Delete(_ context.Context, user, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[user][id]; !ok {
		return ErrNotFound
	}
	delete(m.records[user], id)
	m.publish(Event{User: user, RecordID: id, Op: config.OpDelete})
	return nil
}

func (m *Memory) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, config.EventBufferSize)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Close drops every subscriber.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
	return nil
}

// publish must be called with mu held. A full subscriber misses the event
// rather than blocking writers.
func (m *Memory) publish(ev Event) {
	for ch := range m.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn(config.MsgEventDropped,
				config.LogKeyComponent, config.CompStore,
				config.LogKeyUser, ev.User,
				config.LogKeyRecord, ev.RecordID,
			)
		}
	}
}
