// Package store persists bleeding records per user and notifies listeners of
// every change.
package store

import (
	"context"
	"errors"

	"github.com/tartampluch/go-haid/internal/engine"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// Event describes one committed change.
type Event struct {
	User     string `json:"user"`
	RecordID string `json:"id"`
	Op       string `json:"op"`
}

// Store is the record repository. Implementations are safe for concurrent use.
type Store interface {
	// List returns every record of user, newest first.
	List(ctx context.Context, user string) ([]engine.Record, error)
	Get(ctx context.Context, user, id string) (engine.Record, error)
	// Put inserts or replaces rec, assigning an ID when it has none, and
	// returns the stored record.
	Put(ctx context.Context, user string, rec engine.Record) (engine.Record, error)
	Delete(ctx context.Context, user, id string) error
	// Subscribe streams change events until ctx is cancelled; the channel is
	// then closed.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Ping(ctx context.Context) error
	Close() error
}

func validate(user string) error {
	if user == "" {
		return ErrInvalidRecord
	}
	return nil
}
