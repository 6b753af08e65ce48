package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/tartampluch/go-haid/internal/engine"
)

// Redis stores each user's records in one hash keyed by record ID and
// announces changes on a pub/sub channel, so every instance sharing the
// server sees every write.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already connected client. Close closes it.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func recordKey(user string) string {
	return config.RedisRecordKeyPrefix + user
}

// storedRecord is the hash value. Timestamps are kept as strings and parsed
// leniently; one that does not parse becomes an absent field.
type storedRecord struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func encodeRecord(rec engine.Record) ([]byte, error) {
	return json.Marshal(storedRecord{
		Start: formatStored(rec.Start),
		End:   formatStored(rec.End),
	})
}

func formatStored(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// decodeRecord fails only when raw is not a record object.
func decodeRecord(user, id string, raw []byte) (engine.Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(raw, &sr); err != nil {
		return engine.Record{}, fmt.Errorf("%s %s: %w", config.ErrStoreDecode, id, err)
	}
	return engine.Record{
		ID:    id,
		Start: parseStored(user, id, sr.Start),
		End:   parseStored(user, id, sr.End),
	}, nil
}

func parseStored(user, id, value string) *time.Time {
	t := engine.ParseTimestamp(value)
	if t == nil && value != "" {
		slog.Warn(config.MsgSkippedTimestamp,
			config.LogKeyComponent, config.CompStore,
			config.LogKeyUser, user,
			config.LogKeyRecord, id,
			config.LogKeyValue, value,
		)
	}
	return t
}

func (r *Redis) List(ctx context.Context, user string) ([]engine.Record, error) {
	fields, err := r.client.HGetAll(ctx, recordKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreList, err)
	}

	out := make([]engine.Record, 0, len(fields))
	for id, raw := range fields {
		rec, err := decodeRecord(user, id, []byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return engine.SortRecords(out), nil
}

func (r *Redis) Get(ctx context.Context, user, id string) (engine.Record, error) {
	raw, err := r.client.HGet(ctx, recordKey(user), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return engine.Record{}, ErrNotFound
		}
		return engine.Record{}, err
	}

	return decodeRecord(user, id, raw)
}

func (r *Redis) Put(ctx context.Context, user string, rec engine.Record) (engine.Record, error) {
	if err := validate(user); err != nil {
		return engine.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return engine.Record{}, ErrInvalidRecord
	}
	event, err := json.Marshal(Event{User: user, RecordID: rec.ID, Op: config.OpPut})
	if err != nil {
		return engine.Record{}, err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, recordKey(user), rec.ID, data)
	pipe.Publish(ctx, config.RedisChangeChannel, event)
	if _, err := pipe.Exec(ctx); err != nil {
		return engine.Record{}, fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	return rec, nil
}

func (r *Redis) Delete(ctx context.Context, user, id string) error {
	event, err := json.Marshal(Event{User: user, RecordID: id, Op: config.OpDelete})
	if err != nil {
		return err
	}

	removed, err := r.client.HDel(ctx, recordKey(user), id).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return r.client.Publish(ctx, config.RedisChangeChannel, event).Err()
}

func (r *Redis) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := r.client.Subscribe(ctx, config.RedisChangeChannel)
	// Wait for the confirmation so no event published after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrStoreSubscribe, err)
	}

	out := make(chan Event, config.EventBufferSize)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn(config.MsgEventMalformed,
						config.LogKeyComponent, config.CompStore,
						config.LogKeyError, err,
					)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
