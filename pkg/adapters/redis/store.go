package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "docflow:"

// Key namespaces below the prefix. Handle ids are free text, so handles and
// bookkeeping keys never share a namespace.
const (
	handleNS = "h:"
	metaNS   = "meta:"
)

// Store implements ports.ScheduledStore using Redis.
//
// Handles are JSON strings under "h:<id>". Two sorted sets sit beside them:
// "meta:index" lists every handle (score 0, so members sort lexically) and
// "meta:schedule" holds handles whose active request is scheduled, scored by
// due time in milliseconds.
type Store struct {
	client *backend.Client
	prefix string
}

var _ ports.ScheduledStore = (*Store)(nil)

type Option func(*Store)

// WithPrefix sets the key prefix for handles.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(id string) string {
	return s.prefix + handleNS + id
}

func (s *Store) indexKey() string {
	return s.prefix + metaNS + "index"
}

func (s *Store) scheduleKey() string {
	return s.prefix + metaNS + "schedule"
}

// Save writes the handle inside a WATCH transaction so that a concurrent
// writer between the version check and the write aborts this one.
func (s *Store) Save(ctx context.Context, h *domain.DocumentHandle) error {
	key := s.key(h.ID)
	next := *h
	next.Version = h.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal handle: %w", err)
	}

	txf := func(tx *backend.Tx) error {
		stored, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != h.Version {
			return &domain.ConflictError{HandleID: h.ID, Reason: "stale version"}
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: 0, Member: h.ID})
			if req := h.ActiveRequest(); req != nil && req.ScheduledDate != nil {
				pipe.ZAdd(ctx, s.scheduleKey(), backend.Z{
					Score:  float64(req.ScheduledDate.UnixMilli()),
					Member: h.ID,
				})
			} else {
				pipe.ZRem(ctx, s.scheduleKey(), h.ID)
			}
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, backend.TxFailedErr) {
		return &domain.ConflictError{HandleID: h.ID, Reason: "concurrent write"}
	}
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return err
		}
		return fmt.Errorf("failed to save to redis: %w", err)
	}

	h.Version = next.Version
	return nil
}

func storedVersion(ctx context.Context, tx *backend.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, backend.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read current version: %w", err)
	}
	var cur struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &cur); err != nil {
		return 0, fmt.Errorf("failed to unmarshal stored handle: %w", err)
	}
	return cur.Version, nil
}

// Load retrieves the handle from Redis.
func (s *Store) Load(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrHandleNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var h domain.DocumentHandle
	if err := json.Unmarshal(val, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handle: %w", err)
	}
	if h.Variables == nil {
		h.Variables = make(map[string]any)
	}
	return &h, nil
}

// Delete removes the handle and its index entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	pipe.ZRem(ctx, s.scheduleKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the handle IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list handles: %w", err)
	}
	return ids, nil
}

// DueRequests reads the schedule set up to now and confirms each entry
// against the stored handle.
func (s *Store) DueRequests(ctx context.Context, now time.Time) ([]ports.ScheduledRequest, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.scheduleKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}

	due := make([]ports.ScheduledRequest, 0, len(ids))
	for _, id := range ids {
		h, err := s.Load(ctx, id)
		if errors.Is(err, domain.ErrHandleNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if ref, ok := ports.DueFromHandle(h, now); ok {
			due = append(due, ref)
		}
	}
	return due, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
