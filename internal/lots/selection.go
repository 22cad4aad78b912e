package lots

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rmadesk/rmadesk/internal/shared"
)

// placeholder keeps an empty selection set alive in redis. Lot ids start at 1.
const placeholder = "0"

// SelectionStore keeps working selections of lot ids in redis. Each access
// extends the selection's lifetime by ttl.
type SelectionStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewSelectionStore constructs the store.
func NewSelectionStore(client redis.Cmdable, ttl time.Duration) *SelectionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SelectionStore{client: client, ttl: ttl}
}

// Create opens a new selection holding ids and returns its identifier.
func (s *SelectionStore) Create(ctx context.Context, ids []int64) (string, error) {
	id := uuid.NewString()
	key := shared.SelectionKey(id)
	members := append([]any{placeholder}, toMembers(ids)...)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", shared.BackendFailure("lots.selection.create", err)
	}
	return id, nil
}

// Add puts ids into an existing selection.
func (s *SelectionStore) Add(ctx context.Context, selectionID string, ids ...int64) error {
	key, err := s.existing(ctx, selectionID)
	if err != nil {
		return err
	}
	members := toMembers(ids)
	if len(members) == 0 {
		return s.touch(ctx, key)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return shared.BackendFailure("lots.selection.add", err)
}

// Remove drops one id from a selection.
func (s *SelectionStore) Remove(ctx context.Context, selectionID string, id int64) error {
	key, err := s.existing(ctx, selectionID)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, key, strconv.FormatInt(id, 10))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return shared.BackendFailure("lots.selection.remove", err)
}

// Members lists the lot ids of a selection in ascending order.
func (s *SelectionStore) Members(ctx context.Context, selectionID string) ([]int64, error) {
	key := shared.SelectionKey(selectionID)
	raw, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, shared.BackendFailure("lots.selection.members", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSelectionNotFound, selectionID)
	}
	ids := make([]int64, 0, len(raw))
	for _, m := range raw {
		if m == placeholder {
			continue
		}
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := s.touch(ctx, key); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SelectionStore) existing(ctx context.Context, selectionID string) (string, error) {
	key := shared.SelectionKey(selectionID)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return "", shared.BackendFailure("lots.selection.exists", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: %s", ErrSelectionNotFound, selectionID)
	}
	return key, nil
}

func (s *SelectionStore) touch(ctx context.Context, key string) error {
	return shared.BackendFailure("lots.selection.touch", s.client.Expire(ctx, key, s.ttl).Err())
}

func toMembers(ids []int64) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		out = append(out, strconv.FormatInt(id, 10))
	}
	return out
}
