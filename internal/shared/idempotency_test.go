package shared

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	keys map[string]time.Time
	err  error
	sql  []string
}

func (f *fakeExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	switch {
	case strings.HasPrefix(sql, "INSERT"):
		key := args[0].(string)
		if _, ok := f.keys[key]; ok {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		}
		f.keys[key] = args[2].(time.Time)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.Contains(sql, "created_at <"):
		cutoff := args[0].(time.Time)
		removed := 0
		for k, at := range f.keys {
			if at.Before(cutoff) {
				delete(f.keys, k)
				removed++
			}
		}
		return pgconn.NewCommandTag("DELETE " + strconv.Itoa(removed)), nil
	default:
		delete(f.keys, args[0].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
}

func TestIdempotencyStoreDetectsDuplicates(t *testing.T) {
	db := &fakeExec{keys: map[string]time.Time{}}
	store := NewIdempotencyStore(db)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "create-lot-1", "lots"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "create-lot-1", "lots"), ErrIdempotencyConflict)

	require.NoError(t, store.Delete(ctx, "create-lot-1"))
	require.NoError(t, store.CheckAndInsert(ctx, "create-lot-1", "lots"))
}

func TestIdempotencyStoreCleanup(t *testing.T) {
	db := &fakeExec{keys: map[string]time.Time{}}
	store := NewIdempotencyStore(db)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	db.keys["old"] = now.Add(-72 * time.Hour)
	db.keys["fresh"] = now.Add(-time.Hour)

	removed, err := store.Cleanup(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
	require.Contains(t, db.keys, "fresh")
}

func TestIdempotencyStoreWrapsBackendErrors(t *testing.T) {
	store := NewIdempotencyStore(&fakeExec{keys: map[string]time.Time{}, err: errors.New("dial tcp: refused")})
	err := store.CheckAndInsert(context.Background(), "k", "lots")
	require.ErrorIs(t, err, ErrBackendUnavailable)

	var nilStore *IdempotencyStore
	require.Error(t, nilStore.CheckAndInsert(context.Background(), "k", "lots"))
	require.NoError(t, nilStore.Delete(context.Background(), "k"))
}

func TestRequestKey(t *testing.T) {
	require.Equal(t, "abc", RequestKey("  abc "))
	generated := RequestKey("")
	require.Len(t, generated, 36)
	require.NotEqual(t, generated, RequestKey(""))
}
