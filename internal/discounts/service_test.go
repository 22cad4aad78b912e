package discounts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rmadesk/rmadesk/internal/shared"
)

type memoryBackend struct {
	mu           sync.Mutex
	mappings     []Mapping
	sales        map[SaleKey]SaleRecord
	mappingCalls atomic.Int32
	insertCalls  int
	deleted      []string
	failInsert   error
	failMappings error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		mappings: []Mapping{{SKU: "A", ProductID: 1}, {SKU: "B", ProductID: 2}},
		sales:    map[SaleKey]SaleRecord{},
	}
}

func (m *memoryBackend) DiscountMappings(context.Context) ([]Mapping, error) {
	m.mappingCalls.Add(1)
	if m.failMappings != nil {
		return nil, m.failMappings
	}
	return m.mappings, nil
}

func (m *memoryBackend) RegisteredOrderIDs(_ context.Context, orderIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range orderIDs {
		for key := range m.sales {
			if key.OrderID == id {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (m *memoryBackend) DeleteSales(_ context.Context, orderIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range orderIDs {
		for key := range m.sales {
			if key.OrderID == id {
				delete(m.sales, key)
				n++
			}
		}
	}
	m.deleted = append(m.deleted, orderIDs...)
	return n, nil
}

func (m *memoryBackend) InsertSales(_ context.Context, records []SaleRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.failInsert != nil {
		return 0, m.failInsert
	}
	var n int64
	for _, rec := range records {
		if _, exists := m.sales[rec.Key()]; exists {
			continue
		}
		m.sales[rec.Key()] = rec
		n++
	}
	return n, nil
}

func newTestService(backend *memoryBackend) *Service {
	kits := StaticKitSource{{KitSKU: "KIT-X", Components: []string{"A", "B"}}}
	return NewService(backend, kits, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterIsRetrySafe(t *testing.T) {
	backend := newMemoryBackend()
	svc := newTestService(backend)
	ctx := context.Background()
	orders := []Order{order("O1", Line{SKU: "KIT-X", Quantity: 2}), order("O2", Line{SKU: "A", Quantity: 1})}

	result, err := svc.Register(ctx, orders, nil)
	require.NoError(t, err)
	require.Equal(t, 3, result.Submitted)
	require.Equal(t, int64(3), result.Inserted)

	result, err = svc.Register(ctx, orders, nil)
	require.NoError(t, err)
	require.Equal(t, 3, result.Submitted)
	require.Zero(t, result.Inserted)
	require.Len(t, backend.sales, 3)
}

func TestRegisterCancelledCleanup(t *testing.T) {
	backend := newMemoryBackend()
	svc := newTestService(backend)
	ctx := context.Background()

	_, err := svc.Register(ctx, []Order{order("O1", Line{SKU: "A", Quantity: 1})}, nil)
	require.NoError(t, err)

	cancelled := order("O1", Line{SKU: "A", Quantity: 1})
	cancelled.ShippingStatus = "CANCELLED"

	result, err := svc.Register(ctx, []Order{cancelled}, Always(false))
	require.NoError(t, err)
	require.True(t, result.CleanupDeclined)
	require.Equal(t, []string{"O1"}, result.RegisteredCancelled)
	require.True(t, result.NoEligibleLines)
	require.Len(t, backend.sales, 1)

	var asked []string
	confirm := func(_ context.Context, ids []string) bool {
		asked = ids
		return true
	}
	result, err = svc.Register(ctx, []Order{cancelled}, confirm)
	require.NoError(t, err)
	require.Equal(t, []string{"O1"}, asked)
	require.Equal(t, int64(1), result.Removed)
	require.Empty(t, backend.sales)
	require.Equal(t, 1, backend.insertCalls)
}

func TestRegisterNoEligibleLinesSkipsSubmit(t *testing.T) {
	backend := newMemoryBackend()
	svc := newTestService(backend)

	result, err := svc.Register(context.Background(), []Order{order("O9", Line{SKU: "NOPE", Quantity: 1})}, nil)
	require.NoError(t, err)
	require.True(t, result.NoEligibleLines)
	require.Zero(t, backend.insertCalls)
	require.Empty(t, result.Records)
}

func TestRegisterBackendFailures(t *testing.T) {
	backend := newMemoryBackend()
	backend.failInsert = errors.New("503")
	svc := newTestService(backend)

	_, err := svc.Register(context.Background(), []Order{order("O1", Line{SKU: "A", Quantity: 1})}, nil)
	require.ErrorIs(t, err, shared.ErrBackendUnavailable)

	backend = newMemoryBackend()
	backend.failMappings = errors.New("timeout")
	_, err = newTestService(backend).Register(context.Background(), []Order{order("O1", Line{SKU: "A", Quantity: 1})}, nil)
	require.ErrorIs(t, err, shared.ErrBackendUnavailable)
	require.Zero(t, backend.insertCalls)
}

func TestLoadCatalogIsNotCached(t *testing.T) {
	backend := newMemoryBackend()
	svc := newTestService(backend)
	ctx := context.Background()

	catalog, err := svc.LoadCatalog(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, catalog.Kits())

	backend.mappings = append(backend.mappings, Mapping{SKU: "C", ProductID: 3})
	catalog, err = svc.LoadCatalog(ctx)
	require.NoError(t, err)
	_, ok := catalog.ResolveSKU("C")
	require.True(t, ok)
	require.Equal(t, int32(2), backend.mappingCalls.Load())
}
