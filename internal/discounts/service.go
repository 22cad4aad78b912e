package discounts

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rmadesk/rmadesk/internal/shared"
)

// Backend persists discount sales. InsertSales treats (order_id, product_id)
// as a natural key, skips existing rows and reports how many were inserted.
type Backend interface {
	DiscountMappings(ctx context.Context) ([]Mapping, error)
	RegisteredOrderIDs(ctx context.Context, orderIDs []string) ([]string, error)
	DeleteSales(ctx context.Context, orderIDs []string) (int64, error)
	InsertSales(ctx context.Context, records []SaleRecord) (int64, error)
}

// KitSource supplies the kit table for one run.
type KitSource interface {
	KitRules(ctx context.Context) ([]KitRule, error)
}

// Service registers discount sales from selected orders.
type Service struct {
	backend Backend
	kits    KitSource
	logger  *slog.Logger
	loads   singleflight.Group
}

// NewService constructs the service.
func NewService(backend Backend, kits KitSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if kits == nil {
		kits = StaticKitSource(nil)
	}
	return &Service{backend: backend, kits: kits, logger: logger}
}

// LoadCatalog fetches mappings and kit rules concurrently. Concurrent callers
// share one in-flight load; nothing is kept once it finishes.
func (s *Service) LoadCatalog(ctx context.Context) (*Catalog, error) {
	ch := s.loads.DoChan("catalog", func() (interface{}, error) {
		var (
			mappings []Mapping
			kits     []KitRule
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			mappings, err = s.backend.DiscountMappings(gctx)
			return shared.BackendFailure("discounts.mappings", err)
		})
		g.Go(func() error {
			var err error
			kits, err = s.kits.KitRules(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return NewCatalog(mappings, kits), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Catalog), nil
	}
}

// Register runs one registration pass:
//  1. split orders into cancelled and active;
//  2. offer to delete sales already registered for cancelled orders;
//  3. load the catalog and accumulate active orders;
//  4. submit the merged records in one call.
func (s *Service) Register(ctx context.Context, orders []Order, confirm Confirmer) (RegisterResult, error) {
	var result RegisterResult
	var cancelled []string
	seen := map[string]bool{}
	for _, o := range orders {
		if o.Cancelled() && !seen[o.ID] {
			seen[o.ID] = true
			cancelled = append(cancelled, o.ID)
		}
	}
	sort.Strings(cancelled)
	result.CancelledOrders = len(cancelled)

	if len(cancelled) > 0 {
		registered, err := s.backend.RegisteredOrderIDs(ctx, cancelled)
		if err != nil {
			return RegisterResult{}, shared.BackendFailure("discounts.registered_orders", err)
		}
		if len(registered) > 0 {
			result.RegisteredCancelled = registered
			if confirm != nil && confirm(ctx, registered) {
				removed, err := s.backend.DeleteSales(ctx, registered)
				if err != nil {
					return RegisterResult{}, shared.BackendFailure("discounts.delete_sales", err)
				}
				result.Removed = removed
				s.logger.Info("removed sales of cancelled orders", slog.Int("orders", len(registered)), slog.Int64("rows", removed))
			} else {
				result.CleanupDeclined = true
			}
		}
	}

	catalog, err := s.LoadCatalog(ctx)
	if err != nil {
		return RegisterResult{}, err
	}
	records := Accumulate(catalog, orders)
	result.Records = records
	if len(records) == 0 {
		result.NoEligibleLines = true
		return result, nil
	}

	inserted, err := s.backend.InsertSales(ctx, records)
	if err != nil {
		return RegisterResult{}, shared.BackendFailure("discounts.insert_sales", err)
	}
	result.Submitted = len(records)
	result.Inserted = inserted
	s.logger.Info("discount sales registered", slog.Int("submitted", result.Submitted), slog.Int64("inserted", inserted))
	return result, nil
}
