package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rmadesk/rmadesk/internal/inventory"
	jobmetrics "github.com/rmadesk/rmadesk/internal/jobs"
)

// VarianceDigestJob loads the stock ledger and publishes variance gauges.
type VarianceDigestJob struct {
	Source  inventory.ProductSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewVarianceDigestJob initialises the digest handler.
func NewVarianceDigestJob(source inventory.ProductSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *VarianceDigestJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &VarianceDigestJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle computes the digest.
func (j *VarianceDigestJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("variance digest: handler not configured")
	}
	var payload VarianceDigestPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := time.Now()
	tracker := j.Metrics.Track(TaskVarianceDigest)
	defer func() { err = tracker.End(err) }()

	digest, err := BuildVarianceDigest(ctx, j.Source, payload.Block)
	if err != nil {
		j.Logger.Error("variance digest failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetVarianceDigest(digest)
	j.Logger.Info("variance digest",
		slog.String("block", payload.Block),
		slog.Int("products", digest.Products),
		slog.Int("counted", digest.Counted),
		slog.Int("with_variance", digest.WithVariance),
		slog.Int64("absolute_units", digest.AbsoluteUnits),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// BuildVarianceDigest summarises the ledger, optionally for one block.
func BuildVarianceDigest(ctx context.Context, source inventory.ProductSource, block string) (jobmetrics.VarianceDigest, error) {
	ledger := inventory.NewLedger(nil)
	if err := ledger.LoadFrom(ctx, source); err != nil {
		return jobmetrics.VarianceDigest{}, err
	}
	var digest jobmetrics.VarianceDigest
	for _, row := range ledger.VarianceRows(inventory.VarianceFilter{Block: block}) {
		digest.Products++
		if row.PhysicalCount != nil {
			digest.Counted++
		}
		if row.Variance != 0 {
			digest.WithVariance++
			if row.Variance < 0 {
				digest.AbsoluteUnits -= row.Variance
			} else {
				digest.AbsoluteUnits += row.Variance
			}
		}
	}
	return digest, nil
}
