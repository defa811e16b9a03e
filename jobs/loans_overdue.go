package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/pamoja-sacco/pamoja-sacco/internal/jobs"
	"github.com/pamoja-sacco/pamoja-sacco/internal/tenant"
)

// OverdueScanner runs one organization's overdue loan scan.
type OverdueScanner interface {
	OverdueScan(ctx context.Context, orgCode string) (flagged, defaulted int64, err error)
}

// LoansOverdueJob flags overdue instalments and opens default records for
// delinquent loans across organizations.
type LoansOverdueJob struct {
	Service  OverdueScanner
	Registry *tenant.Registry
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLoansOverdueJob initialises the overdue scan handler.
func NewLoansOverdueJob(service OverdueScanner, registry *tenant.Registry, logger *slog.Logger, metrics *jobmetrics.Metrics) *LoansOverdueJob {
	return &LoansOverdueJob{Service: service, Registry: registry, Logger: logger, Metrics: metrics}
}

// Handle executes one overdue scan. Marking instalments overdue is
// idempotent, so this job carries no run marker and can be retried freely.
func (j *LoansOverdueJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("loans overdue: handler not configured")
	}
	var payload OrgPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLoansOverdue)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	orgs := []string{payload.Org}
	if payload.Org == "" {
		orgs = j.Registry.Codes()
	}

	var failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOrgs)
	for _, org := range orgs {
		g.Go(func() error {
			logger := j.Logger.With(slog.String("org", org), slog.String("job", TaskLoansOverdue))
			flagged, defaulted, err := j.Service.OverdueScan(ctx, org)
			if err != nil {
				failed.Add(1)
				logger.Error("overdue scan failed", slog.Any("error", err))
				return nil
			}
			j.Metrics.AddItems(TaskLoansOverdue, org, int(flagged))
			logger.Info("overdue scan completed",
				slog.Int64("flagged", flagged),
				slog.Int64("defaulted", defaulted))
			return nil
		})
	}
	_ = g.Wait()
	if n := failed.Load(); n > 0 {
		// The scan is idempotent per organization, so the retry re-runs
		// everything safely.
		resultErr = fmt.Errorf("loans overdue: %d of %d organizations failed", n, len(orgs))
	}
	return resultErr
}
