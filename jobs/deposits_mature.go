package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/pamoja-sacco/pamoja-sacco/internal/deposits"
	jobmetrics "github.com/pamoja-sacco/pamoja-sacco/internal/jobs"
	"github.com/pamoja-sacco/pamoja-sacco/internal/tenant"
)

// maxConcurrentOrgs caps the tenant fan-out so one batch run cannot exhaust
// every tenant pool at once.
const maxConcurrentOrgs = 4

// MaturityProcessor runs one organization's deposit maturity batch.
type MaturityProcessor interface {
	ProcessMatured(ctx context.Context, orgCode string) (deposits.MaturityResult, error)
}

// DepositsMatureJob settles matured fixed deposits across organizations.
type DepositsMatureJob struct {
	Service  MaturityProcessor
	Registry *tenant.Registry
	Redis    *redis.Client
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewDepositsMatureJob initialises the maturity handler.
func NewDepositsMatureJob(service MaturityProcessor, registry *tenant.Registry, rdb *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *DepositsMatureJob {
	return &DepositsMatureJob{
		Service:  service,
		Registry: registry,
		Redis:    rdb,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one maturity run. Organizations are processed
// concurrently but independently; a failing organization is logged and the
// rest continue, and the run as a whole reports failure so the retry and
// the failure counter both fire.
func (j *DepositsMatureJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("deposits mature: handler not configured")
	}
	var payload OrgPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskDepositsMature)
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
			if err := j.runOrg(ctx, org); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if n := failed.Load(); n > 0 {
		// The per-org run markers keep the retry from double-processing
		// organizations that already completed.
		resultErr = fmt.Errorf("deposits mature: %d of %d organizations failed", n, len(orgs))
	}
	return resultErr
}

func (j *DepositsMatureJob) runOrg(ctx context.Context, org string) error {
	logger := j.Logger.With(slog.String("org", org), slog.String("job", TaskDepositsMature))
	today := j.clock().Format(time.DateOnly)
	if !j.claimRun(ctx, "jobs:deposits:mature:"+org+":"+today) {
		logger.Info("maturity run already completed today")
		return nil
	}
	result, err := j.Service.ProcessMatured(ctx, org)
	if err != nil {
		logger.Error("maturity run failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskDepositsMature, org, result.Processed)
	logger.Info("maturity run completed",
		slog.Int("processed", result.Processed),
		slog.Int("rolled_over", result.RolledOver),
		slog.Int("errors", len(result.Errors)))
	return nil
}

// claimRun marks the per-org daily run in redis so overlapping schedules do
// not double-process. Without redis the run always proceeds; the maturity
// processor itself is idempotent per deposit.
func (j *DepositsMatureJob) claimRun(ctx context.Context, key string) bool {
	if j.Redis == nil {
		return true
	}
	ok, err := j.Redis.SetNX(ctx, key, 1, 48*time.Hour).Result()
	if err != nil {
		j.Logger.Warn("run marker unavailable", slog.String("key", key), slog.Any("error", err))
		return true
	}
	return ok
}
