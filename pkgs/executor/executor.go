package executor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/metrics"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/planner"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/staking"
)

// MigrationService is the service surface the executor needs.
// *staking.StakingV2 satisfies it.
type MigrationService interface {
	MigrateUsers(ctx context.Context, users []common.Address) (*staking.MigrationResult, error)
	GetUserSnapshot(ctx context.Context, user common.Address) (*staking.UserSnapshot, error)
}

// Outcome records the confirmed result of one batch.
// SuccessCount + FailureCount == TotalUsers always holds.
type Outcome struct {
	BatchIndex   int
	TotalUsers   int
	SuccessCount int
	FailureCount int
	TxReference  string

	// Pre-migration snapshots of the sampled users, captured before
	// submission for the verifier. A nil snapshot means the sample
	// query failed.
	Sampled      []common.Address
	PreSnapshots map[common.Address]*staking.UserSnapshot
}

// Executor runs batches strictly sequentially in index order. Sequential
// submission keeps the authority's account nonce ordered; this is a
// deliberate simplification, not a throughput optimization.
type Executor struct {
	service    MigrationService
	sampleSize int
	timeout    time.Duration
}

// New creates an executor. sampleSize users per batch are snapshotted
// before submission (0 disables sampling); timeout bounds each batch's
// submission and confirmation (0 disables).
func New(service MigrationService, sampleSize int, timeout time.Duration) *Executor {
	return &Executor{
		service:    service,
		sampleSize: sampleSize,
		timeout:    timeout,
	}
}

// ExecuteAll runs every batch in order. One batch failing entirely is
// recorded as a full-batch failure and execution continues; the
// migration operation is idempotent per user, so the supported recovery
// for partial failure is simply re-running the whole sequence.
//
// onOutcome, if non-nil, is invoked after each batch settles so callers
// can persist or verify it before the next batch starts.
//
// Cancelling the context stops the run between batches, never
// mid-batch. Outcomes for completed batches are always returned.
func (e *Executor) ExecuteAll(ctx context.Context, batches []planner.Batch, onOutcome func(Outcome)) []Outcome {
	outcomes := make([]Outcome, 0, len(batches))

	for _, batch := range batches {
		if ctx.Err() != nil {
			log.Warnf("⚠️  Run aborted after %d of %d batches", len(outcomes), len(batches))
			return outcomes
		}

		outcome := e.ExecuteBatch(ctx, batch)
		outcomes = append(outcomes, outcome)
		if onOutcome != nil {
			onOutcome(outcome)
		}
	}

	return outcomes
}

// ExecuteBatch submits one batch and classifies its confirmed result
func (e *Executor) ExecuteBatch(ctx context.Context, batch planner.Batch) Outcome {
	outcome := Outcome{
		BatchIndex:   batch.Index,
		TotalUsers:   len(batch.Users),
		PreSnapshots: make(map[common.Address]*staking.UserSnapshot),
	}

	// Capture pre-migration state for a small sample so the verifier
	// can compare after confirmation
	sampleCount := e.sampleSize
	if sampleCount > len(batch.Users) {
		sampleCount = len(batch.Users)
	}
	for _, user := range batch.Users[:sampleCount] {
		outcome.Sampled = append(outcome.Sampled, user)
		snapshot, err := e.service.GetUserSnapshot(ctx, user)
		if err != nil {
			log.Warnf("Failed to capture pre-migration snapshot for %s: %v", user.Hex(), err)
			outcome.PreSnapshots[user] = nil
			continue
		}
		outcome.PreSnapshots[user] = snapshot
	}

	batchCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	log.Infof("🚚 Executing batch %d (%d users)", batch.Index, len(batch.Users))
	started := time.Now()

	result, err := e.service.MigrateUsers(batchCtx, batch.Users)
	metrics.BatchDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		// Submission or confirmation failed entirely. Record the whole
		// batch as failed and move on; the run must not abort.
		log.WithError(err).Errorf("❌ Batch %d submission failed", batch.Index)
		outcome.SuccessCount = 0
		outcome.FailureCount = outcome.TotalUsers
		metrics.BatchesTotal.WithLabelValues("failed").Inc()
		metrics.UsersFailed.Add(float64(outcome.TotalUsers))
		return outcome
	}

	outcome.TxReference = result.TxHash

	switch {
	case result.Success && result.HasEvent:
		// Trust the contract's own accounting. Clamp on the raw uint64
		// so an absurd event value cannot wrap negative.
		count := result.SuccessCount
		if count > uint64(outcome.TotalUsers) {
			log.Warnf("UsersMigrated reported %d successes for a batch of %d, clamping",
				result.SuccessCount, outcome.TotalUsers)
			count = uint64(outcome.TotalUsers)
		}
		outcome.SuccessCount = int(count)
	case result.Success:
		// Confirmed success without a navigable result event: every
		// user migrated. Partial success is never guessed.
		outcome.SuccessCount = outcome.TotalUsers
	default:
		// Confirmed revert
		outcome.SuccessCount = 0
	}
	outcome.FailureCount = outcome.TotalUsers - outcome.SuccessCount

	if outcome.FailureCount == 0 {
		metrics.BatchesTotal.WithLabelValues("success").Inc()
	} else if outcome.SuccessCount == 0 {
		metrics.BatchesTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.BatchesTotal.WithLabelValues("partial").Inc()
	}
	metrics.UsersMigrated.Add(float64(outcome.SuccessCount))
	metrics.UsersFailed.Add(float64(outcome.FailureCount))

	log.WithFields(log.Fields{
		"batch":   batch.Index,
		"total":   outcome.TotalUsers,
		"success": outcome.SuccessCount,
		"failed":  outcome.FailureCount,
		"tx":      outcome.TxReference,
	}).Info("✅ Batch confirmed")

	return outcome
}
