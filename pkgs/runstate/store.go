package runstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/executor"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/reporter"
)

// retention keeps run audit records long enough for operator review of
// re-runs without growing redis unboundedly
const retention = 7 * 24 * time.Hour

// Store persists run audit state to redis. Persistence failures are
// logged and never fail the run: the report to the operator is the
// source of truth, redis is the audit trail.
type Store struct {
	client *redis.Client
	keys   *KeyBuilder
}

// NewStore creates a store namespaced to one StakingV2 deployment
func NewStore(client *redis.Client, contract string) *Store {
	return &Store{
		client: client,
		keys:   NewKeyBuilder(contract),
	}
}

// StartRun records the run's metadata and places it on the timeline
func (s *Store) StartRun(ctx context.Context, runID string, participants, batches int) {
	now := time.Now().Unix()

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, s.keys.RunsTimeline(), redis.Z{
		Score:  float64(now),
		Member: runID,
	})
	pipe.HSet(ctx, s.keys.RunInfo(runID), map[string]interface{}{
		"run_id":       runID,
		"started_at":   now,
		"participants": participants,
		"batches":      batches,
		"status":       "running",
	})
	pipe.Expire(ctx, s.keys.RunInfo(runID), retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).Warn("Failed to persist run start")
	}
}

// RecordOutcome appends one confirmed batch outcome
func (s *Store) RecordOutcome(ctx context.Context, runID string, outcome executor.Outcome) {
	data, err := json.Marshal(map[string]interface{}{
		"batch_index":   outcome.BatchIndex,
		"total_users":   outcome.TotalUsers,
		"success_count": outcome.SuccessCount,
		"failure_count": outcome.FailureCount,
		"tx_reference":  outcome.TxReference,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to marshal batch outcome")
		return
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.keys.RunOutcomes(runID), fmt.Sprintf("%d", outcome.BatchIndex), data)
	pipe.Expire(ctx, s.keys.RunOutcomes(runID), retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).Warnf("Failed to persist outcome for batch %d", outcome.BatchIndex)
	}
}

// FinishRun stores the final summary and report. Called even for
// aborted runs, so partial progress is never silently discarded.
func (s *Store) FinishRun(ctx context.Context, runID string, summary reporter.RunSummary, report string, aborted bool) {
	summaryData, err := json.Marshal(summary)
	if err != nil {
		log.WithError(err).Warn("Failed to marshal run summary")
		return
	}

	status := "completed"
	if aborted {
		status = "aborted"
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.keys.RunSummary(runID), summaryData, retention)
	pipe.Set(ctx, s.keys.RunReport(runID), report, retention)
	pipe.HSet(ctx, s.keys.RunInfo(runID), map[string]interface{}{
		"status":      status,
		"finished_at": time.Now().Unix(),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).Warn("Failed to persist run summary")
	}
}

// LoadSummary fetches a past run's summary, if still retained
func (s *Store) LoadSummary(ctx context.Context, runID string) (*reporter.RunSummary, error) {
	data, err := s.client.Get(ctx, s.keys.RunSummary(runID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to load summary for run %s: %w", runID, err)
	}

	var summary reporter.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary for run %s: %w", runID, err)
	}
	return &summary, nil
}
