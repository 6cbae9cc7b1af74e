package orchestrator

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/executor"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/planner"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/reporter"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/runstate"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/scanner"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/verifier"
)

// Components wires one migration run. Scanner and Executor are
// required; Verifier and Store are optional diagnostics.
type Components struct {
	RunID     string
	Scanner   *scanner.EventScanner
	BatchSize int
	Executor  *executor.Executor
	Verifier  *verifier.Verifier
	Store     *runstate.Store
}

// RunResult is everything one run produced. A result is returned even
// for aborted or empty runs; the report is always producible.
type RunResult struct {
	Summary  reporter.RunSummary
	Outcomes []executor.Outcome
	Notes    map[int][]verifier.Note // Batch index -> verification notes
	Report   string
	Aborted  bool
}

// Run executes the full pipeline: discovery, planning, sequential batch
// execution with per-batch verification, and reporting. The pipeline is
// a single logical thread of control; every external call is a blocking
// point and batches never overlap.
//
// Cancelling ctx aborts between batches. Only configuration errors
// (invalid batch size) abort without a result.
func Run(ctx context.Context, c *Components) (*RunResult, error) {
	result := &RunResult{Notes: make(map[int][]verifier.Note)}

	// Discovery
	scan, err := c.Scanner.Scan(ctx)
	if err != nil {
		// Could not even read the chain head. Still emit a report that
		// says so; "discovery error" must stay distinguishable from
		// "nothing discovered".
		log.WithError(err).Error("❌ Discovery failed")
		result.Summary.DiscoveryFailed = true
		result.Report = reporter.Format(result.Summary, nil)
		return result, fmt.Errorf("discovery failed: %w", err)
	}

	participants := scan.Participants.Addresses()
	log.Infof("Discovered %d participants (window=%d, partial=%v, fallback=%v)",
		len(participants), scan.Window, scan.Partial, scan.UsedFallback)

	// Planning
	batches, err := planner.Plan(participants, c.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Store != nil {
		c.Store.StartRun(ctx, c.RunID, len(participants), len(batches))
	}

	// Execution, strictly sequential, verification after each batch
	result.Outcomes = c.Executor.ExecuteAll(ctx, batches, func(outcome executor.Outcome) {
		if c.Store != nil {
			c.Store.RecordOutcome(ctx, c.RunID, outcome)
		}

		if c.Verifier != nil && len(outcome.Sampled) > 0 {
			result.Notes[outcome.BatchIndex] = c.Verifier.VerifyBatch(ctx, outcome)
		}
	})

	if len(result.Outcomes) < len(batches) {
		log.Warnf("⚠️  Run %s aborted after %d of %d batches", c.RunID, len(result.Outcomes), len(batches))
		result.Aborted = true
	}

	// Reporting covers completed batches even when aborted
	result.Summary = reporter.Summarize(result.Outcomes)
	result.Summary.DiscoveryPartial = scan.Partial
	result.Summary.DiscoveryFallback = scan.UsedFallback
	result.Report = reporter.Format(result.Summary, result.Outcomes)

	if c.Store != nil {
		// Persist with a fresh context: the run context may already be
		// cancelled when we get here on abort
		c.Store.FinishRun(context.WithoutCancel(ctx), c.RunID, result.Summary, result.Report, result.Aborted)
	}

	return result, nil
}
