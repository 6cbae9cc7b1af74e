package reporter

import (
	"fmt"
	"strings"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/executor"
)

// RunSummary aggregates every batch outcome of one migration run.
// TotalSuccesses + TotalFailures == TotalUsers always holds: a batch
// that failed entirely contributes all of its users to the failures.
type RunSummary struct {
	TotalUsers     int `json:"totalUsers"`
	TotalSuccesses int `json:"totalSuccesses"`
	TotalFailures  int `json:"totalFailures"`
	BatchCount     int `json:"batchCount"`
	FailedBatches  int `json:"failedBatches"`

	// Discovery context, so "no data discovered" is never mistaken
	// for "nothing to report"
	DiscoveryPartial  bool `json:"discoveryPartial"`
	DiscoveryFallback bool `json:"discoveryFallback"`
	DiscoveryFailed   bool `json:"discoveryFailed"`
}

// Summarize folds the ordered batch outcomes into a RunSummary. Pure
// aggregation, no I/O.
func Summarize(outcomes []executor.Outcome) RunSummary {
	summary := RunSummary{BatchCount: len(outcomes)}

	for _, outcome := range outcomes {
		summary.TotalUsers += outcome.TotalUsers
		summary.TotalSuccesses += outcome.SuccessCount
		summary.TotalFailures += outcome.FailureCount
		if outcome.SuccessCount == 0 && outcome.TotalUsers > 0 {
			summary.FailedBatches++
		}
	}

	return summary
}

// Format renders a deterministic human-readable report
func Format(summary RunSummary, outcomes []executor.Outcome) string {
	var b strings.Builder

	b.WriteString("=== Migration Run Summary ===\n")
	fmt.Fprintf(&b, "Batches:   %d (%d fully failed)\n", summary.BatchCount, summary.FailedBatches)
	fmt.Fprintf(&b, "Users:     %d total, %d migrated, %d failed\n",
		summary.TotalUsers, summary.TotalSuccesses, summary.TotalFailures)

	switch {
	case summary.DiscoveryFailed:
		b.WriteString("Discovery: FAILED - ledger head unavailable\n")
	case summary.DiscoveryFallback:
		b.WriteString("Discovery: DEGRADED - operator fallback list used\n")
	case summary.DiscoveryPartial:
		b.WriteString("Discovery: PARTIAL - some event queries failed\n")
	case summary.TotalUsers == 0:
		b.WriteString("Discovery: no participants found\n")
	}

	for _, outcome := range outcomes {
		fmt.Fprintf(&b, "  batch %d: %d/%d migrated", outcome.BatchIndex, outcome.SuccessCount, outcome.TotalUsers)
		if outcome.TxReference != "" {
			fmt.Fprintf(&b, " (tx %s)", outcome.TxReference)
		}
		b.WriteString("\n")
	}

	b.WriteString("=============================")
	return b.String()
}
