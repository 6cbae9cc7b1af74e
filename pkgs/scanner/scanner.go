package scanner

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/metrics"
)

// LedgerClient is the narrow ledger query surface the scanner needs.
// *ethclient.Client satisfies it.
type LedgerClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Config for EventScanner
type Config struct {
	Contract      common.Address // Legacy staking contract emitting the tracked events
	EventKinds    []string       // Event signatures, e.g. "Staked(address,uint256)"
	Windows       []uint64       // Progressively larger windows (blocks back from head)
	RangeLimit    uint64         // Max blocks per FilterLogs call (0 = no chunking)
	QueryTimeout  time.Duration  // Bound on each individual ledger call (0 = unbounded)
	FallbackUsers []string       // Operator-provided list used only when every window is empty
}

// EventScanner discovers every participant that ever emitted a tracked
// event on the legacy contract. Discovery is best effort: individual
// query failures are logged and treated as zero results, never as a
// reason to abort the remaining kinds or windows.
type EventScanner struct {
	client        LedgerClient
	contract      common.Address
	eventKinds    []string
	eventSigs     []common.Hash // Cached keccak256 signatures, computed once
	windows       []uint64
	rangeLimit    uint64
	queryTimeout  time.Duration
	fallbackUsers []string
}

// Result is the outcome of one discovery pass
type Result struct {
	Participants *ParticipantSet
	Window       uint64 // Window (blocks back from head) that produced results, 0 if none
	Partial      bool   // At least one event-kind query failed
	UsedFallback bool   // Participants came from the operator-provided list
}

// NewEventScanner creates a scanner over the given ledger client
func NewEventScanner(client LedgerClient, cfg *Config) *EventScanner {
	sigs := make([]common.Hash, len(cfg.EventKinds))
	for i, kind := range cfg.EventKinds {
		sigs[i] = crypto.Keccak256Hash([]byte(kind))
		log.Debugf("Tracked event %s signature: %s", kind, sigs[i].Hex())
	}

	return &EventScanner{
		client:        client,
		contract:      cfg.Contract,
		eventKinds:    cfg.EventKinds,
		eventSigs:     sigs,
		windows:       cfg.Windows,
		rangeLimit:    cfg.RangeLimit,
		queryTimeout:  cfg.QueryTimeout,
		fallbackUsers: cfg.FallbackUsers,
	}
}

// Scan walks the configured windows from narrowest to widest, anchored
// at the current chain head, and stops at the first window that yields
// any participants. The same fixed range always yields the same set, so
// re-running discovery is safe.
func (s *EventScanner) Scan(ctx context.Context) (*Result, error) {
	head, err := s.headNumber(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Participants: NewParticipantSet()}

	for _, window := range s.windows {
		start := uint64(0)
		if head > window {
			start = head - window
		}

		partial := s.scanRange(ctx, start, head, result.Participants)
		result.Partial = result.Partial || partial

		if result.Participants.Len() > 0 {
			// Cheapest sufficient range: no need to widen further
			result.Window = window
			log.Infof("📋 Discovered %d participants in last %d blocks (head %d)",
				result.Participants.Len(), window, head)
			return result, nil
		}

		log.Debugf("No participants in window of %d blocks, widening", window)

		if start == 0 {
			// Already scanned from genesis, widening cannot help
			break
		}
	}

	if len(s.fallbackUsers) > 0 {
		// Degraded mode: discovery found nothing but an operator list
		// exists. This is logged loudly and flagged on the result so it
		// can never be mistaken for real discovery.
		log.Warnf("⚠️  No events found in any scan window - falling back to operator-provided list of %d addresses",
			len(s.fallbackUsers))
		for _, addr := range s.fallbackUsers {
			if !result.Participants.AddHex(addr) {
				log.Warnf("Skipping invalid or duplicate fallback address %q", addr)
			}
		}
		result.UsedFallback = true
		return result, nil
	}

	log.Info("No participants discovered and no fallback list configured")
	return result, nil
}

// ScanRange scans a fixed [start, end] range once. Exposed for
// re-verification of a past discovery pass.
func (s *EventScanner) ScanRange(ctx context.Context, start, end uint64) (*Result, error) {
	result := &Result{Participants: NewParticipantSet()}
	result.Partial = s.scanRange(ctx, start, end, result.Participants)
	return result, nil
}

// scanRange issues one query per tracked event kind over [start, end],
// chunked to the ledger's range limit. Returns true if any query failed.
func (s *EventScanner) scanRange(ctx context.Context, start, end uint64, set *ParticipantSet) bool {
	partial := false

	for i, sig := range s.eventSigs {
		kind := s.eventKinds[i]

		from := start
		for from <= end {
			to := end
			if s.rangeLimit > 0 && to-from >= s.rangeLimit {
				to = from + s.rangeLimit - 1
			}

			query := ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(from),
				ToBlock:   new(big.Int).SetUint64(to),
				Addresses: []common.Address{s.contract},
				Topics:    [][]common.Hash{{sig}},
			}

			logs, err := s.filterLogs(ctx, query)
			if err != nil {
				// One failed kind must not abort the others
				log.Errorf("Failed to filter %s logs in [%d, %d]: %v", kind, from, to, err)
				metrics.ScanQueries.WithLabelValues("error").Inc()
				partial = true
				break
			}
			metrics.ScanQueries.WithLabelValues("ok").Inc()

			for _, vLog := range logs {
				if addr, ok := participantFromLog(vLog); ok {
					set.Add(addr)
				}
			}

			if to == end {
				break
			}
			from = to + 1
		}
	}

	return partial
}

// headNumber fetches the chain head with the per-query bound applied
func (s *EventScanner) headNumber(ctx context.Context) (uint64, error) {
	queryCtx, cancel := s.queryContext(ctx)
	defer cancel()
	return s.client.BlockNumber(queryCtx)
}

// filterLogs issues one bounded log query. A query that outlives the
// timeout fails like any other query; discovery is never allowed to
// hang on a single slow ledger call.
func (s *EventScanner) filterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	queryCtx, cancel := s.queryContext(ctx)
	defer cancel()
	return s.client.FilterLogs(queryCtx, query)
}

func (s *EventScanner) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// participantFromLog extracts the participant address from topics[1].
// All tracked events index the user address as the first topic.
func participantFromLog(vLog types.Log) (common.Address, bool) {
	if len(vLog.Topics) < 2 {
		log.Warnf("Skipping malformed event log: expected at least 2 topics, got %d", len(vLog.Topics))
		return common.Address{}, false
	}
	return common.HexToAddress(vLog.Topics[1].Hex()), true
}
