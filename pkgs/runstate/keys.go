package runstate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// KeyBuilder generates redis keys namespaced by the StakingV2
// deployment, so runs against different deployments never collide
type KeyBuilder struct {
	Contract string
}

// checksumAddress converts an Ethereum address to checksummed format
// (EIP-55) for consistent keys. Non-address input passes through.
func checksumAddress(addr string) string {
	if addr == "" {
		return addr
	}
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}

// NewKeyBuilder creates a KeyBuilder for one deployment
func NewKeyBuilder(contract string) *KeyBuilder {
	return &KeyBuilder{Contract: checksumAddress(contract)}
}

// RunsTimeline returns the zset of run IDs ordered by start time
func (kb *KeyBuilder) RunsTimeline() string {
	return fmt.Sprintf("%s:migration:runs", kb.Contract)
}

// RunInfo returns the hash holding one run's metadata
func (kb *KeyBuilder) RunInfo(runID string) string {
	return fmt.Sprintf("%s:migration:run:%s:info", kb.Contract, runID)
}

// RunOutcomes returns the hash of per-batch outcomes, keyed by batch index
func (kb *KeyBuilder) RunOutcomes(runID string) string {
	return fmt.Sprintf("%s:migration:run:%s:outcomes", kb.Contract, runID)
}

// RunSummary returns the key holding the run's final summary JSON
func (kb *KeyBuilder) RunSummary(runID string) string {
	return fmt.Sprintf("%s:migration:run:%s:summary", kb.Contract, runID)
}

// RunReport returns the key holding the human-readable report
func (kb *KeyBuilder) RunReport(runID string) string {
	return fmt.Sprintf("%s:migration:run:%s:report", kb.Contract, runID)
}
