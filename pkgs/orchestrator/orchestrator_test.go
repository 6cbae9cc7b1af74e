package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/executor"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/scanner"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/staking"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/verifier"
)

var (
	stakedSig    = crypto.Keccak256Hash([]byte("Staked(address,uint256)"))
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// fakeLedger emits one Staked log per seeded user, all in the most
// recent block
type fakeLedger struct {
	head  uint64
	users []common.Address
}

func (f *fakeLedger) BlockNumber(_ context.Context) (uint64, error) {
	if f.head == 0 {
		return 0, errors.New("ledger unavailable")
	}
	return f.head, nil
}

func (f *fakeLedger) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if q.Topics[0][0] != stakedSig {
		return nil, nil
	}
	logs := make([]types.Log, 0, len(f.users))
	for _, user := range f.users {
		logs = append(logs, types.Log{
			Address:     testContract,
			Topics:      []common.Hash{stakedSig, common.BytesToHash(user.Bytes())},
			BlockNumber: f.head,
		})
	}
	return logs, nil
}

// fakeService confirms every batch unless told otherwise
type fakeService struct {
	calls     int
	failCall  int // 1-based call index to fail, 0 for never
	onMigrate func()
	snapshots map[common.Address]*staking.UserSnapshot
}

func (f *fakeService) MigrateUsers(_ context.Context, users []common.Address) (*staking.MigrationResult, error) {
	f.calls++
	if f.onMigrate != nil {
		f.onMigrate()
	}
	if f.calls == f.failCall {
		return nil, errors.New("transaction rejected")
	}
	return &staking.MigrationResult{TxHash: "0xok", Success: true}, nil
}

func (f *fakeService) GetUserSnapshot(_ context.Context, user common.Address) (*staking.UserSnapshot, error) {
	snap, ok := f.snapshots[user]
	if !ok {
		return nil, errors.New("user not found")
	}
	return snap, nil
}

func makeUsers(n int) []common.Address {
	users := make([]common.Address, n)
	for i := 0; i < n; i++ {
		users[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}
	return users
}

func newComponents(ledger *fakeLedger, service *fakeService, sampleSize int) *Components {
	s := scanner.NewEventScanner(ledger, &scanner.Config{
		Contract:   testContract,
		EventKinds: []string{"Staked(address,uint256)"},
		Windows:    []uint64{1000},
	})

	c := &Components{
		RunID:     "test-run",
		Scanner:   s,
		BatchSize: 50,
		Executor:  executor.New(service, sampleSize, 0),
	}
	if sampleSize > 0 {
		c.Verifier = verifier.New(service)
	}
	return c
}

func TestRunFullPipeline(t *testing.T) {
	ledger := &fakeLedger{head: 5000, users: makeUsers(120)}
	service := &fakeService{}

	result, err := Run(context.Background(), newComponents(ledger, service, 0))
	require.NoError(t, err)

	assert.Equal(t, 120, result.Summary.TotalUsers)
	assert.Equal(t, 120, result.Summary.TotalSuccesses)
	assert.Zero(t, result.Summary.TotalFailures)
	assert.Equal(t, 3, result.Summary.BatchCount)
	assert.False(t, result.Aborted)
	assert.Contains(t, result.Report, "120 total, 120 migrated, 0 failed")
	assert.Equal(t, 3, service.calls)
}

func TestRunContainsBatchFailure(t *testing.T) {
	ledger := &fakeLedger{head: 5000, users: makeUsers(120)}
	service := &fakeService{failCall: 2}

	result, err := Run(context.Background(), newComponents(ledger, service, 0))
	require.NoError(t, err)

	assert.Equal(t, 70, result.Summary.TotalSuccesses)
	assert.Equal(t, 50, result.Summary.TotalFailures)
	assert.Equal(t, 1, result.Summary.FailedBatches)
	assert.Equal(t, result.Summary.TotalUsers,
		result.Summary.TotalSuccesses+result.Summary.TotalFailures)
	// The failed batch never stops the run
	assert.Equal(t, 3, service.calls)
}

func TestRunEmptyDiscoveryIsNotAnError(t *testing.T) {
	ledger := &fakeLedger{head: 5000}
	service := &fakeService{}

	result, err := Run(context.Background(), newComponents(ledger, service, 0))
	require.NoError(t, err)

	assert.Zero(t, result.Summary.TotalUsers)
	assert.Zero(t, service.calls)
	assert.Contains(t, result.Report, "no participants found")
}

func TestRunDiscoveryFailureStillReports(t *testing.T) {
	ledger := &fakeLedger{head: 0}
	service := &fakeService{}

	result, err := Run(context.Background(), newComponents(ledger, service, 0))
	require.Error(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Summary.DiscoveryFailed)
	assert.Contains(t, result.Report, "FAILED")
	assert.Zero(t, service.calls)
}

func TestRunInvalidBatchSize(t *testing.T) {
	ledger := &fakeLedger{head: 5000, users: makeUsers(10)}
	c := newComponents(ledger, &fakeService{}, 0)
	c.BatchSize = 0

	result, err := Run(context.Background(), c)
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestRunAbortKeepsCompletedBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ledger := &fakeLedger{head: 5000, users: makeUsers(150)}
	service := &fakeService{}
	service.onMigrate = func() {
		if service.calls == 2 {
			cancel()
		}
	}

	result, err := Run(ctx, newComponents(ledger, service, 0))
	require.NoError(t, err)

	assert.True(t, result.Aborted)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, 100, result.Summary.TotalUsers)
	assert.Contains(t, result.Report, "100 total")
}

func TestRunVerifiesSampledUsers(t *testing.T) {
	users := makeUsers(10)
	snapshots := make(map[common.Address]*staking.UserSnapshot, len(users))
	for _, user := range users {
		snapshots[user] = &staking.UserSnapshot{
			StakeCount:     big.NewInt(2),
			PendingRewards: big.NewInt(50),
		}
	}

	ledger := &fakeLedger{head: 5000, users: users}
	service := &fakeService{snapshots: snapshots}

	result, err := Run(context.Background(), newComponents(ledger, service, 3))
	require.NoError(t, err)

	notes, ok := result.Notes[0]
	require.True(t, ok)
	require.Len(t, notes, 3)
	for _, note := range notes {
		assert.Equal(t, verifier.StatusConsistent, note.Status)
	}
}
