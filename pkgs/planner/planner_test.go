package planner

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeUsers(n int) []common.Address {
	users := make([]common.Address, n)
	for i := 0; i < n; i++ {
		users[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}
	return users
}

func TestPlanPartitionsExactly(t *testing.T) {
	users := makeUsers(120)

	batches, err := Plan(users, 50)
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Users, 50)
	assert.Len(t, batches[1].Users, 50)
	assert.Len(t, batches[2].Users, 20)

	// Concatenation reproduces the input order exactly
	var flat []common.Address
	for i, batch := range batches {
		assert.Equal(t, i, batch.Index)
		flat = append(flat, batch.Users...)
	}
	assert.Equal(t, users, flat)
}

func TestPlanExactMultiple(t *testing.T) {
	batches, err := Plan(makeUsers(100), 50)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[1].Users, 50)
}

func TestPlanSingleBatch(t *testing.T) {
	batches, err := Plan(makeUsers(7), 50)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Users, 7)
}

func TestPlanEmptyInput(t *testing.T) {
	batches, err := Plan(nil, 50)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestPlanInvalidBatchSize(t *testing.T) {
	_, err := Plan(makeUsers(10), 0)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)

	_, err = Plan(makeUsers(10), -5)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestPlanBatchCount(t *testing.T) {
	for _, tc := range []struct {
		n, size, want int
	}{
		{0, 1, 0},
		{1, 1, 1},
		{49, 50, 1},
		{50, 50, 1},
		{51, 50, 2},
		{250, 50, 5},
	} {
		batches, err := Plan(makeUsers(tc.n), tc.size)
		require.NoError(t, err)
		assert.Len(t, batches, tc.want, "n=%d size=%d", tc.n, tc.size)
	}
}
