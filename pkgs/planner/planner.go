package planner

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidBatchSize is returned when the configured batch size is not positive
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// Batch is a fixed-size slice of the participant list, identified by its
// position in the run
type Batch struct {
	Index int
	Users []common.Address
}

// Plan partitions users into contiguous batches of at most size entries.
// Batch i holds users[i*size : min((i+1)*size, n)], so concatenating the
// batches in order reproduces the input exactly. Pure function, no side
// effects.
func Plan(users []common.Address, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, ErrInvalidBatchSize
	}

	batches := make([]Batch, 0, (len(users)+size-1)/size)
	for start := 0; start < len(users); start += size {
		end := start + size
		if end > len(users) {
			end = len(users)
		}
		batches = append(batches, Batch{
			Index: len(batches),
			Users: users[start:end],
		})
	}

	return batches, nil
}
