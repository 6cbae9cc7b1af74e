package scanner

import (
	"github.com/ethereum/go-ethereum/common"
)

// ParticipantSet is an insertion-ordered set of participant addresses.
// Addresses are normalized through common.Address, so any two textual
// encodings of the same key collapse to one entry.
type ParticipantSet struct {
	order []common.Address
	seen  map[common.Address]struct{}
}

// NewParticipantSet creates an empty participant set
func NewParticipantSet() *ParticipantSet {
	return &ParticipantSet{
		seen: make(map[common.Address]struct{}),
	}
}

// Add inserts an address, preserving discovery order. Returns true if
// the address was not already present.
func (s *ParticipantSet) Add(addr common.Address) bool {
	if _, exists := s.seen[addr]; exists {
		return false
	}
	s.seen[addr] = struct{}{}
	s.order = append(s.order, addr)
	return true
}

// AddHex inserts a hex-encoded address after normalization. Invalid
// strings are rejected.
func (s *ParticipantSet) AddHex(addr string) bool {
	if !common.IsHexAddress(addr) {
		return false
	}
	return s.Add(common.HexToAddress(addr))
}

// Contains reports semantic membership (normalized key equality)
func (s *ParticipantSet) Contains(addr common.Address) bool {
	_, exists := s.seen[addr]
	return exists
}

// Len returns the number of distinct participants
func (s *ParticipantSet) Len() int {
	return len(s.order)
}

// Addresses returns the participants in discovery order. The returned
// slice is a copy and safe for the caller to retain.
func (s *ParticipantSet) Addresses() []common.Address {
	out := make([]common.Address, len(s.order))
	copy(out, s.order)
	return out
}
