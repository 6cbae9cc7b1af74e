package authsig

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Acceptor mirrors the contract-side verification of an authorization:
// signature validity, nonce freshness and deadline. It exists so the
// full privileged-call protocol can be exercised against a local
// deployment without a chain. The contract remains the source of truth
// in production.
type Acceptor struct {
	verifier *Verifier

	mu     sync.Mutex
	nonces map[common.Address]uint64
}

// NewAcceptor creates an acceptor verifying against the given authority
func NewAcceptor(verifier *Verifier) *Acceptor {
	return &Acceptor{
		verifier: verifier,
		nonces:   make(map[common.Address]uint64),
	}
}

// NextAuthNonce returns the next expected nonce for a caller. Satisfies
// NonceSource so attempts can be built against a local acceptor.
func (a *Acceptor) NextAuthNonce(_ context.Context, caller common.Address) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nonces[caller], nil
}

// Accept performs the whole verification the contract would: deadline
// first, then nonce freshness, then signature. The nonce is consumed
// only when every check passes, so a rejected call has no effect.
func (a *Acceptor) Accept(msg *Message, signature []byte, now time.Time) error {
	if uint64(now.Unix()) > msg.Deadline {
		return ErrExpiredAuthorization
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if msg.Nonce != a.nonces[msg.Caller] {
		return ErrStaleNonce
	}

	if err := a.verifier.VerifySignature(msg, signature); err != nil {
		return err
	}

	a.nonces[msg.Caller]++
	return nil
}
