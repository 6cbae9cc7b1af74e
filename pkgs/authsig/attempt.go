package authsig

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/metrics"
)

// State of a privileged-call attempt
type State string

const (
	StateCreated   State = "CREATED"
	StateSigned    State = "SIGNED"
	StateSubmitted State = "SUBMITTED"
	StateAccepted  State = "ACCEPTED"
	StateRejected  State = "REJECTED"
)

// NonceSource provides the authority-tracked next nonce for a caller.
// It is always queried fresh per attempt; caching nonces races with
// concurrent privileged calls for the same caller.
type NonceSource interface {
	NextAuthNonce(ctx context.Context, caller common.Address) (uint64, error)
}

// SubmitFunc delivers {message, signature} to the service alongside the
// underlying operation's own arguments
type SubmitFunc func(ctx context.Context, msg *Message, signature []byte) error

// Attempt tracks one privileged call through
// CREATED -> SIGNED -> SUBMITTED -> {ACCEPTED, REJECTED}. The message
// and signature belong to this attempt alone and must not be reused.
type Attempt struct {
	Message   Message
	Signature []byte
	State     State
	Reason    error // Rejection reason, nil unless State is REJECTED
}

// NewAttempt assembles a fresh authorization message. The nonce is
// fetched from the source at call time, never cached.
func NewAttempt(ctx context.Context, nonces NonceSource, caller common.Address, selector [4]byte, deadline time.Time) (*Attempt, error) {
	nonce, err := nonces.NextAuthNonce(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch auth nonce for %s: %w", caller.Hex(), err)
	}

	return &Attempt{
		Message: Message{
			Caller:   caller,
			Selector: selector,
			Nonce:    nonce,
			Deadline: uint64(deadline.Unix()),
		},
		State: StateCreated,
	}, nil
}

// Sign obtains the authority co-signature over the message
func (a *Attempt) Sign(signer *Signer) error {
	if a.State != StateCreated {
		return fmt.Errorf("cannot sign attempt in state %s", a.State)
	}

	signature, err := signer.Sign(&a.Message)
	if err != nil {
		return err
	}

	a.Signature = signature
	a.State = StateSigned
	return nil
}

// Submit delivers the signed message through submit and settles the
// attempt. A rejection is final for this attempt; recovery is a new
// attempt with a fresh nonce.
func (a *Attempt) Submit(ctx context.Context, submit SubmitFunc) error {
	if a.State != StateSigned {
		return fmt.Errorf("cannot submit attempt in state %s", a.State)
	}

	a.State = StateSubmitted
	if err := submit(ctx, &a.Message, a.Signature); err != nil {
		a.State = StateRejected
		a.Reason = err
		metrics.AuthorizationAttempts.WithLabelValues("rejected").Inc()
		log.WithError(err).WithFields(log.Fields{
			"caller": a.Message.Caller.Hex(),
			"nonce":  a.Message.Nonce,
		}).Warn("Privileged call rejected")
		return err
	}

	a.State = StateAccepted
	metrics.AuthorizationAttempts.WithLabelValues("accepted").Inc()
	log.WithFields(log.Fields{
		"caller": a.Message.Caller.Hex(),
		"nonce":  a.Message.Nonce,
	}).Info("✅ Privileged call accepted")
	return nil
}
