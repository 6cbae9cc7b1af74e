package authsig

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x00000000000000000000000000000000000000bb"

var (
	depositSelector = selectorOf("depositFor(address,uint256,(address,bytes4,uint256,uint256),bytes)")
	premiumSelector = selectorOf("setPremiumStatus(address,bool,(address,bytes4,uint256,uint256),bytes)")
)

func selectorOf(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

func newTestSigner(t *testing.T, chainID int64) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer, err := NewSigner(chainID, testContract, hexutil.Encode(crypto.FromECDSA(key))[2:])
	require.NoError(t, err)
	return signer
}

func newTestVerifier(t *testing.T, chainID int64, contract string, authority common.Address) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(chainID, contract, authority)
	require.NoError(t, err)
	return verifier
}

func testMessage(caller common.Address, nonce uint64) *Message {
	return &Message{
		Caller:   caller,
		Selector: depositSelector,
		Nonce:    nonce,
		Deadline: uint64(time.Now().Add(5 * time.Minute).Unix()),
	}
}

func TestSignVerifyRoundtrip(t *testing.T) {
	signer := newTestSigner(t, 1)
	verifier := newTestVerifier(t, 1, testContract, signer.Authority())

	msg := testMessage(common.HexToAddress("0x1111111111111111111111111111111111111111"), 0)

	sig, err := signer.Sign(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	assert.NoError(t, verifier.VerifySignature(msg, sig))
}

func TestVerifyRejectsAnyTamperedField(t *testing.T) {
	signer := newTestSigner(t, 1)
	verifier := newTestVerifier(t, 1, testContract, signer.Authority())

	caller := common.HexToAddress("0x1111111111111111111111111111111111111111")
	msg := testMessage(caller, 7)
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	tampered := []struct {
		name   string
		mutate func(m *Message)
	}{
		{"caller", func(m *Message) { m.Caller = common.HexToAddress("0x2222222222222222222222222222222222222222") }},
		{"selector", func(m *Message) { m.Selector = premiumSelector }},
		{"nonce", func(m *Message) { m.Nonce = 8 }},
		{"deadline", func(m *Message) { m.Deadline += 60 }},
	}

	for _, tc := range tampered {
		t.Run(tc.name, func(t *testing.T) {
			altered := *msg
			tc.mutate(&altered)
			assert.ErrorIs(t, verifier.VerifySignature(&altered, sig), ErrSignatureMismatch)
		})
	}
}

func TestVerifyRejectsWrongDomain(t *testing.T) {
	signer := newTestSigner(t, 1)
	caller := common.HexToAddress("0x1111111111111111111111111111111111111111")
	msg := testMessage(caller, 0)
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	// Same message, different chain
	otherChain := newTestVerifier(t, 137, testContract, signer.Authority())
	assert.ErrorIs(t, otherChain.VerifySignature(msg, sig), ErrSignatureMismatch)

	// Same message, different verifying contract
	otherContract := newTestVerifier(t, 1, "0x00000000000000000000000000000000000000cc", signer.Authority())
	assert.ErrorIs(t, otherContract.VerifySignature(msg, sig), ErrSignatureMismatch)
}

func TestVerifyRejectsWrongAuthority(t *testing.T) {
	signer := newTestSigner(t, 1)
	impostor := newTestSigner(t, 1)
	verifier := newTestVerifier(t, 1, testContract, signer.Authority())

	msg := testMessage(common.HexToAddress("0x1111111111111111111111111111111111111111"), 0)
	sig, err := impostor.Sign(msg)
	require.NoError(t, err)

	assert.ErrorIs(t, verifier.VerifySignature(msg, sig), ErrSignatureMismatch)
}

func TestRecoverAddressInputValidation(t *testing.T) {
	_, err := RecoverAddress(make([]byte, 32), make([]byte, 64))
	assert.Error(t, err)

	bad := make([]byte, 65)
	bad[64] = 5
	_, err = RecoverAddress(make([]byte, 32), bad)
	assert.Error(t, err)
}

func TestRecoverAddressDoesNotMutateSignature(t *testing.T) {
	signer := newTestSigner(t, 1)
	msg := testMessage(common.HexToAddress("0x1111111111111111111111111111111111111111"), 0)
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	v := sig[64]
	hash, err := hashMessage(signer.chainID, signer.verifyingContract, msg)
	require.NoError(t, err)

	recovered, err := RecoverAddress(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Authority(), recovered)
	assert.Equal(t, v, sig[64])
}

func TestAcceptorRejectsReplay(t *testing.T) {
	signer := newTestSigner(t, 1)
	verifier := newTestVerifier(t, 1, testContract, signer.Authority())
	acceptor := NewAcceptor(verifier)

	caller := common.HexToAddress("0x1111111111111111111111111111111111111111")
	msg := testMessage(caller, 0)
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, acceptor.Accept(msg, sig, now))

	// Exact replay of an already-consumed authorization
	assert.ErrorIs(t, acceptor.Accept(msg, sig, now), ErrStaleNonce)

	// The next nonce is accepted
	next := testMessage(caller, 1)
	nextSig, err := signer.Sign(next)
	require.NoError(t, err)
	assert.NoError(t, acceptor.Accept(next, nextSig, now))
}

func TestAcceptorRejectsExpiredDeadline(t *testing.T) {
	signer := newTestSigner(t, 1)
	verifier := newTestVerifier(t, 1, testContract, signer.Authority())
	acceptor := NewAcceptor(verifier)

	caller := common.HexToAddress("0x1111111111111111111111111111111111111111")
	msg := testMessage(caller, 0)
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	err = acceptor.Accept(msg, sig, time.Unix(int64(msg.Deadline)+1, 0))
	assert.ErrorIs(t, err, ErrExpiredAuthorization)

	// Rejection consumed nothing: the same message still passes in time
	assert.NoError(t, acceptor.Accept(msg, sig, time.Now()))
}

func TestAcceptorBindsSelector(t *testing.T) {
	signer := newTestSigner(t, 1)
	verifier := newTestVerifier(t, 1, testContract, signer.Authority())
	acceptor := NewAcceptor(verifier)

	caller := common.HexToAddress("0x1111111111111111111111111111111111111111")
	msg := testMessage(caller, 0)
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	// An authorization signed for depositFor cannot gate setPremiumStatus
	hijacked := *msg
	hijacked.Selector = premiumSelector
	assert.ErrorIs(t, acceptor.Accept(&hijacked, sig, time.Now()), ErrSignatureMismatch)
}

func TestAttemptStateMachine(t *testing.T) {
	signer := newTestSigner(t, 1)
	verifier := newTestVerifier(t, 1, testContract, signer.Authority())
	acceptor := NewAcceptor(verifier)

	caller := common.HexToAddress("0x1111111111111111111111111111111111111111")
	deadline := time.Now().Add(5 * time.Minute)

	attempt, err := NewAttempt(context.Background(), acceptor, caller, depositSelector, deadline)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, attempt.State)
	assert.Equal(t, uint64(0), attempt.Message.Nonce)

	// Submit before Sign is a sequencing error
	err = attempt.Submit(context.Background(), func(context.Context, *Message, []byte) error { return nil })
	assert.Error(t, err)

	require.NoError(t, attempt.Sign(signer))
	assert.Equal(t, StateSigned, attempt.State)

	err = attempt.Submit(context.Background(), func(_ context.Context, msg *Message, sig []byte) error {
		return acceptor.Accept(msg, sig, time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, attempt.State)
	assert.Nil(t, attempt.Reason)

	// A new attempt picks up the consumed nonce
	second, err := NewAttempt(context.Background(), acceptor, caller, depositSelector, deadline)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.Message.Nonce)
}

func TestAttemptRejectionIsFinal(t *testing.T) {
	signer := newTestSigner(t, 1)
	verifier := newTestVerifier(t, 1, testContract, signer.Authority())
	acceptor := NewAcceptor(verifier)

	caller := common.HexToAddress("0x1111111111111111111111111111111111111111")

	// Deadline already in the past when the attempt is built
	attempt, err := NewAttempt(context.Background(), acceptor, caller, depositSelector, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, attempt.Sign(signer))

	err = attempt.Submit(context.Background(), func(_ context.Context, msg *Message, sig []byte) error {
		return acceptor.Accept(msg, sig, time.Now())
	})
	assert.ErrorIs(t, err, ErrExpiredAuthorization)
	assert.Equal(t, StateRejected, attempt.State)
	assert.ErrorIs(t, attempt.Reason, ErrExpiredAuthorization)

	// Settled attempts cannot be resubmitted
	assert.Error(t, attempt.Submit(context.Background(), func(context.Context, *Message, []byte) error { return nil }))
}

func TestNewSignerValidation(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hexutil.Encode(crypto.FromECDSA(key))[2:]

	_, err = NewSigner(1, "not-an-address", keyHex)
	assert.Error(t, err)

	_, err = NewSigner(1, testContract, "zz")
	assert.Error(t, err)
}
