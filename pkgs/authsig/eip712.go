package authsig

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	log "github.com/sirupsen/logrus"
)

// EIP-712 domain parameters. A signature produced for one deployment
// (name, version, chain, contract) can never verify against another.
const (
	DomainName    = "MovinStaking"
	DomainVersion = "2"
)

// Errors surfaced to privileged-call callers
var (
	ErrExpiredAuthorization = errors.New("authorization deadline has passed")
	ErrStaleNonce           = errors.New("authorization nonce already consumed or out of sequence")
	ErrSignatureMismatch    = errors.New("signature does not verify against domain, message and authority key")
)

// Message binds one privileged-call attempt to a caller, a single
// operation, an anti-replay nonce and an expiry. Created fresh per
// attempt and consumed exactly once by the contract.
type Message struct {
	Caller   common.Address
	Selector [4]byte // 4-byte function identifier of the gated operation
	Nonce    uint64  // Authority-tracked next nonce for the caller
	Deadline uint64  // Unix timestamp after which verification rejects
}

// Signer produces authority co-signatures over domain-separated
// authorization messages
type Signer struct {
	chainID           *big.Int
	verifyingContract common.Address
	privateKey        *ecdsa.PrivateKey
	authority         common.Address
}

// NewSigner creates a signer from the authority's hex-encoded private key
func NewSigner(chainID int64, verifyingContract string, privateKeyHex string) (*Signer, error) {
	if !common.IsHexAddress(verifyingContract) {
		return nil, fmt.Errorf("invalid verifying contract address: %s", verifyingContract)
	}

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid authority private key: %w", err)
	}

	return &Signer{
		chainID:           big.NewInt(chainID),
		verifyingContract: common.HexToAddress(verifyingContract),
		privateKey:        privateKey,
		authority:         crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Authority returns the address whose key co-signs authorizations
func (s *Signer) Authority() common.Address {
	return s.authority
}

// Sign produces the 65-byte [R || S || V] signature over the EIP-712
// hash of the message, with V in {27, 28} as the contract expects
func (s *Signer) Sign(msg *Message) ([]byte, error) {
	hash, err := hashMessage(s.chainID, s.verifyingContract, msg)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}
	signature[64] += 27

	log.Debugf("Signed authorization: caller=%s, selector=%s, nonce=%d, deadline=%d, hash=0x%x",
		msg.Caller.Hex(), hexutil.Encode(msg.Selector[:]), msg.Nonce, msg.Deadline, hash)

	return signature, nil
}

// Verifier checks authority co-signatures the way the contract does
type Verifier struct {
	chainID           *big.Int
	verifyingContract common.Address
	authority         common.Address
}

// NewVerifier creates a verifier bound to one deployment and one
// authority key
func NewVerifier(chainID int64, verifyingContract string, authority common.Address) (*Verifier, error) {
	if !common.IsHexAddress(verifyingContract) {
		return nil, fmt.Errorf("invalid verifying contract address: %s", verifyingContract)
	}

	return &Verifier{
		chainID:           big.NewInt(chainID),
		verifyingContract: common.HexToAddress(verifyingContract),
		authority:         authority,
	}, nil
}

// VerifySignature recovers the signer and rejects with
// ErrSignatureMismatch unless it is the expected authority. Any altered
// message field changes the hash and fails recovery comparison.
func (v *Verifier) VerifySignature(msg *Message, signature []byte) error {
	hash, err := hashMessage(v.chainID, v.verifyingContract, msg)
	if err != nil {
		return err
	}

	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		log.Debugf("Authorization recovery failed (hash=0x%x): %v", hash, err)
		return ErrSignatureMismatch
	}

	if recovered != v.authority {
		log.Debugf("Authorization signer mismatch: recovered=%s, expected=%s",
			recovered.Hex(), v.authority.Hex())
		return ErrSignatureMismatch
	}

	return nil
}

// RecoverAddress recovers the signer's address from an EIP-712 hash and
// a 65-byte [R || S || V] signature with V in {27, 28}
func RecoverAddress(msgHash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d, expected 65", len(signature))
	}

	if signature[64] != 27 && signature[64] != 28 {
		return common.Address{}, fmt.Errorf("invalid recovery id: got %d, expected 27 or 28", signature[64])
	}

	// Ecrecover expects V to be 0 or 1; do not mutate the caller's slice
	adjusted := make([]byte, 65)
	copy(adjusted, signature)
	adjusted[64] -= 27

	pubKeyRaw, err := crypto.Ecrecover(msgHash, adjusted)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover failed: %w", err)
	}

	pubKey, err := crypto.UnmarshalPubkey(pubKeyRaw)
	if err != nil {
		return common.Address{}, fmt.Errorf("pubkey unmarshal failed: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// hashMessage computes the EIP-712 hash binding the message to the
// domain {name, version, chainId, verifyingContract}
func hashMessage(chainID *big.Int, verifyingContract common.Address, msg *Message) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Authorization": []apitypes.Type{
				{Name: "caller", Type: "address"},
				{Name: "selector", Type: "bytes4"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Authorization",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"caller":   msg.Caller.Hex(),
			"selector": hexutil.Encode(msg.Selector[:]),
			"nonce":    (*math.HexOrDecimal256)(new(big.Int).SetUint64(msg.Nonce)),
			"deadline": (*math.HexOrDecimal256)(new(big.Int).SetUint64(msg.Deadline)),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// EIP-712 hash: keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(message))
	rawData := append([]byte{0x19, 0x01}, domainSeparator...)
	rawData = append(rawData, typedDataHash...)
	hash := crypto.Keccak256Hash(rawData)

	return hash.Bytes(), nil
}
