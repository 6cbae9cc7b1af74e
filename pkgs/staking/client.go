package staking

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/authsig"
)

// StakingV2 binds to the new staking contract. The embedded key belongs
// to the backend authority, which both submits migration transactions
// and co-signs privileged calls.
type StakingV2 struct {
	client        *ethclient.Client
	contractAddr  common.Address
	abi           abi.ABI
	privateKey    *ecdsa.PrivateKey
	authorityAddr common.Address
	chainID       *big.Int
	pollInterval  time.Duration
}

// MigrationResult holds the confirmed outcome of one migrateUsers call
type MigrationResult struct {
	TxHash       string
	BlockNumber  uint64
	GasUsed      uint64
	Success      bool
	SuccessCount uint64 // From the UsersMigrated event when emitted
	TotalUsers   uint64
	HasEvent     bool // Whether the contract emitted a navigable result event
}

// UserSnapshot is the observable per-user state used for verification
type UserSnapshot struct {
	StakeCount     *big.Int
	PendingRewards *big.Int
	LastActivityAt uint64
	IsPremium      bool
}

// NewStakingV2 creates a contract client for the given deployment.
// confirmationPoll is the receipt polling interval while waiting for a
// submitted transaction to be mined (0 uses a 1s default).
func NewStakingV2(rpcURL string, contractAddr string, authorityPrivateKey string, chainID int64, confirmationPoll time.Duration) (*StakingV2, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}

	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address: %s", contractAddr)
	}

	privateKey, err := crypto.HexToECDSA(authorityPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	stakingABI, err := abi.JSON(strings.NewReader(StakingV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to load StakingV2 ABI: %w", err)
	}

	if confirmationPoll <= 0 {
		confirmationPoll = time.Second
	}

	return &StakingV2{
		client:        client,
		contractAddr:  common.HexToAddress(contractAddr),
		abi:           stakingABI,
		privateKey:    privateKey,
		authorityAddr: crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:       big.NewInt(chainID),
		pollInterval:  confirmationPoll,
	}, nil
}

// Ledger returns the underlying client for raw ledger queries
func (sc *StakingV2) Ledger() *ethclient.Client {
	return sc.client
}

// Authority returns the submitting authority's address
func (sc *StakingV2) Authority() common.Address {
	return sc.authorityAddr
}

// ChainID returns the chain the client is bound to
func (sc *StakingV2) ChainID() int64 {
	return sc.chainID.Int64()
}

// ContractAddress returns the StakingV2 deployment address
func (sc *StakingV2) ContractAddress() common.Address {
	return sc.contractAddr
}

// SelectorFor returns the 4-byte identifier of a contract method, used
// to bind an authorization signature to exactly one operation
func (sc *StakingV2) SelectorFor(method string) ([4]byte, error) {
	var selector [4]byte
	m, ok := sc.abi.Methods[method]
	if !ok {
		return selector, fmt.Errorf("unknown method %q", method)
	}
	copy(selector[:], m.ID)
	return selector, nil
}

// MigrateUsers submits one bulk migration transaction and waits for
// confirmation. Already-migrated users are no-ops contract-side, so
// re-running a batch is safe.
func (sc *StakingV2) MigrateUsers(ctx context.Context, users []common.Address) (*MigrationResult, error) {
	data, err := sc.abi.Pack("migrateUsers", users)
	if err != nil {
		return nil, fmt.Errorf("failed to pack migrateUsers call: %w", err)
	}

	receipt, err := sc.submit(ctx, data, logrus.Fields{
		"method": "migrateUsers",
		"users":  len(users),
	})
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}

	if result.Success {
		if count, total, ok := sc.parseUsersMigrated(receipt.Logs); ok {
			result.SuccessCount = count
			result.TotalUsers = total
			result.HasEvent = true
		}
	}

	return result, nil
}

// parseUsersMigrated extracts {successCount, totalUsers} from the
// UsersMigrated event, if the receipt carries one
func (sc *StakingV2) parseUsersMigrated(logs []*types.Log) (uint64, uint64, bool) {
	// Event: UsersMigrated(uint256 successCount, uint256 totalUsers)
	// topics[0] = event signature; data = successCount, totalUsers
	sig := sc.abi.Events["UsersMigrated"].ID

	for _, vLog := range logs {
		if vLog.Address != sc.contractAddr || len(vLog.Topics) == 0 || vLog.Topics[0] != sig {
			continue
		}
		if len(vLog.Data) < 64 { // 2 * 32 bytes
			logrus.Warnf("Invalid UsersMigrated event data: expected at least 64 bytes, got %d", len(vLog.Data))
			continue
		}
		successCount := new(big.Int).SetBytes(vLog.Data[0:32])
		totalUsers := new(big.Int).SetBytes(vLog.Data[32:64])
		return successCount.Uint64(), totalUsers.Uint64(), true
	}

	return 0, 0, false
}

// GetUserSnapshot queries the observable state of one user
func (sc *StakingV2) GetUserSnapshot(ctx context.Context, user common.Address) (*UserSnapshot, error) {
	data, err := sc.abi.Pack("getUserInfo", user)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getUserInfo call: %w", err)
	}

	result, err := sc.client.CallContract(ctx, ethereum.CallMsg{
		To:   &sc.contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getUserInfo: %w", err)
	}

	values, err := sc.abi.Unpack("getUserInfo", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getUserInfo result: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected getUserInfo result arity: %d", len(values))
	}

	stakeCount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected stakeCount type %T", values[0])
	}
	pendingRewards, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected pendingRewards type %T", values[1])
	}
	lastActivityAt, ok := values[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected lastActivityAt type %T", values[2])
	}
	isPremium, ok := values[3].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected isPremium type %T", values[3])
	}

	return &UserSnapshot{
		StakeCount:     stakeCount,
		PendingRewards: pendingRewards,
		LastActivityAt: lastActivityAt.Uint64(),
		IsPremium:      isPremium,
	}, nil
}

// NextAuthNonce fetches the authority-tracked next nonce for a caller.
// Always queried fresh; satisfies authsig.NonceSource.
func (sc *StakingV2) NextAuthNonce(ctx context.Context, caller common.Address) (uint64, error) {
	data, err := sc.abi.Pack("authNonces", caller)
	if err != nil {
		return 0, fmt.Errorf("failed to pack authNonces call: %w", err)
	}

	result, err := sc.client.CallContract(ctx, ethereum.CallMsg{
		To:   &sc.contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to call authNonces: %w", err)
	}

	var nonce *big.Int
	if err := sc.abi.UnpackIntoInterface(&nonce, "authNonces", result); err != nil {
		return 0, fmt.Errorf("failed to unpack authNonces result: %w", err)
	}

	return nonce.Uint64(), nil
}

// authorizationArg mirrors the contract's Authorization struct for ABI packing
type authorizationArg struct {
	Caller   common.Address
	Selector [4]byte
	Nonce    *big.Int
	Deadline *big.Int
}

func toAuthorizationArg(msg *authsig.Message) authorizationArg {
	return authorizationArg{
		Caller:   msg.Caller,
		Selector: msg.Selector,
		Nonce:    new(big.Int).SetUint64(msg.Nonce),
		Deadline: new(big.Int).SetUint64(msg.Deadline),
	}
}

// DepositFor moves funds into a user's stake. Requires an authority
// co-signature; the contract reverts the whole call on any
// verification failure, so there is never a partial effect.
func (sc *StakingV2) DepositFor(ctx context.Context, user common.Address, amount *big.Int, msg *authsig.Message, signature []byte) error {
	data, err := sc.abi.Pack("depositFor", user, amount, toAuthorizationArg(msg), signature)
	if err != nil {
		return fmt.Errorf("failed to pack depositFor call: %w", err)
	}

	receipt, err := sc.submit(ctx, data, logrus.Fields{
		"method": "depositFor",
		"user":   user.Hex(),
		"nonce":  msg.Nonce,
	})
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("depositFor reverted (tx %s)", receipt.TxHash.Hex())
	}
	return nil
}

// SetPremiumStatus toggles a user's premium flag. Authority co-signed,
// same verification semantics as DepositFor.
func (sc *StakingV2) SetPremiumStatus(ctx context.Context, user common.Address, premium bool, msg *authsig.Message, signature []byte) error {
	data, err := sc.abi.Pack("setPremiumStatus", user, premium, toAuthorizationArg(msg), signature)
	if err != nil {
		return fmt.Errorf("failed to pack setPremiumStatus call: %w", err)
	}

	receipt, err := sc.submit(ctx, data, logrus.Fields{
		"method":  "setPremiumStatus",
		"user":    user.Hex(),
		"premium": premium,
		"nonce":   msg.Nonce,
	})
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("setPremiumStatus reverted (tx %s)", receipt.TxHash.Hex())
	}
	return nil
}

// submit runs the full transaction lifecycle: gas estimation, nonce
// fetch, signing, send, wait for mining. Transactions are submitted
// sequentially by the caller, so the account nonce is implicitly
// serialized.
func (sc *StakingV2) submit(ctx context.Context, data []byte, fields logrus.Fields) (*types.Receipt, error) {
	msg := ethereum.CallMsg{
		From: sc.authorityAddr,
		To:   &sc.contractAddr,
		Data: data,
	}
	gasLimit, err := sc.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	// Add 20% buffer
	gasLimit = uint64(float64(gasLimit) * 1.2)

	nonce, err := sc.client.PendingNonceAt(ctx, sc.authorityAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := sc.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(
		nonce,
		sc.contractAddr,
		big.NewInt(0), // 0 value
		gasLimit,
		gasPrice,
		data,
	)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(sc.chainID), sc.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	fields["tx_hash"] = signedTx.Hash().Hex()
	fields["gas_limit"] = gasLimit
	fields["account_nonce"] = nonce
	logrus.WithFields(fields).Info("📤 Submitting transaction to StakingV2")

	if err := sc.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := sc.waitMined(ctx, signedTx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for confirmation: %w", err)
	}

	return receipt, nil
}

// waitMined polls for the receipt at the configured interval until the
// transaction is mined or ctx expires
func (sc *StakingV2) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(sc.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := sc.client.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			logrus.Debugf("Receipt retrieval for %s failed: %v", tx.Hash().Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the client connection
func (sc *StakingV2) Close() {
	if sc.client != nil {
		sc.client.Close()
	}
}

// StakingV2ABI contains the simplified ABI for the StakingV2 contract
const StakingV2ABI = `[
	{
		"inputs": [
			{"internalType": "address[]", "name": "users", "type": "address[]"}
		],
		"name": "migrateUsers",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "user", "type": "address"}
		],
		"name": "getUserInfo",
		"outputs": [
			{"internalType": "uint256", "name": "stakeCount", "type": "uint256"},
			{"internalType": "uint256", "name": "pendingRewards", "type": "uint256"},
			{"internalType": "uint256", "name": "lastActivityAt", "type": "uint256"},
			{"internalType": "bool", "name": "isPremium", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "caller", "type": "address"}
		],
		"name": "authNonces",
		"outputs": [
			{"internalType": "uint256", "name": "", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "user", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{
				"components": [
					{"internalType": "address", "name": "caller", "type": "address"},
					{"internalType": "bytes4", "name": "selector", "type": "bytes4"},
					{"internalType": "uint256", "name": "nonce", "type": "uint256"},
					{"internalType": "uint256", "name": "deadline", "type": "uint256"}
				],
				"internalType": "struct StakingV2.Authorization",
				"name": "auth",
				"type": "tuple"
			},
			{"internalType": "bytes", "name": "signature", "type": "bytes"}
		],
		"name": "depositFor",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "user", "type": "address"},
			{"internalType": "bool", "name": "premium", "type": "bool"},
			{
				"components": [
					{"internalType": "address", "name": "caller", "type": "address"},
					{"internalType": "bytes4", "name": "selector", "type": "bytes4"},
					{"internalType": "uint256", "name": "nonce", "type": "uint256"},
					{"internalType": "uint256", "name": "deadline", "type": "uint256"}
				],
				"internalType": "struct StakingV2.Authorization",
				"name": "auth",
				"type": "tuple"
			},
			{"internalType": "bytes", "name": "signature", "type": "bytes"}
		],
		"name": "setPremiumStatus",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "internalType": "uint256", "name": "successCount", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "totalUsers", "type": "uint256"}
		],
		"name": "UsersMigrated",
		"type": "event"
	}
]`
