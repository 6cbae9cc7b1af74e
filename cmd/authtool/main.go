package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/authsig"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/staking"
)

// authtool drives one co-signed privileged call end to end: fetch the
// caller's next nonce from the contract, build and sign the
// authorization, submit the operation, and report ACCEPTED or REJECTED.
func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	viper.SetConfigName("authtool")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("chain_id", 1)
	viper.SetDefault("operation", "depositFor")
	viper.SetDefault("deadline_seconds", 300)
	viper.BindEnv("deadline_seconds", "AUTH_DEADLINE_WINDOW", "DEADLINE_SECONDS")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.WithError(err).Fatal("Failed to read config file")
		}
		log.Debug("No config file found, using environment only")
	}

	rpcURL := viper.GetString("rpc_url")
	contract := viper.GetString("staking_v2_contract")
	authorityKey := viper.GetString("authority_private_key")
	callerStr := viper.GetString("caller")
	operation := viper.GetString("operation")

	if rpcURL == "" || contract == "" || authorityKey == "" || !common.IsHexAddress(callerStr) {
		log.Fatal("rpc_url, staking_v2_contract, authority_private_key and a valid caller are required")
	}

	stakingClient, err := staking.NewStakingV2(rpcURL, contract, authorityKey, viper.GetInt64("chain_id"), time.Second)
	if err != nil {
		log.WithError(err).Fatal("Failed to create StakingV2 client")
	}
	defer stakingClient.Close()

	signer, err := authsig.NewSigner(stakingClient.ChainID(), contract, authorityKey)
	if err != nil {
		log.WithError(err).Fatal("Failed to create authorization signer")
	}

	selector, err := stakingClient.SelectorFor(operation)
	if err != nil {
		log.WithError(err).Fatalf("Unknown operation %q", operation)
	}

	caller := common.HexToAddress(callerStr)
	deadline := time.Now().Add(time.Duration(viper.GetInt("deadline_seconds")) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Nonce is fetched fresh from the contract at attempt time
	attempt, err := authsig.NewAttempt(ctx, stakingClient, caller, selector, deadline)
	if err != nil {
		log.WithError(err).Fatal("Failed to assemble authorization")
	}

	if err := attempt.Sign(signer); err != nil {
		log.WithError(err).Fatal("Failed to sign authorization")
	}

	log.WithFields(log.Fields{
		"caller":    caller.Hex(),
		"operation": operation,
		"selector":  hexutil.Encode(selector[:]),
		"nonce":     attempt.Message.Nonce,
		"deadline":  attempt.Message.Deadline,
		"authority": signer.Authority().Hex(),
	}).Info("Authorization signed")

	err = attempt.Submit(ctx, func(ctx context.Context, msg *authsig.Message, signature []byte) error {
		switch operation {
		case "depositFor":
			amount, ok := new(big.Int).SetString(viper.GetString("amount"), 10)
			if !ok {
				return fmt.Errorf("invalid amount %q", viper.GetString("amount"))
			}
			return stakingClient.DepositFor(ctx, caller, amount, msg, signature)
		case "setPremiumStatus":
			return stakingClient.SetPremiumStatus(ctx, caller, viper.GetBool("premium"), msg, signature)
		default:
			return fmt.Errorf("unsupported operation %q", operation)
		}
	})

	fmt.Printf("attempt state: %s\n", attempt.State)
	if err != nil {
		fmt.Printf("rejection reason: %v\n", attempt.Reason)
		os.Exit(1)
	}
}
