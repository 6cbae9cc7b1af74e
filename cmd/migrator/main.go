package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/razvantomegea/movin-contracts-sub001/config"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/executor"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/metrics"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/orchestrator"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/runstate"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/scanner"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/staking"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/verifier"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	settings := config.SettingsObj

	if settings.MetricsEnabled {
		metrics.Serve(settings.MetricsPort)
	}

	// SIGINT/SIGTERM aborts the run between batches, never mid-batch
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// StakingV2 client doubles as the ledger connection for discovery
	stakingClient, err := staking.NewStakingV2(
		settings.RPCURL,
		settings.StakingV2Contract,
		settings.AuthorityPrivateKey,
		settings.ChainID,
		settings.ConfirmationPolls,
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to create StakingV2 client")
	}
	defer stakingClient.Close()

	log.Infof("Submitting authority: %s", stakingClient.Authority().Hex())

	// Redis is the audit trail only; a run proceeds without it
	var store *runstate.Store
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", settings.RedisHost, settings.RedisPort),
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis unavailable - run audit trail disabled")
	} else {
		store = runstate.NewStore(redisClient, settings.StakingV2Contract)
	}

	eventScanner := scanner.NewEventScanner(stakingClient.Ledger(), &scanner.Config{
		Contract:      common.HexToAddress(settings.StakingV1Contract),
		EventKinds:    settings.TrackedEvents,
		Windows:       settings.ScanWindows,
		RangeLimit:    settings.LedgerRangeLimit,
		QueryTimeout:  settings.ScanQueryTimeout,
		FallbackUsers: settings.FallbackUsers,
	})

	components := &orchestrator.Components{
		RunID:     settings.RunID,
		Scanner:   eventScanner,
		BatchSize: settings.BatchSize,
		Executor:  executor.New(stakingClient, settings.SampleSize, settings.SubmissionTimeout),
		Verifier:  verifier.New(stakingClient),
		Store:     store,
	}

	log.Infof("🚀 Starting migration run %s", settings.RunID)

	result, err := orchestrator.Run(ctx, components)
	if result != nil {
		// The report is always producible, even for failed or aborted runs
		fmt.Println(result.Report)
	}
	if err != nil {
		log.WithError(err).Error("Migration run did not complete cleanly")
		os.Exit(1)
	}

	if result.Aborted {
		log.Warn("Run aborted by operator - re-run to resume (migration is idempotent per user)")
		os.Exit(1)
	}

	log.Infof("🏁 Migration run %s finished: %d/%d users migrated",
		settings.RunID, result.Summary.TotalSuccesses, result.Summary.TotalUsers)
}
