package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// Settings holds all configuration for the migration orchestrator
type Settings struct {
	// Core Identity
	RunID string

	// Ethereum RPC Configuration
	RPCURL  string
	ChainID int64

	// Contract Addresses
	StakingV1Contract string // Legacy staking contract (event source)
	StakingV2Contract string // New staking contract (migration target)

	// Signing Authority
	AuthorityPrivateKey string // Hex-encoded ECDSA key of the backend authority

	// Discovery Configuration
	ScanWindows      []uint64 // Progressively larger block windows anchored at head
	TrackedEvents    []string // Event kinds that identify participants
	FallbackUsers    []string // Operator-provided fallback list (degraded mode)
	LedgerRangeLimit uint64   // Max blocks per FilterLogs call
	ScanQueryTimeout time.Duration

	// Migration Configuration
	BatchSize         int
	SampleSize        int // Users sampled per batch for verification
	SubmissionTimeout time.Duration
	ConfirmationPolls time.Duration // Receipt polling interval while waiting for mining

	// Redis Configuration
	RedisHost     string
	RedisPort     string
	RedisDB       int
	RedisPassword string

	// Monitoring & Debugging
	MetricsEnabled bool
	MetricsPort    int
	LogLevel       string
	DebugMode      bool
}

var (
	// SettingsObj is the global settings instance
	SettingsObj *Settings
)

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	SettingsObj = &Settings{
		// Core Identity
		RunID: getEnv("MIGRATION_RUN_ID", fmt.Sprintf("run-%d", time.Now().Unix())),

		// Ethereum RPC Configuration
		RPCURL:  getEnv("RPC_URL", ""),
		ChainID: int64(getEnvAsInt("CHAIN_ID", 1)),

		// Contract Addresses
		StakingV1Contract: getEnv("STAKING_V1_CONTRACT", ""),
		StakingV2Contract: getEnv("STAKING_V2_CONTRACT", ""),

		// Signing Authority
		AuthorityPrivateKey: getEnv("AUTHORITY_PRIVATE_KEY", ""),

		// Discovery Configuration
		LedgerRangeLimit: uint64(getEnvAsInt("LEDGER_RANGE_LIMIT", 10000)),
		ScanQueryTimeout: time.Duration(getEnvAsInt("SCAN_QUERY_TIMEOUT", 30)) * time.Second,

		// Migration Configuration
		BatchSize:         getEnvAsInt("MIGRATION_BATCH_SIZE", 50),
		SampleSize:        getEnvAsInt("VERIFICATION_SAMPLE_SIZE", 3),
		SubmissionTimeout: time.Duration(getEnvAsInt("SUBMISSION_TIMEOUT", 120)) * time.Second,
		ConfirmationPolls: time.Duration(getEnvAsInt("CONFIRMATION_POLL_INTERVAL", 2)) * time.Second,

		// Redis Configuration - Read directly from env
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// Monitoring & Debugging
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", false),
		MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DebugMode:      getBoolEnv("DEBUG_MODE", false),
	}

	// Load complex configurations that require additional parsing
	loadScanWindows()
	loadTrackedEvents()
	loadFallbackUsers()

	// Configure logging
	configureLogging()

	// Validate configuration
	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Log configuration summary
	logConfigSummary()

	return nil
}

// loadScanWindows loads the discovery window sizes (blocks back from head)
func loadScanWindows() {
	windowsStr := getEnv("SCAN_WINDOWS", "")
	if windowsStr == "" {
		// Default: last 1K, 10K, 100K, 1M blocks
		SettingsObj.ScanWindows = []uint64{1000, 10000, 100000, 1000000}
		return
	}

	for _, part := range strings.Split(windowsStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		val, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			log.Warnf("Ignoring invalid scan window %q: %v", part, err)
			continue
		}
		SettingsObj.ScanWindows = append(SettingsObj.ScanWindows, val)
	}
}

// loadTrackedEvents loads the event kinds that identify participants
func loadTrackedEvents() {
	eventsStr := getEnv("TRACKED_EVENTS", "")
	if eventsStr == "" {
		// Default event signatures emitted by the legacy staking contract
		SettingsObj.TrackedEvents = []string{
			"Staked(address,uint256)",
			"Unstaked(address,uint256)",
			"RewardsClaimed(address,uint256)",
		}
		return
	}
	SettingsObj.TrackedEvents = strings.Split(eventsStr, ",")
	for i := range SettingsObj.TrackedEvents {
		SettingsObj.TrackedEvents[i] = strings.TrimSpace(SettingsObj.TrackedEvents[i])
	}
}

// loadFallbackUsers loads the operator-provided fallback participant list
func loadFallbackUsers() {
	usersStr := getEnv("FALLBACK_USERS", "")
	if usersStr == "" {
		return
	}

	// Support comma-separated format (simplest) or JSON array
	if strings.HasPrefix(usersStr, "[") {
		if err := json.Unmarshal([]byte(usersStr), &SettingsObj.FallbackUsers); err != nil {
			log.Warnf("Failed to parse FALLBACK_USERS as JSON array: %v", err)
			return
		}
	} else {
		SettingsObj.FallbackUsers = strings.Split(usersStr, ",")
	}

	// Clean and drop anything that is not an address
	cleaned := make([]string, 0, len(SettingsObj.FallbackUsers))
	for _, addr := range SettingsObj.FallbackUsers {
		addr = strings.TrimSpace(strings.Trim(addr, "\""))
		if addr == "" {
			continue
		}
		if !common.IsHexAddress(addr) {
			log.Warnf("Ignoring invalid fallback address %q", addr)
			continue
		}
		cleaned = append(cleaned, addr)
	}
	SettingsObj.FallbackUsers = cleaned
}

// configureLogging sets up the logger based on configuration
func configureLogging() {
	switch strings.ToLower(SettingsObj.LogLevel) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	// Override with debug mode
	if SettingsObj.DebugMode {
		log.SetLevel(log.DebugLevel)
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})
}

// validateConfig validates the loaded configuration
func validateConfig() error {
	if SettingsObj.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if SettingsObj.StakingV1Contract == "" || !common.IsHexAddress(SettingsObj.StakingV1Contract) {
		return fmt.Errorf("STAKING_V1_CONTRACT must be a valid address, got %q", SettingsObj.StakingV1Contract)
	}

	if SettingsObj.StakingV2Contract == "" || !common.IsHexAddress(SettingsObj.StakingV2Contract) {
		return fmt.Errorf("STAKING_V2_CONTRACT must be a valid address, got %q", SettingsObj.StakingV2Contract)
	}

	if SettingsObj.AuthorityPrivateKey == "" {
		return fmt.Errorf("AUTHORITY_PRIVATE_KEY is required to submit migration transactions")
	}

	if SettingsObj.BatchSize <= 0 {
		return fmt.Errorf("MIGRATION_BATCH_SIZE must be positive, got %d", SettingsObj.BatchSize)
	}

	if len(SettingsObj.ScanWindows) == 0 {
		return fmt.Errorf("at least one scan window is required")
	}

	return nil
}

// logConfigSummary logs a summary of the configuration
func logConfigSummary() {
	log.Info("=== Configuration Loaded ===")
	log.Infof("Run ID: %s", SettingsObj.RunID)
	log.Infof("Chain ID: %d", SettingsObj.ChainID)
	log.Infof("Staking V1 (events): %s", SettingsObj.StakingV1Contract)
	log.Infof("Staking V2 (target): %s", SettingsObj.StakingV2Contract)
	log.Infof("Batch size: %d, verification samples: %d", SettingsObj.BatchSize, SettingsObj.SampleSize)
	log.Infof("Scan windows: %v (range limit %d)", SettingsObj.ScanWindows, SettingsObj.LedgerRangeLimit)

	if len(SettingsObj.FallbackUsers) > 0 {
		log.Warnf("Fallback list configured with %d addresses - discovery may run in degraded mode", len(SettingsObj.FallbackUsers))
	}

	log.Infof("Redis: %s:%s (DB %d)", SettingsObj.RedisHost, SettingsObj.RedisPort, SettingsObj.RedisDB)
	log.Info("============================")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		value = strings.ToLower(value)
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
