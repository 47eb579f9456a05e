package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultAPIHost       = "0.0.0.0"
	defaultAPIPort       = 8080
	defaultLogLevel      = "info"
	defaultLogOutput     = "stdout"
	defaultStoreURL      = "pebble://./blobproxy-data"
	defaultTxTimeout     = 120 * time.Second
	defaultQueueWorkers  = 4
	defaultQueuePollTime = 2 * time.Second
	defaultProxyFee      = 0
)

// Config holds the composition root's full configuration, covering the
// recognized environment/configuration options from §6 plus the ambient
// stack (logging, store backend, HTTP listen address).
type Config struct {
	Web3  Web3Config  `mapstructure:"web3"`
	API   APIConfig   `mapstructure:"api"`
	Store StoreConfig `mapstructure:"store"`
	Queue QueueConfig `mapstructure:"queue"`
	Log   LogConfig   `mapstructure:"log"`
}

// Web3Config holds the chain-facing configuration.
type Web3Config struct {
	RPCURL         string        `mapstructure:"rpcUrl"`
	ChainID        uint64        `mapstructure:"chainId"`
	EscrowContract string        `mapstructure:"escrowContract"`
	ProxyFeePct    int           `mapstructure:"proxyFeePercent"`
	TxTimeout      time.Duration `mapstructure:"txTimeoutMs"`
	EIP7918        bool          `mapstructure:"eip7918"`

	// SignerKind selects "local" (a hex private key, for development) or
	// "kms" (an AWS KMS-backed key, for production). Only one of PrivKey /
	// KMSKeyID needs to be set, matching SignerKind.
	SignerKind string `mapstructure:"signerKind"`
	PrivKey    string `mapstructure:"privkey"`
	KMSKeyID   string `mapstructure:"kmsKeyId"`

	// BeaconAPIURL optionally enables the blob-sidecar availability
	// cross-check after broadcast. Empty disables it.
	BeaconAPIURL string `mapstructure:"beaconApiUrl"`
}

// APIConfig holds the HTTP listen address.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StoreConfig selects the durable-store backend via a scheme-prefixed URL:
// pebble://, memory://, or leveldb://.
type StoreConfig struct {
	URL string `mapstructure:"url"`
}

// QueueConfig tunes the completion retry queue's worker pool.
type QueueConfig struct {
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from flags, environment variables, and
// defaults, following the donor's pflag+viper composition.
func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("store.url", defaultStoreURL)
	v.SetDefault("web3.txTimeoutMs", defaultTxTimeout)
	v.SetDefault("web3.proxyFeePercent", defaultProxyFee)
	v.SetDefault("web3.signerKind", "local")
	v.SetDefault("queue.workers", defaultQueueWorkers)
	v.SetDefault("queue.pollInterval", defaultQueuePollTime)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)

	flag.String("web3.rpcUrl", "", "base JSON-RPC endpoint (required)")
	flag.Uint64("web3.chainId", 0, "network chain id, used for transaction signing (required)")
	flag.String("web3.escrowContract", "", "escrow contract address (required)")
	flag.Int("web3.proxyFeePercent", defaultProxyFee, "advisory proxy fee percent in [0,10]")
	flag.Duration("web3.txTimeoutMs", defaultTxTimeout, "blob transaction confirmation wait bound")
	flag.Bool("web3.eip7918", false, "enable the EIP-7918 reserve-price fee regime")
	flag.String("web3.signerKind", "local", "signer backend: local or kms")
	flag.String("web3.privkey", "", "hex-encoded private key (signerKind=local)")
	flag.String("web3.kmsKeyId", "", "AWS KMS key id or ARN (signerKind=kms)")
	flag.String("web3.beaconApiUrl", "", "optional beacon API endpoint for blob-sidecar confirmation")
	flag.StringP("api.host", "h", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.String("store.url", defaultStoreURL, "durable store URL: pebble://path, memory://, or leveldb://path")
	flag.Int("queue.workers", defaultQueueWorkers, "completion retry queue worker count")
	flag.Duration("queue.pollInterval", defaultQueuePollTime, "completion retry queue poll interval")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr, or filepath)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "blobproxy\n\n")
		fmt.Fprintf(os.Stderr, "Usage: blobproxy [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  prefixed with BLOBPROXY_ and with dots (.) replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, BLOBPROXY_WEB3_RPCURL or BLOBPROXY_API_PORT\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("BLOBPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig checks the required fields are present and within range.
func validateConfig(cfg *Config) error {
	if cfg.Web3.RPCURL == "" {
		return fmt.Errorf("web3.rpcUrl is required")
	}
	if cfg.Web3.ChainID == 0 {
		return fmt.Errorf("web3.chainId is required")
	}
	if cfg.Web3.EscrowContract == "" {
		return fmt.Errorf("web3.escrowContract is required")
	}
	if cfg.Web3.ProxyFeePct < 0 || cfg.Web3.ProxyFeePct > 10 {
		return fmt.Errorf("web3.proxyFeePercent must be in [0,10], got %d", cfg.Web3.ProxyFeePct)
	}
	switch cfg.Web3.SignerKind {
	case "local":
		if cfg.Web3.PrivKey == "" {
			return fmt.Errorf("web3.privkey is required when signerKind=local")
		}
	case "kms":
		if cfg.Web3.KMSKeyID == "" {
			return fmt.Errorf("web3.kmsKeyId is required when signerKind=kms")
		}
	default:
		return fmt.Errorf("unknown signerKind %q: want local or kms", cfg.Web3.SignerKind)
	}
	return nil
}
