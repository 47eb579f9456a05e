package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethcf/blobkit-proxy/api"
	"github.com/ethcf/blobkit-proxy/crypto/blobs"
	"github.com/ethcf/blobkit-proxy/crypto/signer"
	"github.com/ethcf/blobkit-proxy/feeoracle"
	"github.com/ethcf/blobkit-proxy/jobcoordinator"
	"github.com/ethcf/blobkit-proxy/log"
	"github.com/ethcf/blobkit-proxy/queue"
	"github.com/ethcf/blobkit-proxy/store"
	"github.com/ethcf/blobkit-proxy/web3"
)

// shutdownGrace bounds how long in-flight submissions are drained for
// after SIGTERM/SIGINT before the process force-exits, per §5.
const shutdownGrace = 10 * time.Second

// Services holds every long-running component the composition root starts,
// stopped in reverse order on shutdown.
type Services struct {
	Chain       *web3.Client
	API         *api.API
	Queue       *queue.Queue
	storeHandle store.Database
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting blobproxy")

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to set up services: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())

	shutdownServices(services)
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	log.Infow("initializing durable store", "url", cfg.Store.URL)
	db, err := store.Open(cfg.Store.URL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	services.storeHandle = db
	kv := store.NewKV(db)
	locks := store.NewJobLock(kv, store.DefaultJobLockTTL)
	results, err := store.NewJobResultCache(kv, store.DefaultJobResultCacheTTL, 1024)
	if err != nil {
		return nil, fmt.Errorf("init job result cache: %w", err)
	}
	intents := store.NewIntentStore(kv)

	log.Infow("warming KZG trusted setup")
	kzgEngine := blobs.NewEngine()
	if err := kzgEngine.Warm(); err != nil {
		return nil, fmt.Errorf("warm KZG engine: %w", err)
	}

	log.Infow("dialing execution RPC endpoint", "rpcUrl", cfg.Web3.RPCURL)
	chain, err := web3.Dial(ctx, cfg.Web3.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain: %w", err)
	}
	services.Chain = chain

	escrow, err := web3.NewEscrow(chain, common.HexToAddress(cfg.Web3.EscrowContract))
	if err != nil {
		return nil, fmt.Errorf("init escrow binding: %w", err)
	}

	txSigner, err := setupSigner(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init signer: %w", err)
	}

	authorized, err := escrow.IsProxyAuthorized(ctx, txSigner.Address())
	if err != nil {
		return nil, fmt.Errorf("check proxy authorization: %w", err)
	}
	if !authorized {
		return nil, fmt.Errorf("proxy address %s is not authorized on escrow contract %s", txSigner.Address(), escrow.Address())
	}
	log.Infow("proxy address authorized", "address", txSigner.Address().Hex())

	fees := feeoracle.New(chain, cfg.Web3.EIP7918)
	chainID := new(big.Int).SetUint64(cfg.Web3.ChainID)
	engine := web3.NewEngine(chain, kzgEngine, fees, txSigner, chainID, cfg.Web3.TxTimeout).
		WithBeaconConfirmer(web3.NewBeaconConfirmer(cfg.Web3.BeaconAPIURL))
	completer := web3.NewCompleter(chain, escrow, txSigner, chainID, cfg.Web3.TxTimeout)

	coordinator := jobcoordinator.New(escrow, engine, fees, locks, results, intents, jobcoordinator.Config{
		ChainID:         cfg.Web3.ChainID,
		ProxyFeePercent: cfg.Web3.ProxyFeePct,
		BlobVersion:     blobs.V4844,
	})

	log.Infow("starting completion retry queue", "workers", cfg.Queue.Workers)
	services.Queue = queue.New(intents, completer, cfg.Queue.Workers, cfg.Queue.PollInterval)
	services.Queue.Start(ctx)

	log.Infow("starting API server", "host", cfg.API.Host, "port", cfg.API.Port)
	services.API = api.New(coordinator).WithQueueStats(func() api.QueueStats {
		stats := services.Queue.Stats()
		return api.QueueStats{Completed: stats.Completed, Failed: stats.Failed, Exhausted: stats.Exhausted}
	})
	services.API.Start(cfg.API.Host, cfg.API.Port)

	log.Info("blobproxy is running")
	return services, nil
}

// setupSigner builds a Local or KMS signer per cfg.Web3.SignerKind.
func setupSigner(ctx context.Context, cfg *Config) (signer.Signer, error) {
	switch cfg.Web3.SignerKind {
	case "kms":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := kms.NewFromConfig(awsCfg)
		return signer.NewKMS(ctx, client, cfg.Web3.KMSKeyID)
	default:
		return signer.NewLocal(cfg.Web3.PrivKey)
	}
}

// shutdownServices drains in-flight work within shutdownGrace and stops
// every component in the reverse order it was started, per §5.
func shutdownServices(services *Services) {
	if services == nil {
		return
	}
	if services.API != nil {
		if err := services.API.Stop(shutdownGrace); err != nil {
			log.Warnw("API server did not shut down cleanly", "error", err)
		}
	}
	if services.Queue != nil {
		services.Queue.Stop()
	}
	if services.Chain != nil {
		services.Chain.Close()
	}
	if services.storeHandle != nil {
		if err := services.storeHandle.Close(); err != nil {
			log.Warnw("failed to close store", "error", err)
		}
	}
}
