package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gabapcia/swapbundle/internal/bundle"
	"github.com/gabapcia/swapbundle/internal/config"
	"github.com/gabapcia/swapbundle/internal/handlers/cli"
	"github.com/gabapcia/swapbundle/internal/infra/aggregator/jupiter"
	"github.com/gabapcia/swapbundle/internal/infra/blockchain/solana"
	"github.com/gabapcia/swapbundle/internal/infra/relay"
	"github.com/gabapcia/swapbundle/internal/infra/storage/redis"
	"github.com/gabapcia/swapbundle/internal/infra/tokenmeta/solanatracker"
	"github.com/gabapcia/swapbundle/internal/pkg/logger"
	"github.com/gabapcia/swapbundle/internal/pkg/telemetry"
	transporthttp "github.com/gabapcia/swapbundle/internal/pkg/transport/http"
	"github.com/gabapcia/swapbundle/internal/quote"
	"github.com/gabapcia/swapbundle/internal/reconcile"
	"github.com/gabapcia/swapbundle/internal/swap"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.Init(ctx, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	deps, closeDeps, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	return cli.Run(ctx, deps)
}

// wire builds every adapter and service from cfg. The returned func releases
// shared connections.
func wire(ctx context.Context, cfg config.Config) (cli.Dependencies, func(), error) {
	closeDeps := func() {}

	var (
		httpClient  = transporthttp.NewClient(transporthttp.WithTimeout(cfg.QuoteTimeout))
		relayClient = transporthttp.NewClient(transporthttp.WithTimeout(cfg.SubmitTimeout), transporthttp.WithRetryMax(0))
		rpc         = solana.NewClient(cfg.SolanaRPCURL)
		aggregator  = jupiter.NewClient(cfg.JupiterBaseURL, httpClient)
	)

	tracker, err := solanatracker.NewClient(cfg.TokenMetadataURL, cfg.TokenMetadataAPIKey, httpClient)
	if err != nil {
		return cli.Dependencies{}, closeDeps, err
	}

	deps := cli.Dependencies{
		MaxWallets:  cfg.MaxWallets,
		QuoteWindow: cfg.QuoteDebounce,
	}

	var metadataOpts []quote.MetadataOption
	if cfg.Redis.Enabled() {
		store, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return cli.Dependencies{}, closeDeps, fmt.Errorf("connect redis: %w", err)
		}
		closeDeps = func() { _ = store.Close() }

		metadataOpts = append(metadataOpts, quote.WithMetadataCache(store, cfg.MetadataCacheTTL))
		deps.StatusSink = store
		deps.StatusStore = store
	}

	deps.Quotes = quote.NewClient(aggregator, quote.NewCachedMetadata(tracker, metadataOpts...),
		quote.WithSlippageBps(cfg.SlippageBps),
		quote.WithCacheTTL(cfg.QuoteCacheTTL),
		quote.WithTimeout(cfg.QuoteTimeout),
	)

	var submitter swap.Relay = rpc
	if cfg.RelayURL != "" {
		r, err := relay.NewClient(cfg.RelayURL, relayClient)
		if err != nil {
			closeDeps()
			return cli.Dependencies{}, func() {}, err
		}
		submitter = r
	}

	pipeline := swap.NewPipeline(aggregator, aggregator, submitter,
		swap.WithSlippageBps(cfg.SlippageBps),
		swap.WithSafetyBuffer(cfg.SafetyBufferLamports),
		swap.WithPriorityFeeRange(cfg.PriorityFeeMinLamports, cfg.PriorityFeeMaxLamports),
		swap.WithTimeouts(cfg.QuoteTimeout, cfg.BuildTimeout, cfg.SubmitTimeout),
	)

	deps.Bundle = bundle.NewService(rpc, pipeline,
		bundle.WithStagger(bundle.Stagger{
			Base:      cfg.StaggerBase,
			Step:      cfg.StaggerStep,
			MaxJitter: cfg.StaggerMaxJitter,
		}),
		bundle.WithBalanceTimeout(cfg.BalanceTimeout),
	)
	deps.Reconciler = reconcile.NewService(rpc,
		reconcile.WithInterval(cfg.ReconcileInterval),
		reconcile.WithMaxAttempts(cfg.ReconcileMaxAttempts),
		reconcile.WithStatusTimeout(cfg.ReconcileStatusTimeout),
	)

	return deps, closeDeps, nil
}
