// Package main runs the pool cycler: on a cron schedule it mints a new
// token, seeds a liquidity pool against SOL, and withdraws the liquidity
// after a random delay. State, health, and metrics are served over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"solana-pool-cycler/internal/api"
	"solana-pool-cycler/internal/cycle"
	"solana-pool-cycler/internal/metadata"
	"solana-pool-cycler/internal/minter"
	"solana-pool-cycler/internal/pool"
	"solana-pool-cycler/internal/solana"
	"solana-pool-cycler/internal/state"
	"solana-pool-cycler/internal/txsubmit"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", envOr("SOLANA_RPC_URL", "https://api.devnet.solana.com"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_URL"), "Solana WebSocket endpoint (polling fallback when empty)")
	port := flag.String("port", envOr("PORT", "10000"), "HTTP listen port")
	stateFile := flag.String("state-file", envOr("STATE_FILE", "bot_state.json"), "Path to the JSON state file")
	stateDSN := flag.String("state-dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN for state storage (overrides --state-file)")
	cronExpr := flag.String("cron", envOr("CYCLE_CRON", "0 * * * *"), "Cron expression for cycle triggers")
	once := flag.Bool("once", false, "Run a single cycle (including its withdrawal) and exit")

	protocol := flag.String("pool-protocol", envOr("POOL_PROTOCOL", "cpamm"), "Pool protocol: cpamm or cpmm")
	poolConfig := flag.String("pool-config", os.Getenv("POOL_CONFIG"), "cpamm pool config account")
	ammConfig := flag.String("amm-config", os.Getenv("AMM_CONFIG"), "cpmm fee-tier config account")
	feeReceiver := flag.String("fee-receiver", os.Getenv("FEE_RECEIVER"), "cpmm pool creation fee account")

	baseAmount := flag.Float64("base-amount", 0.7, "SOL deposited per pool")
	depositPct := flag.Float64("deposit-pct", 0.10, "Fraction of minted supply deposited")
	revokeAuthority := flag.Bool("revoke-authority", envOr("SHOULD_REVOKE_AUTHORITY", "true") == "true", "Revoke mint/freeze authority after issuance")
	waitConfirm := flag.String("wait-confirm", "auto", "Wait for confirmations: true, false, or auto (by network)")
	minDelay := flag.Duration("min-delay", 15*time.Minute, "Minimum withdrawal delay")
	maxDelay := flag.Duration("max-delay", 45*time.Minute, "Maximum withdrawal delay")

	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wallet
	wallet, err := loadWallet(logger)
	if err != nil {
		logger.Fatalf("load wallet: %v", err)
	}

	// Chain gateway + confirmation transport
	gateway := solana.NewHTTPClient(*rpcEndpoint)
	var confirmer solana.Confirmer
	if *wsEndpoint != "" {
		confirmer = solana.NewWSConfirmer(*wsEndpoint, nil)
	} else {
		logger.Printf("no WebSocket endpoint configured, confirming via status polling")
		confirmer = solana.NewPollingConfirmer(gateway, 0)
	}

	submitter := txsubmit.New(txsubmit.Options{
		Gateway:   gateway,
		Confirmer: confirmer,
		Payer:     wallet,
	})

	// Metadata uploader
	jwt := os.Getenv("PINATA_JWT")
	if jwt == "" {
		logger.Fatal("PINATA_JWT is required")
	}
	uploader := metadata.NewPinataClient(jwt, os.Getenv("PINATA_GATEWAY"))

	mint := minter.New(minter.Options{
		Gateway:         gateway,
		Submitter:       submitter,
		Uploader:        uploader,
		Wallet:          wallet,
		RevokeAuthority: *revokeAuthority,
	})

	poolCfg := pool.Config{WaitForConfirmation: resolveWaitConfirm(*waitConfirm, *rpcEndpoint)}
	pools, err := buildPoolManager(*protocol, *rpcEndpoint, gateway, submitter, wallet, poolCfg, *poolConfig, *ammConfig, *feeReceiver)
	if err != nil {
		logger.Fatalf("configure pool manager: %v", err)
	}

	// State store
	var store state.Store
	if *stateDSN != "" {
		pgStore, err := state.NewPostgresStore(ctx, *stateDSN)
		if err != nil {
			logger.Fatalf("connect state store: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		logger.Printf("state store: postgres")
	} else {
		store = state.NewFileStore(*stateFile)
		logger.Printf("state store: %s", *stateFile)
	}

	runner := cycle.New(cycle.Options{
		Store:      store,
		Mint:       mint,
		Pools:      pools,
		BaseAmount: *baseAmount,
		DepositPct: *depositPct,
		MinDelay:   *minDelay,
		MaxDelay:   *maxDelay,
	})

	logger.Printf("wallet %s", wallet.PublicKey())
	if balance, err := gateway.GetBalance(ctx, wallet.PublicKey().String()); err != nil {
		logger.Printf("wallet balance unavailable: %v", err)
	} else {
		logger.Printf("wallet balance: %.4f SOL", float64(balance)/1e9)
	}

	// Re-arm any withdrawal owed from a previous run before new cycles
	// can start.
	if err := runner.Recover(ctx); err != nil {
		logger.Fatalf("recover pending withdrawal: %v", err)
	}

	// HTTP server
	httpDone := make(chan error, 1)
	go func() {
		httpDone <- api.NewServer(store).Run(ctx, "0.0.0.0:"+*port)
	}()

	if *once {
		if err := runner.RunCycle(ctx); err != nil {
			logger.Fatalf("cycle failed: %v", err)
		}
		logger.Printf("cycle complete, waiting for withdrawal before exit")
		runner.Wait()
		cancel()
		<-httpDone
		return
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(*cronExpr, func() {
		if err := runner.RunCycle(ctx); err != nil {
			logger.Printf("cycle failed: %v", err)
		}
	}); err != nil {
		logger.Fatalf("invalid cron expression %q: %v", *cronExpr, err)
	}
	scheduler.Start()
	logger.Printf("scheduler started (%s)", *cronExpr)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("received signal %v, shutting down", sig)

	stopCtx := scheduler.Stop()
	cancel()
	<-stopCtx.Done()
	if err := <-httpDone; err != nil {
		logger.Printf("http server: %v", err)
	}
	logger.Printf("shutdown complete")
}

// loadWallet reads WALLET_SECRET_KEY, falling back to a throwaway keypair
// so devnet experiments can run without prior setup.
func loadWallet(logger *log.Logger) (*solana.Keypair, error) {
	secret := os.Getenv("WALLET_SECRET_KEY")
	if secret == "" {
		logger.Printf("warning: WALLET_SECRET_KEY not set, generating an ephemeral keypair (devnet only)")
		return solana.NewKeypair()
	}
	return solana.KeypairFromBase58(secret)
}

func buildPoolManager(protocol, rpcEndpoint string, gateway solana.Gateway, submitter pool.Submitter,
	wallet *solana.Keypair, cfg pool.Config, poolConfig, ammConfig, feeReceiver string) (pool.Manager, error) {

	switch protocol {
	case "cpamm":
		config, err := requiredKey("--pool-config", poolConfig)
		if err != nil {
			return nil, err
		}
		return pool.NewCpamm(pool.CpammOptions{
			Gateway:    gateway,
			Submitter:  submitter,
			Wallet:     wallet,
			PoolConfig: config,
			Config:     cfg,
		}), nil

	case "cpmm":
		config, err := requiredKey("--amm-config", ammConfig)
		if err != nil {
			return nil, err
		}
		receiver, err := requiredKey("--fee-receiver", feeReceiver)
		if err != nil {
			return nil, err
		}
		return pool.NewCpmm(pool.CpmmOptions{
			Gateway:     gateway,
			Submitter:   submitter,
			Wallet:      wallet,
			Devnet:      isDevnet(rpcEndpoint),
			AmmConfig:   config,
			FeeReceiver: receiver,
			Config:      cfg,
		}), nil

	default:
		return nil, fmt.Errorf("unknown pool protocol %q (want cpamm or cpmm)", protocol)
	}
}

func requiredKey(name, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", name, err)
	}
	return key, nil
}

// resolveWaitConfirm maps the flag to a confirmation policy: mainnet
// waits, devnet returns after broadcast.
func resolveWaitConfirm(mode, rpcEndpoint string) bool {
	switch mode {
	case "true":
		return true
	case "false":
		return false
	default:
		return !isDevnet(rpcEndpoint)
	}
}

func isDevnet(rpcEndpoint string) bool {
	return strings.Contains(rpcEndpoint, "devnet")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
