// Package cycle drives the mint/pool/withdraw loop: each trigger mints
// a fresh token, seeds a pool against the base currency, then pulls the
// liquidity back out after a random delay.
package cycle

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"solana-pool-cycler/internal/minter"
	"solana-pool-cycler/internal/observability"
	"solana-pool-cycler/internal/pool"
	"solana-pool-cycler/internal/state"
)

// WrappedSOLMint is the default base currency for created pools.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// Defaults applied by New when an option is zero.
const (
	DefaultBaseAmount = 0.7
	DefaultDepositPct = 0.10
	DefaultMinDelay   = 15 * time.Minute
	DefaultMaxDelay   = 45 * time.Minute
	DefaultSettle     = 5 * time.Second
)

// Minter creates the cycle's token.
type Minter interface {
	CreateTokenWithMetadata(ctx context.Context, params minter.TokenParams) (*minter.MintResult, error)
}

// TokenTemplate configures the token minted each cycle. The symbol is
// the prefix with the iteration number appended.
type TokenTemplate struct {
	Name         string
	SymbolPrefix string
	Description  string
	Image        string
	Website      string
	Twitter      string
	Telegram     string
	Decimals     uint8
	Supply       uint64
}

// Options configures a Runner.
type Options struct {
	Store state.Store
	Mint  Minter
	Pools pool.Manager

	// BaseMint is the pool's quote side, default wrapped SOL.
	BaseMint string
	// BaseAmount is the fixed quote deposit in whole tokens.
	BaseAmount float64
	// DepositPct is the fraction of minted supply seeded into the pool.
	DepositPct float64

	Token TokenTemplate

	// MinDelay and MaxDelay bound the random withdrawal delay.
	MinDelay time.Duration
	MaxDelay time.Duration
	// SettleDelay is the pause between minting and pool creation.
	SettleDelay time.Duration

	Rand *rand.Rand
	Now  func() time.Time
}

// Runner executes cycles one at a time and tracks the detached
// withdrawal per cycle.
type Runner struct {
	store state.Store
	mint  Minter
	pools pool.Manager

	baseMint   string
	baseAmount float64
	depositPct float64
	token      TokenTemplate

	minDelay    time.Duration
	maxDelay    time.Duration
	settleDelay time.Duration

	rand *rand.Rand
	now  func() time.Time

	// sleep and fatalf are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	fatalf func(format string, args ...interface{})

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New creates a Runner, applying defaults for zero options.
func New(opts Options) *Runner {
	r := &Runner{
		store:       opts.Store,
		mint:        opts.Mint,
		pools:       opts.Pools,
		baseMint:    opts.BaseMint,
		baseAmount:  opts.BaseAmount,
		depositPct:  opts.DepositPct,
		token:       opts.Token,
		minDelay:    opts.MinDelay,
		maxDelay:    opts.MaxDelay,
		settleDelay: opts.SettleDelay,
		rand:        opts.Rand,
		now:         opts.Now,
		sleep:       sleepCtx,
		fatalf:      log.Fatalf,
	}
	if r.baseMint == "" {
		r.baseMint = WrappedSOLMint
	}
	if r.baseAmount == 0 {
		r.baseAmount = DefaultBaseAmount
	}
	if r.depositPct == 0 {
		r.depositPct = DefaultDepositPct
	}
	if r.token.Name == "" {
		r.token.Name = "PERPRUG.FUN"
	}
	if r.token.SymbolPrefix == "" {
		r.token.SymbolPrefix = "PERP"
	}
	if r.token.Decimals == 0 {
		r.token.Decimals = 9
	}
	if r.token.Supply == 0 {
		r.token.Supply = 10_000_000_000
	}
	if r.minDelay == 0 {
		r.minDelay = DefaultMinDelay
	}
	if r.maxDelay == 0 {
		r.maxDelay = DefaultMaxDelay
	}
	if r.settleDelay == 0 {
		r.settleDelay = DefaultSettle
	}
	if r.rand == nil {
		r.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// RunCycle mints a token, seeds a pool, persists the record, and arms
// the detached withdrawal. An overlapping trigger while a cycle is in
// flight logs and returns without starting a second cycle.
func (r *Runner) RunCycle(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.log("cycle already in flight, skipping trigger")
		return nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	start := r.now()
	err := r.runCycle(ctx)
	outcome := "success"
	if err != nil {
		outcome = "failure"
		r.log("cycle failed: %v", err)
	}
	observability.RecordCycle(outcome, r.now().Sub(start))
	return err
}

func (r *Runner) runCycle(ctx context.Context) error {
	record, err := r.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read cycle record: %w", err)
	}
	if !record.LiquidityWithdrawn {
		r.log("warning: previous cycle's liquidity was never confirmed withdrawn (pool %s)",
			stringOrEmpty(record.CurrentPoolID))
	}

	iteration := record.Iteration + 1
	symbol := r.token.SymbolPrefix + strconv.Itoa(iteration)
	r.log("starting cycle %d (token %s)", iteration, symbol)

	minted, err := r.mint.CreateTokenWithMetadata(ctx, minter.TokenParams{
		Name:        r.token.Name,
		Symbol:      symbol,
		Description: r.token.Description,
		Image:       r.token.Image,
		Website:     r.token.Website,
		Twitter:     r.token.Twitter,
		Telegram:    r.token.Telegram,
		Decimals:    r.token.Decimals,
		Supply:      r.token.Supply,
	})
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	r.log("minted %s (tx %s)", minted.MintAddress, minted.TxID)

	// Let the new mint propagate before the pool program reads it.
	if err := r.sleep(ctx, r.settleDelay); err != nil {
		return err
	}

	depositTokens := float64(r.token.Supply) * r.depositPct
	created, err := r.pools.CreatePool(ctx, minted.MintAddress, r.baseMint, depositTokens, r.baseAmount)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	r.log("created pool %s (tx %s)", created.PoolID, created.TxID)

	delay := r.withdrawalDelay()
	withdrawAt := r.now().Add(delay).Unix()
	next := &state.CycleRecord{
		Iteration:           iteration,
		CreatedTokenAddress: state.String(minted.MintAddress),
		CurrentPoolID:       state.String(created.PoolID),
		LiquidityWithdrawn:  false,
		WithdrawAt:          &withdrawAt,
	}
	if created.PositionID != "" {
		next.CurrentPositionID = state.String(created.PositionID)
	}
	if err := r.store.Write(ctx, next); err != nil {
		return err
	}

	observability.UpdateIteration(int64(iteration))
	observability.SetPendingWithdrawal(true)
	observability.RecordWithdrawalDelay(delay)
	r.log("withdrawal scheduled in %s (at %s)", delay.Round(time.Second),
		time.Unix(withdrawAt, 0).UTC().Format(time.RFC3339))

	r.armWithdrawal(delay, created.PoolID, created.PositionID)
	return nil
}

func (r *Runner) withdrawalDelay() time.Duration {
	spread := r.maxDelay - r.minDelay
	if spread <= 0 {
		return r.minDelay
	}
	return r.minDelay + time.Duration(r.rand.Int63n(int64(spread)))
}

// armWithdrawal fires the withdrawal after the delay, detached from the
// triggering call. The goroutine must never crash the process.
func (r *Runner) armWithdrawal(delay time.Duration, poolID, positionID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log("withdrawal panicked: %v", p)
			}
		}()

		// Detached from the trigger's context: the cycle call returns
		// long before the withdrawal fires.
		ctx := context.Background()
		if err := r.sleep(ctx, delay); err != nil {
			r.log("withdrawal wait interrupted: %v", err)
			return
		}
		r.withdraw(ctx, poolID, positionID)
	}()
}

// withdraw removes the liquidity and records completion, reconciling
// against the persisted record first so a newer cycle's record is never
// overwritten.
func (r *Runner) withdraw(ctx context.Context, poolID, positionID string) {
	txID, err := r.pools.RemoveAllLiquidityAndClosePosition(ctx, poolID, positionID)
	if err != nil {
		observability.RecordWithdrawal("failure")
		r.log("withdrawal from pool %s failed: %v", poolID, err)
		return
	}
	if txID != "" {
		r.log("withdrew liquidity from pool %s (tx %s)", poolID, txID)
	}

	record, err := r.store.Read(ctx)
	if err != nil {
		observability.RecordWithdrawal("failure")
		r.log("read cycle record after withdrawal: %v", err)
		return
	}
	if stringOrEmpty(record.CurrentPoolID) != poolID ||
		stringOrEmpty(record.CurrentPositionID) != positionID {
		r.log("warning: record now tracks pool %s, not %s; leaving state untouched",
			stringOrEmpty(record.CurrentPoolID), poolID)
		return
	}

	record.LiquidityWithdrawn = true
	record.WithdrawAt = nil
	if err := r.store.Write(ctx, record); err != nil {
		// Losing this write means the bot no longer knows the
		// withdrawal happened; better to die loudly than re-withdraw.
		r.fatalf("[cycle] persist withdrawal completion: %v", err)
		return
	}
	observability.RecordWithdrawal("success")
	observability.SetPendingWithdrawal(false)
}

// Recover re-arms a withdrawal owed by a previous process run. Past-due
// withdrawals fire immediately.
func (r *Runner) Recover(ctx context.Context) error {
	record, err := r.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read cycle record: %w", err)
	}
	if record.LiquidityWithdrawn || record.CurrentPoolID == nil {
		return nil
	}

	var delay time.Duration
	if record.WithdrawAt != nil {
		if until := time.Unix(*record.WithdrawAt, 0).Sub(r.now()); until > 0 {
			delay = until
		}
	}

	observability.UpdateIteration(int64(record.Iteration))
	observability.SetPendingWithdrawal(true)
	r.log("recovering pending withdrawal for pool %s (firing in %s)",
		*record.CurrentPoolID, delay.Round(time.Second))
	r.armWithdrawal(delay, *record.CurrentPoolID, stringOrEmpty(record.CurrentPositionID))
	return nil
}

// Wait blocks until all armed withdrawals have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *Runner) log(format string, args ...interface{}) {
	log.Printf("[cycle] "+format, args...)
}
