package cycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"solana-pool-cycler/internal/minter"
	"solana-pool-cycler/internal/pool"
	"solana-pool-cycler/internal/state"
)

type fakeMinter struct {
	mu     sync.Mutex
	calls  []minter.TokenParams
	err    error
	gate   chan struct{} // when set, CreateTokenWithMetadata blocks until closed
	result minter.MintResult
}

func (f *fakeMinter) CreateTokenWithMetadata(_ context.Context, params minter.TokenParams) (*minter.MintResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	if res.MintAddress == "" {
		res = minter.MintResult{MintAddress: "mint-addr", TxID: "mint-tx"}
	}
	return &res, nil
}

func (f *fakeMinter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type removeCall struct {
	poolID     string
	positionID string
}

type fakePools struct {
	mu         sync.Mutex
	createErr  error
	create     pool.CreateResult
	createArgs []string
	removeErr  error
	removes    []removeCall
}

func (f *fakePools) CreatePool(_ context.Context, tokenA, tokenB string, amountA, amountB float64) (*pool.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createArgs = append(f.createArgs, fmt.Sprintf("%s/%s/%.2f/%.2f", tokenA, tokenB, amountA, amountB))
	if f.createErr != nil {
		return nil, f.createErr
	}
	res := f.create
	if res.PoolID == "" {
		res = pool.CreateResult{PoolID: "pool-addr", PositionID: "position-addr", TxID: "pool-tx"}
	}
	return &res, nil
}

func (f *fakePools) AddLiquidity(context.Context, string, string, float64, float64) (string, error) {
	return "", errors.New("not used")
}

func (f *fakePools) RemoveAllLiquidity(context.Context, string, string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakePools) ClosePosition(context.Context, string, string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakePools) RemoveAllLiquidityAndClosePosition(_ context.Context, poolID, positionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, removeCall{poolID: poolID, positionID: positionID})
	if f.removeErr != nil {
		return "", f.removeErr
	}
	return "withdraw-tx", nil
}

func (f *fakePools) removeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removes)
}

var _ pool.Manager = (*fakePools)(nil)

func newTestRunner(store state.Store, m Minter, p pool.Manager) *Runner {
	r := New(Options{
		Store: store,
		Mint:  m,
		Pools: p,
		Rand:  rand.New(rand.NewSource(1)),
	})
	r.sleep = func(context.Context, time.Duration) error { return nil }
	r.fatalf = func(format string, args ...interface{}) {
		panic(fmt.Sprintf(format, args...))
	}
	return r
}

func TestRunCyclePersistsRecordAndWithdraws(t *testing.T) {
	store := state.NewMemoryStore()
	mint := &fakeMinter{}
	pools := &fakePools{}
	r := newTestRunner(store, mint, pools)
	ctx := context.Background()

	if err := r.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	r.Wait()

	if got := mint.calls[0].Symbol; got != "PERP1" {
		t.Errorf("symbol = %q, want PERP1", got)
	}
	if got := mint.calls[0].Name; got != "PERPRUG.FUN" {
		t.Errorf("name = %q", got)
	}
	// 10% of 10B supply against 0.7 base.
	wantCreate := "mint-addr/" + WrappedSOLMint + "/1000000000.00/0.70"
	if pools.createArgs[0] != wantCreate {
		t.Errorf("create args = %q, want %q", pools.createArgs[0], wantCreate)
	}

	record, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if record.Iteration != 1 {
		t.Errorf("iteration = %d, want 1", record.Iteration)
	}
	if record.CreatedTokenAddress == nil || *record.CreatedTokenAddress != "mint-addr" {
		t.Errorf("createdTokenAddress = %v", record.CreatedTokenAddress)
	}
	if !record.LiquidityWithdrawn {
		t.Error("liquidityWithdrawn still false after withdrawal fired")
	}
	if record.WithdrawAt != nil {
		t.Error("withdrawAt not cleared after withdrawal")
	}
	if got := pools.removes[0]; got.poolID != "pool-addr" || got.positionID != "position-addr" {
		t.Errorf("withdrawal targeted %+v", got)
	}
}

func TestRunCycleRecordBeforeWithdrawal(t *testing.T) {
	store := state.NewMemoryStore()
	mint := &fakeMinter{}
	pools := &fakePools{}
	r := newTestRunner(store, mint, pools)
	ctx := context.Background()

	// Hold the withdrawal so the record can be observed mid-cycle. The
	// settle sleep is seconds; the withdrawal wait is minutes.
	release := make(chan struct{})
	r.sleep = func(_ context.Context, d time.Duration) error {
		if d >= time.Minute {
			<-release
		}
		return nil
	}

	if err := r.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	record, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if record.LiquidityWithdrawn {
		t.Error("liquidityWithdrawn = true before withdrawal fired")
	}
	if record.WithdrawAt == nil {
		t.Fatal("withdrawAt not persisted")
	}
	until := time.Until(time.Unix(*record.WithdrawAt, 0))
	if until < 14*time.Minute || until > 46*time.Minute {
		t.Errorf("withdrawAt %s away, want within [15m, 45m]", until)
	}

	close(release)
	r.Wait()
}

func TestMintFailureAbortsWithoutStateMutation(t *testing.T) {
	store := state.NewMemoryStore()
	mint := &fakeMinter{err: errors.New("metadata upload failed")}
	pools := &fakePools{}
	r := newTestRunner(store, mint, pools)
	ctx := context.Background()

	if err := r.RunCycle(ctx); err == nil {
		t.Fatal("RunCycle succeeded despite mint failure")
	}

	record, _ := store.Read(ctx)
	if record.Iteration != 0 {
		t.Errorf("iteration = %d, want 0 (no mutation on failure)", record.Iteration)
	}
	if len(pools.createArgs) != 0 {
		t.Error("pool created despite mint failure")
	}
}

func TestPoolFailureAbortsWithoutStateMutation(t *testing.T) {
	store := state.NewMemoryStore()
	mint := &fakeMinter{}
	pools := &fakePools{createErr: errors.New("insufficient funds")}
	r := newTestRunner(store, mint, pools)
	ctx := context.Background()

	if err := r.RunCycle(ctx); err == nil {
		t.Fatal("RunCycle succeeded despite pool failure")
	}

	record, _ := store.Read(ctx)
	if record.Iteration != 0 || record.CreatedTokenAddress != nil {
		t.Errorf("record mutated on pool failure: %+v", record)
	}
}

func TestWithdrawalFailureLeavesRecordPending(t *testing.T) {
	store := state.NewMemoryStore()
	mint := &fakeMinter{}
	pools := &fakePools{removeErr: errors.New("rpc down")}
	r := newTestRunner(store, mint, pools)
	ctx := context.Background()

	if err := r.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	r.Wait()

	record, _ := store.Read(ctx)
	if record.LiquidityWithdrawn {
		t.Error("liquidityWithdrawn = true despite failed withdrawal")
	}
	if record.WithdrawAt == nil {
		t.Error("withdrawAt cleared despite failed withdrawal")
	}
}

func TestWithdrawalSkipsStateOfNewerCycle(t *testing.T) {
	store := state.NewMemoryStore()
	mint := &fakeMinter{}
	pools := &fakePools{}
	r := newTestRunner(store, mint, pools)
	ctx := context.Background()

	// A newer cycle owns the record by the time the withdrawal fires.
	newer := &state.CycleRecord{
		Iteration:     9,
		CurrentPoolID: state.String("newer-pool"),
	}
	if err := store.Write(ctx, newer); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r.withdraw(ctx, "old-pool", "old-position")

	record, _ := store.Read(ctx)
	if record.LiquidityWithdrawn {
		t.Error("withdrawal mutated a record it does not own")
	}
	if record.Iteration != 9 {
		t.Errorf("iteration = %d, want 9", record.Iteration)
	}
	if pools.removeCount() != 1 {
		t.Errorf("remove calls = %d, want 1 (liquidity still pulled)", pools.removeCount())
	}
}

func TestOverlappingTriggerSkipped(t *testing.T) {
	store := state.NewMemoryStore()
	gate := make(chan struct{})
	mint := &fakeMinter{gate: gate}
	pools := &fakePools{}
	r := newTestRunner(store, mint, pools)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- r.RunCycle(ctx) }()

	// Wait for the first cycle to reach the minter.
	for mint.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := r.RunCycle(ctx); err != nil {
		t.Fatalf("overlapping trigger errored: %v", err)
	}
	if mint.callCount() != 1 {
		t.Errorf("mint calls = %d, want 1 (overlap must be skipped)", mint.callCount())
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	r.Wait()
}

func TestRecoverFiresPastDueWithdrawal(t *testing.T) {
	store := state.NewMemoryStore()
	mint := &fakeMinter{}
	pools := &fakePools{}
	r := newTestRunner(store, mint, pools)
	ctx := context.Background()

	pastDue := time.Now().Add(-10 * time.Minute).Unix()
	pending := &state.CycleRecord{
		Iteration:           4,
		CreatedTokenAddress: state.String("mint-4"),
		CurrentPoolID:       state.String("pool-4"),
		CurrentPositionID:   state.String("position-4"),
		LiquidityWithdrawn:  false,
		WithdrawAt:          &pastDue,
	}
	if err := store.Write(ctx, pending); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := r.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	r.Wait()

	record, _ := store.Read(ctx)
	if !record.LiquidityWithdrawn {
		t.Error("recovered withdrawal did not complete")
	}
	if got := pools.removes[0]; got.poolID != "pool-4" || got.positionID != "position-4" {
		t.Errorf("withdrawal targeted %+v", got)
	}
}

func TestRecoverNoopWhenNothingPending(t *testing.T) {
	store := state.NewMemoryStore()
	pools := &fakePools{}
	r := newTestRunner(store, &fakeMinter{}, pools)

	if err := r.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	r.Wait()

	if pools.removeCount() != 0 {
		t.Error("recover withdrew with nothing pending")
	}
}
