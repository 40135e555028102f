package pool

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strconv"

	"solana-pool-cycler/internal/solana"
)

// Classic constant-product AMM program ids. Mainnet and devnet run
// separate deployments.
var (
	CpmmProgramID       = solana.MustPublicKey("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	CpmmDevnetProgramID = solana.MustPublicKey("CPMDWBwJDtYax9qW7AyRuVC19Cc4L4Vcy4n2BHAbHkCW")
)

// Pool state layout offsets: discriminator, amm config, creator, the two
// vaults, then lp mint and the two mints.
const (
	cpmmPoolLpMintOffset = 136
	cpmmPoolMint0Offset  = 168
	cpmmPoolMint1Offset  = 200
	cpmmPoolDataMin      = 232
)

// CpmmManager implements Manager on the classic LP-token AMM. Positions
// are implicit in the wallet's LP token balance, so PositionID is empty
// and ClosePosition is a no-op.
type CpmmManager struct {
	gateway   solana.Gateway
	submitter Submitter
	wallet    *solana.Keypair
	programID solana.PublicKey
	ammConfig solana.PublicKey
	// feeReceiver collects the protocol's pool creation fee.
	feeReceiver solana.PublicKey
	config      Config
}

var _ Manager = (*CpmmManager)(nil)

// CpmmOptions for creating CpmmManager.
type CpmmOptions struct {
	Gateway   solana.Gateway
	Submitter Submitter
	Wallet    *solana.Keypair
	// Devnet selects the devnet program deployment.
	Devnet bool
	// AmmConfig is the fee-tier config account pools are created under.
	AmmConfig solana.PublicKey
	// FeeReceiver is the protocol's pool creation fee account.
	FeeReceiver solana.PublicKey
	Config      Config
}

// NewCpmm creates a classic AMM manager.
func NewCpmm(opts CpmmOptions) *CpmmManager {
	programID := CpmmProgramID
	if opts.Devnet {
		programID = CpmmDevnetProgramID
	}
	return &CpmmManager{
		gateway:     opts.Gateway,
		submitter:   opts.Submitter,
		wallet:      opts.Wallet,
		programID:   programID,
		ammConfig:   opts.AmmConfig,
		feeReceiver: opts.FeeReceiver,
		config:      opts.Config,
	}
}

func (m *CpmmManager) send(ctx context.Context, label string, tx *solana.Transaction, signers ...*solana.Keypair) (string, error) {
	if m.config.WaitForConfirmation {
		return m.submitter.Submit(ctx, label, tx, signers...)
	}
	return m.submitter.Broadcast(ctx, label, tx, signers...)
}

// derived addresses

func (m *CpmmManager) authorityAddress() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("vault_and_lp_mint_auth_seed")}, m.programID)
	return addr, err
}

func (m *CpmmManager) poolAddress(mint0, mint1 solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("pool"), m.ammConfig[:], mint0[:], mint1[:]},
		m.programID,
	)
	return addr, err
}

func (m *CpmmManager) lpMintAddress(pool solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("pool_lp_mint"), pool[:]},
		m.programID,
	)
	return addr, err
}

func (m *CpmmManager) vaultAddress(pool, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("pool_vault"), pool[:], mint[:]},
		m.programID,
	)
	return addr, err
}

func (m *CpmmManager) observationAddress(pool solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("observation"), pool[:]},
		m.programID,
	)
	return addr, err
}

// CreatePool creates a pool seeded with the given whole-token amounts.
// Mints are reordered into the program's canonical ascending order, with
// the deposit amounts following their mints.
func (m *CpmmManager) CreatePool(ctx context.Context, tokenA, tokenB string, amountA, amountB float64) (*CreateResult, error) {
	mintA, err := solana.PublicKeyFromBase58(tokenA)
	if err != nil {
		return nil, err
	}
	mintB, err := solana.PublicKeyFromBase58(tokenB)
	if err != nil {
		return nil, err
	}

	mint0, mint1 := sortMints(mintA, mintB)
	amount0, amount1 := amountA, amountB
	if mint0 != mintA {
		amount0, amount1 = amountB, amountA
	}

	decimals0, err := mintDecimals(ctx, m.gateway, mint0.String())
	if err != nil {
		return nil, err
	}
	decimals1, err := mintDecimals(ctx, m.gateway, mint1.String())
	if err != nil {
		return nil, err
	}
	raw0, err := rawFloatAmount(amount0, decimals0)
	if err != nil {
		return nil, err
	}
	raw1, err := rawFloatAmount(amount1, decimals1)
	if err != nil {
		return nil, err
	}

	pool, err := m.poolAddress(mint0, mint1)
	if err != nil {
		return nil, err
	}
	authority, err := m.authorityAddress()
	if err != nil {
		return nil, err
	}
	lpMint, err := m.lpMintAddress(pool)
	if err != nil {
		return nil, err
	}
	vault0, err := m.vaultAddress(pool, mint0)
	if err != nil {
		return nil, err
	}
	vault1, err := m.vaultAddress(pool, mint1)
	if err != nil {
		return nil, err
	}
	observation, err := m.observationAddress(pool)
	if err != nil {
		return nil, err
	}

	wallet := m.wallet.PublicKey()
	creatorToken0, err := solana.AssociatedTokenAddress(wallet, mint0)
	if err != nil {
		return nil, err
	}
	creatorToken1, err := solana.AssociatedTokenAddress(wallet, mint1)
	if err != nil {
		return nil, err
	}
	creatorLp, err := solana.AssociatedTokenAddress(wallet, lpMint)
	if err != nil {
		return nil, err
	}

	data := anchorDiscriminator("initialize")
	data = writeU64(data, raw0)
	data = writeU64(data, raw1)
	data = writeU64(data, 0) // open time: now

	ix := solana.Instruction{
		ProgramID: m.programID,
		Accounts: []solana.AccountMeta{
			solana.Meta(wallet, true, true),
			solana.Meta(m.ammConfig, false, false),
			solana.Meta(authority, false, false),
			solana.Meta(pool, false, true),
			solana.Meta(mint0, false, false),
			solana.Meta(mint1, false, false),
			solana.Meta(lpMint, false, true),
			solana.Meta(creatorToken0, false, true),
			solana.Meta(creatorToken1, false, true),
			solana.Meta(creatorLp, false, true),
			solana.Meta(vault0, false, true),
			solana.Meta(vault1, false, true),
			solana.Meta(m.feeReceiver, false, true),
			solana.Meta(observation, false, true),
			solana.Meta(solana.TokenProgramID, false, false),
			solana.Meta(solana.AssociatedTokenProgramID, false, false),
			solana.Meta(solana.SystemProgramID, false, false),
			solana.Meta(solana.SysvarRentID, false, false),
		},
		Data: data,
	}

	txid, err := m.send(ctx, "create-pool", solana.NewTransaction(ix))
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	m.log("pool created: pool=%s tx=%s", pool, txid)

	return &CreateResult{
		PoolID: pool.String(),
		TxID:   txid,
	}, nil
}

// guard verifies the pool belongs to this deployment before any mutation.
func (m *CpmmManager) guard(ctx context.Context, poolID string) error {
	return verifyPoolOwner(ctx, m.gateway, poolID, []solana.PublicKey{m.programID}, "cpmm")
}

// poolState holds the accounts parsed out of the pool record.
type cpmmPoolState struct {
	lpMint solana.PublicKey
	mint0  solana.PublicKey
	mint1  solana.PublicKey
}

func (m *CpmmManager) poolState(ctx context.Context, poolID string) (*cpmmPoolState, error) {
	info, err := m.gateway.GetAccountInfo(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("fetch pool %s: %w", poolID, err)
	}
	if info == nil || len(info.Data) < cpmmPoolDataMin {
		return nil, fmt.Errorf("pool %s: account missing or truncated", poolID)
	}
	st := &cpmmPoolState{}
	copy(st.lpMint[:], info.Data[cpmmPoolLpMintOffset:cpmmPoolLpMintOffset+32])
	copy(st.mint0[:], info.Data[cpmmPoolMint0Offset:cpmmPoolMint0Offset+32])
	copy(st.mint1[:], info.Data[cpmmPoolMint1Offset:cpmmPoolMint1Offset+32])
	return st, nil
}

// lpBalance returns the wallet's raw LP token balance for the pool.
func (m *CpmmManager) lpBalance(ctx context.Context, lpMint solana.PublicKey) (uint64, error) {
	wallet := m.wallet.PublicKey()
	lpAccount, err := solana.AssociatedTokenAddress(wallet, lpMint)
	if err != nil {
		return 0, err
	}
	balance, err := m.gateway.GetTokenAccountBalance(ctx, lpAccount.String())
	if err != nil {
		return 0, fmt.Errorf("fetch lp balance: %w", err)
	}
	raw, err := strconv.ParseUint(balance.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse lp balance %q: %w", balance.Amount, err)
	}
	return raw, nil
}

// liquidityInstruction builds a deposit or withdraw against the pool.
func (m *CpmmManager) liquidityInstruction(poolID string, st *cpmmPoolState, data []byte) (solana.Instruction, error) {
	var zero solana.Instruction

	pool, err := solana.PublicKeyFromBase58(poolID)
	if err != nil {
		return zero, err
	}
	authority, err := m.authorityAddress()
	if err != nil {
		return zero, err
	}
	vault0, err := m.vaultAddress(pool, st.mint0)
	if err != nil {
		return zero, err
	}
	vault1, err := m.vaultAddress(pool, st.mint1)
	if err != nil {
		return zero, err
	}

	wallet := m.wallet.PublicKey()
	ownerToken0, err := solana.AssociatedTokenAddress(wallet, st.mint0)
	if err != nil {
		return zero, err
	}
	ownerToken1, err := solana.AssociatedTokenAddress(wallet, st.mint1)
	if err != nil {
		return zero, err
	}
	ownerLp, err := solana.AssociatedTokenAddress(wallet, st.lpMint)
	if err != nil {
		return zero, err
	}

	return solana.Instruction{
		ProgramID: m.programID,
		Accounts: []solana.AccountMeta{
			solana.Meta(wallet, true, false),
			solana.Meta(authority, false, false),
			solana.Meta(pool, false, true),
			solana.Meta(ownerLp, false, true),
			solana.Meta(ownerToken0, false, true),
			solana.Meta(ownerToken1, false, true),
			solana.Meta(vault0, false, true),
			solana.Meta(vault1, false, true),
			solana.Meta(st.mint0, false, false),
			solana.Meta(st.mint1, false, false),
			solana.Meta(st.lpMint, false, true),
			solana.Meta(solana.TokenProgramID, false, false),
		},
		Data: data,
	}, nil
}

// AddLiquidity deposits into an existing pool.
func (m *CpmmManager) AddLiquidity(ctx context.Context, poolID, positionID string, amountA, amountB float64) (string, error) {
	if err := m.guard(ctx, poolID); err != nil {
		return "", err
	}
	st, err := m.poolState(ctx, poolID)
	if err != nil {
		return "", err
	}

	decimals0, err := mintDecimals(ctx, m.gateway, st.mint0.String())
	if err != nil {
		return "", err
	}
	decimals1, err := mintDecimals(ctx, m.gateway, st.mint1.String())
	if err != nil {
		return "", err
	}
	raw0, err := rawFloatAmount(amountA, decimals0)
	if err != nil {
		return "", err
	}
	raw1, err := rawFloatAmount(amountB, decimals1)
	if err != nil {
		return "", err
	}

	// LP tokens for a balanced deposit: sqrt of the deposit product.
	lpAmount := new(big.Int).Sqrt(new(big.Int).Mul(
		new(big.Int).SetUint64(raw0),
		new(big.Int).SetUint64(raw1),
	))
	if !lpAmount.IsUint64() {
		return "", fmt.Errorf("lp amount overflows u64")
	}

	data := anchorDiscriminator("deposit")
	data = writeU64(data, lpAmount.Uint64())
	data = writeU64(data, raw0) // max token 0
	data = writeU64(data, raw1) // max token 1

	ix, err := m.liquidityInstruction(poolID, st, data)
	if err != nil {
		return "", err
	}
	txid, err := m.send(ctx, "add-liquidity", solana.NewTransaction(ix))
	if err != nil {
		return "", fmt.Errorf("add liquidity to %s: %w", poolID, err)
	}
	m.log("liquidity added: pool=%s tx=%s", poolID, txid)
	return txid, nil
}

// RemoveAllLiquidity burns the wallet's entire LP balance with zero
// minimum-out thresholds. An already-empty LP account is a successful
// no-op so that a re-run after a crash does not fail forever.
func (m *CpmmManager) RemoveAllLiquidity(ctx context.Context, poolID, positionID string) (string, error) {
	if err := m.guard(ctx, poolID); err != nil {
		return "", err
	}
	st, err := m.poolState(ctx, poolID)
	if err != nil {
		return "", err
	}

	lpAmount, err := m.lpBalance(ctx, st.lpMint)
	if err != nil {
		return "", err
	}
	if lpAmount == 0 {
		m.log("no lp tokens for pool %s, nothing to withdraw", poolID)
		return "", nil
	}

	data := anchorDiscriminator("withdraw")
	data = writeU64(data, lpAmount)
	data = writeU64(data, 0) // min token 0
	data = writeU64(data, 0) // min token 1

	ix, err := m.liquidityInstruction(poolID, st, data)
	if err != nil {
		return "", err
	}
	txid, err := m.send(ctx, "remove-liquidity", solana.NewTransaction(ix))
	if err != nil {
		return "", fmt.Errorf("remove liquidity from %s: %w", poolID, err)
	}
	m.log("liquidity removed: pool=%s lp=%d tx=%s", poolID, lpAmount, txid)
	return txid, nil
}

// ClosePosition is a no-op; this protocol has no standalone positions.
func (m *CpmmManager) ClosePosition(ctx context.Context, poolID, positionID string) (string, error) {
	return "", nil
}

// RemoveAllLiquidityAndClosePosition reduces to a full withdrawal.
func (m *CpmmManager) RemoveAllLiquidityAndClosePosition(ctx context.Context, poolID, positionID string) (string, error) {
	return m.RemoveAllLiquidity(ctx, poolID, positionID)
}

func (m *CpmmManager) log(format string, args ...interface{}) {
	log.Printf("[pool/cpmm] "+format, args...)
}
