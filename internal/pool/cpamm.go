package pool

import (
	"context"
	"fmt"
	"log"

	"solana-pool-cycler/internal/solana"
)

// CpammProgramID is the position-NFT constant-product AMM program.
var CpammProgramID = solana.MustPublicKey("cpamdpZCGKUy5JxQXB4dcpGPiikHawvSWAd6mEn1sGG")

// Pool state layout offsets. The pool account stores its fee config and
// the two mints right after the discriminator.
const (
	cpammPoolMintAOffset = 40 // 8 discriminator + 32 config
	cpammPoolMintBOffset = 72
	cpammPoolDataMin     = 104
)

// Position state layout: discriminator, pool, NFT mint, then liquidity.
const (
	cpammPositionLiquidityOffset = 72
	cpammPositionDataMin         = 88
)

// CpammManager implements Manager on the position-NFT AMM.
//
// PositionID is the position NFT mint address; the position and NFT token
// account addresses both derive from it.
type CpammManager struct {
	gateway    solana.Gateway
	submitter  Submitter
	wallet     *solana.Keypair
	poolConfig solana.PublicKey
	config     Config
}

var _ Manager = (*CpammManager)(nil)

// CpammOptions for creating CpammManager.
type CpammOptions struct {
	Gateway   solana.Gateway
	Submitter Submitter
	Wallet    *solana.Keypair
	// PoolConfig is the fee/curve config account pools are created under.
	PoolConfig solana.PublicKey
	Config     Config
}

// NewCpamm creates a position-NFT AMM manager.
func NewCpamm(opts CpammOptions) *CpammManager {
	return &CpammManager{
		gateway:    opts.Gateway,
		submitter:  opts.Submitter,
		wallet:     opts.Wallet,
		poolConfig: opts.PoolConfig,
		config:     opts.Config,
	}
}

func (m *CpammManager) send(ctx context.Context, label string, tx *solana.Transaction, signers ...*solana.Keypair) (string, error) {
	if m.config.WaitForConfirmation {
		return m.submitter.Submit(ctx, label, tx, signers...)
	}
	return m.submitter.Broadcast(ctx, label, tx, signers...)
}

// derived addresses

func cpammPoolAuthority() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("pool_authority")}, CpammProgramID)
	return addr, err
}

func cpammPoolAddress(config, mintA, mintB solana.PublicKey) (solana.PublicKey, error) {
	lo, hi := sortMints(mintA, mintB)
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("pool"), config[:], lo[:], hi[:]},
		CpammProgramID,
	)
	return addr, err
}

func cpammPositionAddress(nftMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("position"), nftMint[:]},
		CpammProgramID,
	)
	return addr, err
}

func cpammPositionNftAccount(nftMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("position_nft_account"), nftMint[:]},
		CpammProgramID,
	)
	return addr, err
}

func cpammTokenVault(mint, pool solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("token_vault"), mint[:], pool[:]},
		CpammProgramID,
	)
	return addr, err
}

func cpammEventAuthority() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("__event_authority")}, CpammProgramID)
	return addr, err
}

// CreatePool creates and seeds a pool with a fresh full-range position.
func (m *CpammManager) CreatePool(ctx context.Context, tokenA, tokenB string, amountA, amountB float64) (*CreateResult, error) {
	mintA, err := solana.PublicKeyFromBase58(tokenA)
	if err != nil {
		return nil, err
	}
	mintB, err := solana.PublicKeyFromBase58(tokenB)
	if err != nil {
		return nil, err
	}

	decimalsA, err := mintDecimals(ctx, m.gateway, tokenA)
	if err != nil {
		return nil, err
	}
	decimalsB, err := mintDecimals(ctx, m.gateway, tokenB)
	if err != nil {
		return nil, err
	}

	rawA, err := rawFloatAmount(amountA, decimalsA)
	if err != nil {
		return nil, err
	}
	rawB, err := rawFloatAmount(amountB, decimalsB)
	if err != nil {
		return nil, err
	}
	sqrtPrice, liquidity := preparePoolParams(rawA, rawB)

	nftKeypair, err := solana.NewKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate position nft keypair: %w", err)
	}
	nftMint := nftKeypair.PublicKey()

	pool, err := cpammPoolAddress(m.poolConfig, mintA, mintB)
	if err != nil {
		return nil, err
	}
	position, err := cpammPositionAddress(nftMint)
	if err != nil {
		return nil, err
	}
	nftAccount, err := cpammPositionNftAccount(nftMint)
	if err != nil {
		return nil, err
	}
	authority, err := cpammPoolAuthority()
	if err != nil {
		return nil, err
	}
	vaultA, err := cpammTokenVault(mintA, pool)
	if err != nil {
		return nil, err
	}
	vaultB, err := cpammTokenVault(mintB, pool)
	if err != nil {
		return nil, err
	}
	eventAuthority, err := cpammEventAuthority()
	if err != nil {
		return nil, err
	}

	wallet := m.wallet.PublicKey()
	payerTokenA, err := solana.AssociatedTokenAddress(wallet, mintA)
	if err != nil {
		return nil, err
	}
	payerTokenB, err := solana.AssociatedTokenAddress(wallet, mintB)
	if err != nil {
		return nil, err
	}

	data := anchorDiscriminator("initialize_pool")
	data = append(data, writeU128(nil, liquidity)...)
	data = append(data, writeU128(nil, sqrtPrice)...)

	ix := solana.Instruction{
		ProgramID: CpammProgramID,
		Accounts: []solana.AccountMeta{
			solana.Meta(wallet, true, true),
			solana.Meta(m.poolConfig, false, false),
			solana.Meta(authority, false, false),
			solana.Meta(pool, false, true),
			solana.Meta(position, false, true),
			solana.Meta(nftMint, true, true),
			solana.Meta(nftAccount, false, true),
			solana.Meta(mintA, false, false),
			solana.Meta(mintB, false, false),
			solana.Meta(vaultA, false, true),
			solana.Meta(vaultB, false, true),
			solana.Meta(payerTokenA, false, true),
			solana.Meta(payerTokenB, false, true),
			solana.Meta(solana.TokenProgramID, false, false),
			solana.Meta(solana.SystemProgramID, false, false),
			solana.Meta(eventAuthority, false, false),
			solana.Meta(CpammProgramID, false, false),
		},
		Data: data,
	}

	txid, err := m.send(ctx, "create-pool", solana.NewTransaction(ix), nftKeypair)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	m.log("pool created: pool=%s position-nft=%s tx=%s", pool, nftMint, txid)

	return &CreateResult{
		PoolID:     pool.String(),
		PositionID: nftMint.String(),
		TxID:       txid,
	}, nil
}

// poolMints reads the two mints out of the pool account.
func (m *CpammManager) poolMints(ctx context.Context, poolID string) (mintA, mintB solana.PublicKey, err error) {
	info, err := m.gateway.GetAccountInfo(ctx, poolID)
	if err != nil {
		return mintA, mintB, fmt.Errorf("fetch pool %s: %w", poolID, err)
	}
	if info == nil || len(info.Data) < cpammPoolDataMin {
		return mintA, mintB, fmt.Errorf("pool %s: account missing or truncated", poolID)
	}
	copy(mintA[:], info.Data[cpammPoolMintAOffset:cpammPoolMintAOffset+32])
	copy(mintB[:], info.Data[cpammPoolMintBOffset:cpammPoolMintBOffset+32])
	return mintA, mintB, nil
}

// guard verifies the pool belongs to this protocol before any mutation.
func (m *CpammManager) guard(ctx context.Context, poolID string) error {
	return verifyPoolOwner(ctx, m.gateway, poolID, []solana.PublicKey{CpammProgramID}, "cpamm")
}

// positionAccounts resolves the derived addresses for a stored position id.
func (m *CpammManager) positionAccounts(positionID string) (nftMint, position, nftAccount solana.PublicKey, err error) {
	nftMint, err = solana.PublicKeyFromBase58(positionID)
	if err != nil {
		return
	}
	position, err = cpammPositionAddress(nftMint)
	if err != nil {
		return
	}
	nftAccount, err = cpammPositionNftAccount(nftMint)
	return
}

// positionLiquidity reads the current liquidity of a position.
func (m *CpammManager) positionLiquidity(ctx context.Context, position solana.PublicKey) (hasLiquidity bool, err error) {
	info, err := m.gateway.GetAccountInfo(ctx, position.String())
	if err != nil {
		return false, fmt.Errorf("fetch position %s: %w", position, err)
	}
	if info == nil || len(info.Data) < cpammPositionDataMin {
		return false, fmt.Errorf("position %s: account missing or truncated", position)
	}
	liq := readU128(info.Data[cpammPositionLiquidityOffset:])
	return liq.Sign() > 0, nil
}

// liquidityInstruction builds a position mutation common to deposits and
// withdrawals.
func (m *CpammManager) liquidityInstruction(ctx context.Context, poolID string, position, nftAccount solana.PublicKey, data []byte) (solana.Instruction, error) {
	var zero solana.Instruction

	pool, err := solana.PublicKeyFromBase58(poolID)
	if err != nil {
		return zero, err
	}
	mintA, mintB, err := m.poolMints(ctx, poolID)
	if err != nil {
		return zero, err
	}
	authority, err := cpammPoolAuthority()
	if err != nil {
		return zero, err
	}
	vaultA, err := cpammTokenVault(mintA, pool)
	if err != nil {
		return zero, err
	}
	vaultB, err := cpammTokenVault(mintB, pool)
	if err != nil {
		return zero, err
	}
	eventAuthority, err := cpammEventAuthority()
	if err != nil {
		return zero, err
	}

	wallet := m.wallet.PublicKey()
	walletTokenA, err := solana.AssociatedTokenAddress(wallet, mintA)
	if err != nil {
		return zero, err
	}
	walletTokenB, err := solana.AssociatedTokenAddress(wallet, mintB)
	if err != nil {
		return zero, err
	}

	return solana.Instruction{
		ProgramID: CpammProgramID,
		Accounts: []solana.AccountMeta{
			solana.Meta(authority, false, false),
			solana.Meta(pool, false, true),
			solana.Meta(position, false, true),
			solana.Meta(walletTokenA, false, true),
			solana.Meta(walletTokenB, false, true),
			solana.Meta(vaultA, false, true),
			solana.Meta(vaultB, false, true),
			solana.Meta(mintA, false, false),
			solana.Meta(mintB, false, false),
			solana.Meta(nftAccount, false, false),
			solana.Meta(wallet, true, false),
			solana.Meta(solana.TokenProgramID, false, false),
			solana.Meta(eventAuthority, false, false),
			solana.Meta(CpammProgramID, false, false),
		},
		Data: data,
	}, nil
}

// AddLiquidity deposits into an existing position.
func (m *CpammManager) AddLiquidity(ctx context.Context, poolID, positionID string, amountA, amountB float64) (string, error) {
	if err := m.guard(ctx, poolID); err != nil {
		return "", err
	}
	_, position, nftAccount, err := m.positionAccounts(positionID)
	if err != nil {
		return "", err
	}

	mintA, mintB, err := m.poolMints(ctx, poolID)
	if err != nil {
		return "", err
	}
	decimalsA, err := mintDecimals(ctx, m.gateway, mintA.String())
	if err != nil {
		return "", err
	}
	decimalsB, err := mintDecimals(ctx, m.gateway, mintB.String())
	if err != nil {
		return "", err
	}
	rawA, err := rawFloatAmount(amountA, decimalsA)
	if err != nil {
		return "", err
	}
	rawB, err := rawFloatAmount(amountB, decimalsB)
	if err != nil {
		return "", err
	}
	_, liquidityDelta := preparePoolParams(rawA, rawB)

	data := anchorDiscriminator("add_liquidity")
	data = append(data, writeU128(nil, liquidityDelta)...)
	data = writeU64(data, rawA) // max token a
	data = writeU64(data, rawB) // max token b

	ix, err := m.liquidityInstruction(ctx, poolID, position, nftAccount, data)
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

// removeAllData is the full-exit withdrawal payload: zero minimum-out
// thresholds on both sides.
func removeAllData() []byte {
	data := anchorDiscriminator("remove_all_liquidity")
	data = writeU64(data, 0)
	data = writeU64(data, 0)
	return data
}

// RemoveAllLiquidity withdraws the entire position.
func (m *CpammManager) RemoveAllLiquidity(ctx context.Context, poolID, positionID string) (string, error) {
	if err := m.guard(ctx, poolID); err != nil {
		return "", err
	}
	_, position, nftAccount, err := m.positionAccounts(positionID)
	if err != nil {
		return "", err
	}

	ix, err := m.liquidityInstruction(ctx, poolID, position, nftAccount, removeAllData())
	if err != nil {
		return "", err
	}
	txid, err := m.send(ctx, "remove-liquidity", solana.NewTransaction(ix))
	if err != nil {
		return "", fmt.Errorf("remove liquidity from %s: %w", poolID, err)
	}
	m.log("liquidity removed: pool=%s tx=%s", poolID, txid)
	return txid, nil
}

// closeInstruction reclaims the position and burns its NFT.
func (m *CpammManager) closeInstruction(poolID string, nftMint, position, nftAccount solana.PublicKey) (solana.Instruction, error) {
	var zero solana.Instruction

	pool, err := solana.PublicKeyFromBase58(poolID)
	if err != nil {
		return zero, err
	}
	authority, err := cpammPoolAuthority()
	if err != nil {
		return zero, err
	}
	eventAuthority, err := cpammEventAuthority()
	if err != nil {
		return zero, err
	}
	wallet := m.wallet.PublicKey()

	return solana.Instruction{
		ProgramID: CpammProgramID,
		Accounts: []solana.AccountMeta{
			solana.Meta(nftAccount, false, true),
			solana.Meta(nftMint, false, true),
			solana.Meta(pool, false, true),
			solana.Meta(position, false, true),
			solana.Meta(authority, false, false),
			solana.Meta(wallet, false, true), // rent receiver
			solana.Meta(wallet, true, false), // owner
			solana.Meta(solana.TokenProgramID, false, false),
			solana.Meta(eventAuthority, false, false),
			solana.Meta(CpammProgramID, false, false),
		},
		Data: anchorDiscriminator("close_position"),
	}, nil
}

// ClosePosition reclaims an emptied position account.
func (m *CpammManager) ClosePosition(ctx context.Context, poolID, positionID string) (string, error) {
	if err := m.guard(ctx, poolID); err != nil {
		return "", err
	}
	nftMint, position, nftAccount, err := m.positionAccounts(positionID)
	if err != nil {
		return "", err
	}

	ix, err := m.closeInstruction(poolID, nftMint, position, nftAccount)
	if err != nil {
		return "", err
	}
	txid, err := m.send(ctx, "close-position", solana.NewTransaction(ix))
	if err != nil {
		return "", fmt.Errorf("close position %s: %w", positionID, err)
	}
	m.log("position closed: position-nft=%s tx=%s", positionID, txid)
	return txid, nil
}

// RemoveAllLiquidityAndClosePosition withdraws and closes in one
// transaction. When the position is already empty only the close is sent,
// since a zero withdrawal would fail the whole transaction.
func (m *CpammManager) RemoveAllLiquidityAndClosePosition(ctx context.Context, poolID, positionID string) (string, error) {
	if err := m.guard(ctx, poolID); err != nil {
		return "", err
	}
	nftMint, position, nftAccount, err := m.positionAccounts(positionID)
	if err != nil {
		return "", err
	}

	hasLiquidity, err := m.positionLiquidity(ctx, position)
	if err != nil {
		return "", err
	}

	closeIx, err := m.closeInstruction(poolID, nftMint, position, nftAccount)
	if err != nil {
		return "", err
	}

	tx := solana.NewTransaction()
	if hasLiquidity {
		removeIx, err := m.liquidityInstruction(ctx, poolID, position, nftAccount, removeAllData())
		if err != nil {
			return "", err
		}
		tx.Add(removeIx)
	} else {
		m.log("position %s already empty, closing only", positionID)
	}
	tx.Add(closeIx)

	txid, err := m.send(ctx, "withdraw-and-close", tx)
	if err != nil {
		return "", fmt.Errorf("withdraw and close %s: %w", positionID, err)
	}
	m.log("position withdrawn and closed: pool=%s tx=%s", poolID, txid)
	return txid, nil
}

func (m *CpammManager) log(format string, args ...interface{}) {
	log.Printf("[pool/cpamm] "+format, args...)
}
