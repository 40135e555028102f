// Package pool manages constant-product liquidity pools. A single Manager
// interface fronts two protocol variants: cpamm (position-NFT pools) and
// cpmm (classic LP-token pools).
package pool

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"solana-pool-cycler/internal/solana"
)

// Manager is the protocol-independent pool surface.
type Manager interface {
	// CreatePool creates a pool for the two mints and seeds it with the
	// given whole-token amounts.
	CreatePool(ctx context.Context, tokenA, tokenB string, amountA, amountB float64) (*CreateResult, error)

	// AddLiquidity deposits into an existing pool position.
	AddLiquidity(ctx context.Context, poolID, positionID string, amountA, amountB float64) (string, error)

	// RemoveAllLiquidity withdraws the full position with zero minimum-out
	// thresholds.
	RemoveAllLiquidity(ctx context.Context, poolID, positionID string) (string, error)

	// ClosePosition reclaims the position account. A no-op for protocols
	// without standalone positions.
	ClosePosition(ctx context.Context, poolID, positionID string) (string, error)

	// RemoveAllLiquidityAndClosePosition combines withdrawal and close,
	// skipping the withdrawal when the position is already empty.
	RemoveAllLiquidityAndClosePosition(ctx context.Context, poolID, positionID string) (string, error)
}

// CreateResult reports a created pool.
type CreateResult struct {
	PoolID     string
	PositionID string // empty for protocols without standalone positions
	TxID       string
}

// Config holds behavior shared by both variants.
type Config struct {
	// WaitForConfirmation selects confirmed submission; when false,
	// transactions return after broadcast.
	WaitForConfirmation bool
}

// Submitter is the transaction surface pool managers require.
type Submitter interface {
	Submit(ctx context.Context, label string, tx *solana.Transaction, extraSigners ...*solana.Keypair) (string, error)
	Broadcast(ctx context.Context, label string, tx *solana.Transaction, extraSigners ...*solana.Keypair) (string, error)
}

// WrongPoolKindError reports a pool account owned by a different protocol
// than the manager operating on it.
type WrongPoolKindError struct {
	Pool  string
	Owner string
	Want  string
}

func (e *WrongPoolKindError) Error() string {
	return fmt.Sprintf("pool %s is owned by %s, not a %s pool", e.Pool, e.Owner, e.Want)
}

// anchorDiscriminator computes the 8-byte instruction discriminator for an
// anchor program method.
func anchorDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// rawFloatAmount converts a whole-token amount to raw units at the given
// decimal scale.
func rawFloatAmount(amount float64, decimals uint8) (uint64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative amount %f", amount)
	}
	scaled := new(big.Float).Mul(
		big.NewFloat(amount),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	)
	raw, _ := scaled.Int(nil)
	if !raw.IsUint64() {
		return 0, fmt.Errorf("amount %f with %d decimals overflows u64", amount, decimals)
	}
	return raw.Uint64(), nil
}

// mintDecimals fetches the decimal scale of a mint from the cluster.
func mintDecimals(ctx context.Context, gw solana.Gateway, mint string) (uint8, error) {
	supply, err := gw.GetTokenSupply(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("fetch decimals for %s: %w", mint, err)
	}
	return supply.Decimals, nil
}

// preparePoolParams derives the initial Q64.64 sqrt price and liquidity
// for a full-range position from the two raw deposits.
func preparePoolParams(rawA, rawB uint64) (sqrtPrice, liquidity *big.Int) {
	a := new(big.Int).SetUint64(rawA)
	b := new(big.Int).SetUint64(rawB)

	// sqrtPrice = sqrt(b/a) in Q64.64: sqrt(b << 128 / a).
	num := new(big.Int).Lsh(b, 128)
	num.Div(num, a)
	sqrtPrice = new(big.Int).Sqrt(num)

	// liquidity = sqrt(a*b) in Q64.64.
	prod := new(big.Int).Mul(a, b)
	prod.Lsh(prod, 128)
	liquidity = new(big.Int).Sqrt(prod)
	return sqrtPrice, liquidity
}

// writeU64 appends a little-endian u64.
func writeU64(data []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(data, buf[:]...)
}

// writeU128 appends a little-endian u128 from a non-negative big.Int.
func writeU128(data []byte, v *big.Int) []byte {
	var buf [16]byte
	raw := v.Bytes() // big-endian
	for i, b := range raw {
		buf[len(raw)-1-i] = b
	}
	return append(data, buf[:]...)
}

// readU128 reads a little-endian u128.
func readU128(data []byte) *big.Int {
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[i] = data[15-i]
	}
	return new(big.Int).SetBytes(be)
}

// sortMints orders two mints by byte comparison, the canonical pool-side
// ordering both protocols require.
func sortMints(a, b solana.PublicKey) (lo, hi solana.PublicKey) {
	for i := 0; i < 32; i++ {
		if a[i] < b[i] {
			return a, b
		}
		if a[i] > b[i] {
			return b, a
		}
	}
	return a, b
}

// verifyPoolOwner guards mutating operations: the pool account must exist
// and be owned by one of the variant's accepted programs.
func verifyPoolOwner(ctx context.Context, gw solana.Gateway, poolID string, accepted []solana.PublicKey, kind string) error {
	info, err := gw.GetAccountInfo(ctx, poolID)
	if err != nil {
		return fmt.Errorf("fetch pool %s: %w", poolID, err)
	}
	if info == nil {
		return fmt.Errorf("pool %s does not exist", poolID)
	}
	for _, program := range accepted {
		if info.Owner == program.String() {
			return nil
		}
	}
	return &WrongPoolKindError{Pool: poolID, Owner: info.Owner, Want: kind}
}
