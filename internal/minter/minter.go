// Package minter creates SPL tokens: mint account, initial supply,
// metadata, and optional authority revocation.
package minter

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"solana-pool-cycler/internal/metadata"
	"solana-pool-cycler/internal/solana"
)

// DefaultSettleDelay is how long the minter waits after the mint
// transaction confirms before revoking authorities, giving RPC nodes time
// to serve the new accounts.
const DefaultSettleDelay = 8 * time.Second

// Submitter is the transaction submission surface the minter needs.
type Submitter interface {
	Submit(ctx context.Context, label string, tx *solana.Transaction, extraSigners ...*solana.Keypair) (string, error)
}

// TokenParams describes the token to create.
type TokenParams struct {
	Name        string
	Symbol      string
	Description string
	Image       string
	Website     string
	Twitter     string
	Telegram    string
	Decimals    uint8
	// Supply is the whole-token supply; raw units are Supply * 10^Decimals.
	Supply uint64
}

// MintResult reports the created token.
type MintResult struct {
	MintAddress string
	MetadataURI string
	TxID        string
}

// Minter creates tokens owned by the configured wallet.
type Minter struct {
	gateway   solana.Gateway
	submitter Submitter
	uploader  metadata.Uploader
	wallet    *solana.Keypair
	// authority holds mint and freeze authority until revocation. Defaults
	// to the wallet; kept separate so issuance with a dedicated authority
	// key signs with the right keypair.
	authority       *solana.Keypair
	revokeAuthority bool
	settleDelay     time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
}

// Options for creating Minter.
type Options struct {
	Gateway   solana.Gateway
	Submitter Submitter
	Uploader  metadata.Uploader
	Wallet    *solana.Keypair
	// Authority signs MintTo and SetAuthority. Nil means the wallet.
	Authority *solana.Keypair
	// RevokeAuthority permanently revokes mint and freeze authority after
	// the supply is issued.
	RevokeAuthority bool
	SettleDelay     time.Duration
}

// New creates a Minter.
func New(opts Options) *Minter {
	authority := opts.Authority
	if authority == nil {
		authority = opts.Wallet
	}
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Minter{
		gateway:         opts.Gateway,
		submitter:       opts.Submitter,
		uploader:        opts.Uploader,
		wallet:          opts.Wallet,
		authority:       authority,
		revokeAuthority: opts.RevokeAuthority,
		settleDelay:     settle,
		sleep:           sleepCtx,
	}
}

// CreateTokenWithMetadata uploads the metadata document, creates the mint,
// issues the full supply to the wallet, and attaches on-chain metadata in a
// single transaction. If configured, mint and freeze authority are revoked
// in a follow-up transaction.
//
// A metadata upload failure fails the whole operation; a token without its
// metadata document is not usable downstream.
func (m *Minter) CreateTokenWithMetadata(ctx context.Context, params TokenParams) (*MintResult, error) {
	uri, err := m.uploader.UploadJSON(ctx, metadata.TokenMetadata{
		Name:        params.Name,
		Symbol:      params.Symbol,
		Description: params.Description,
		Image:       params.Image,
		Website:     params.Website,
		Twitter:     params.Twitter,
		Telegram:    params.Telegram,
	})
	if err != nil {
		return nil, fmt.Errorf("upload metadata: %w", err)
	}
	m.log("metadata pinned: %s", uri)

	mintKeypair, err := solana.NewKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate mint keypair: %w", err)
	}
	mint := mintKeypair.PublicKey()
	wallet := m.wallet.PublicKey()
	authority := m.authority.PublicKey()

	rawSupply, err := rawAmount(params.Supply, params.Decimals)
	if err != nil {
		return nil, err
	}

	rent, err := m.gateway.GetMinimumBalanceForRentExemption(ctx, solana.MintAccountSize)
	if err != nil {
		return nil, fmt.Errorf("fetch mint rent: %w", err)
	}

	ata, err := solana.AssociatedTokenAddress(wallet, mint)
	if err != nil {
		return nil, err
	}
	metaAddr, err := solana.MetadataAddress(mint)
	if err != nil {
		return nil, err
	}

	tx := solana.NewTransaction(
		solana.NewCreateAccountInstruction(wallet, mint, rent, solana.MintAccountSize, solana.TokenProgramID),
		solana.NewInitializeMint2Instruction(mint, params.Decimals, authority, authority),
		solana.NewCreateAssociatedTokenAccountInstruction(wallet, wallet, mint, ata),
		solana.NewMintToInstruction(mint, ata, authority, rawSupply),
		solana.NewCreateMetadataAccountInstruction(metaAddr, mint, authority, wallet, wallet, solana.MetadataArgs{
			Name:   params.Name,
			Symbol: params.Symbol,
			URI:    uri,
		}),
	)

	signers := []*solana.Keypair{mintKeypair}
	if m.authority != m.wallet {
		signers = append(signers, m.authority)
	}

	txid, err := m.submitter.Submit(ctx, "mint-token", tx, signers...)
	if err != nil {
		return nil, fmt.Errorf("create token %s: %w", params.Symbol, err)
	}
	m.log("token %s created: mint=%s tx=%s", params.Symbol, mint, txid)

	if m.revokeAuthority {
		if err := m.sleep(ctx, m.settleDelay); err != nil {
			return nil, err
		}
		if err := m.revoke(ctx, mint); err != nil {
			return nil, err
		}
	}

	return &MintResult{
		MintAddress: mint.String(),
		MetadataURI: uri,
		TxID:        txid,
	}, nil
}

// revoke permanently removes mint and freeze authority.
func (m *Minter) revoke(ctx context.Context, mint solana.PublicKey) error {
	authority := m.authority.PublicKey()

	tx := solana.NewTransaction(
		solana.NewSetAuthorityInstruction(mint, authority, solana.AuthorityMintTokens, nil),
		solana.NewSetAuthorityInstruction(mint, authority, solana.AuthorityFreezeAccount, nil),
	)

	var signers []*solana.Keypair
	if m.authority != m.wallet {
		signers = append(signers, m.authority)
	}

	txid, err := m.submitter.Submit(ctx, "revoke-authority", tx, signers...)
	if err != nil {
		return fmt.Errorf("revoke authorities for %s: %w", mint, err)
	}
	m.log("authorities revoked for %s: tx=%s", mint, txid)
	return nil
}

// rawAmount converts a whole-token supply to raw units, guarding against
// uint64 overflow.
func rawAmount(supply uint64, decimals uint8) (uint64, error) {
	raw := new(big.Int).Mul(
		new(big.Int).SetUint64(supply),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil),
	)
	if !raw.IsUint64() {
		return 0, fmt.Errorf("supply %d with %d decimals overflows u64", supply, decimals)
	}
	return raw.Uint64(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (m *Minter) log(format string, args ...interface{}) {
	log.Printf("[minter] "+format, args...)
}
