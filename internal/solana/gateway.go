// Package solana provides the low-level chain gateway: JSON-RPC access,
// keypairs, transaction building and signing, and program-derived addresses.
// No business logic lives here.
package solana

import "context"

// Gateway defines the RPC operations the rest of the system needs.
type Gateway interface {
	// GetLatestBlockhash returns a fresh blockhash and the last block height
	// at which a transaction referencing it remains valid.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction broadcasts a signed transaction and returns its signature.
	SendTransaction(ctx context.Context, tx *Transaction) (string, error)

	// SimulateTransaction runs the transaction against the current bank state
	// without committing it.
	SimulateTransaction(ctx context.Context, tx *Transaction) (*SimulationResult, error)

	// GetSignatureStatuses returns the processing status of each signature.
	// A nil entry means the signature is unknown to the cluster.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)

	// GetAccountInfo retrieves account info by public key. Returns nil if the
	// account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenSupply returns the total supply and decimals of a mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)

	// GetTokenAccountBalance returns the balance of a token account.
	GetTokenAccountBalance(ctx context.Context, account string) (*TokenAmount, error)

	// GetMinimumBalanceForRentExemption returns the lamports needed to make
	// an account of the given size rent exempt.
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
}

// Blockhash is a recent blockhash with its validity bound.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SignatureStatus reports where a transaction is in its lifecycle.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	ConfirmationStatus string // "processed" | "confirmed" | "finalized"
	Err                interface{}
}

// Confirmed reports whether the transaction has reached at least the
// confirmed commitment level.
func (s *SignatureStatus) Confirmed() bool {
	return s != nil && (s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized")
}

// SimulationResult is the outcome of a transaction simulation.
type SimulationResult struct {
	Err  interface{}
	Logs []string
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte
	Executable bool
	RentEpoch  uint64
}

// TokenAmount is an SPL token amount with its decimal scale.
type TokenAmount struct {
	Amount   string // raw amount as decimal string
	Decimals uint8
	UIAmount float64
}

// Confirmer blocks until a signature is confirmed or the context ends.
// A transaction that landed but failed on-chain is reported as *TxError.
type Confirmer interface {
	ConfirmSignature(ctx context.Context, signature string) error
}

// TxError is an on-chain execution failure of a confirmed transaction.
type TxError struct {
	Signature string
	Err       interface{}
}

func (e *TxError) Error() string {
	return "transaction " + e.Signature + " failed on-chain"
}
