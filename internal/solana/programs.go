package solana

// Well-known program and sysvar addresses.
var (
	SystemProgramID          = MustPublicKey("11111111111111111111111111111111")
	TokenProgramID           = MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustPublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	TokenMetadataProgramID   = MustPublicKey("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	SysvarRentID             = MustPublicKey("SysvarRent111111111111111111111111111111111")
)

// WSOLMint is the wrapped-SOL mint used as the base side of every pool.
const WSOLMint = "So11111111111111111111111111111111111111112"

// MintAccountSize is the byte size of an SPL token mint account.
const MintAccountSize = 82
