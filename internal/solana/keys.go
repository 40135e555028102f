package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte Solana account address.
type PublicKey [32]byte

// String returns the base58 representation.
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether the key is the all-zero address.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// PublicKeyFromBase58 parses a base58-encoded address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var p PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return p, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(raw) != 32 {
		return p, fmt.Errorf("pubkey %q: expected 32 bytes, got %d", s, len(raw))
	}
	copy(p[:], raw)
	return p, nil
}

// MustPublicKey parses a base58 address and panics on failure.
// Reserved for package-level program ID constants.
func MustPublicKey(s string) PublicKey {
	p, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Keypair is an ed25519 signing key with its public address.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromBase58 reconstructs a keypair from a base58-encoded 64-byte
// secret key (the standard wallet export format: seed || pubkey).
func KeypairFromBase58(s string) (*Keypair, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	return KeypairFromBytes(raw)
}

// KeypairFromBytes reconstructs a keypair from a 64-byte secret key.
func KeypairFromBytes(raw []byte) (*Keypair, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return &Keypair{priv: ed25519.PrivateKey(append([]byte(nil), raw...))}, nil
}

// PublicKey returns the keypair's address.
func (k *Keypair) PublicKey() PublicKey {
	var p PublicKey
	copy(p[:], k.priv.Public().(ed25519.PublicKey))
	return p
}

// Sign signs the message with the private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}
