package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
)

const maxSeedLength = 32

// pdaMarker terminates the seed hash for program-derived addresses.
var pdaMarker = []byte("ProgramDerivedAddress")

// IsOnCurve reports whether the key is a valid ed25519 curve point.
// Program-derived addresses must not be on the curve, since no private key
// may exist for them.
func IsOnCurve(key PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}

// CreateProgramAddress derives an address from seeds and a program id.
// Fails if the result lands on the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, fmt.Errorf("seed exceeds %d bytes", maxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)

	var p PublicKey
	copy(p[:], h.Sum(nil))
	if IsOnCurve(p) {
		return PublicKey{}, fmt.Errorf("derived address is on curve")
	}
	return p, nil
}

// FindProgramAddress finds the first off-curve address for the seeds by
// searching bump seeds from 255 down.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateProgramAddress(append(seeds, []byte{byte(bump)}), programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, fmt.Errorf("no viable program address bump found")
}

// AssociatedTokenAddress derives the canonical token account of a wallet
// for a mint.
func AssociatedTokenAddress(wallet, mint PublicKey) (PublicKey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{wallet[:], TokenProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}

// MetadataAddress derives the token-metadata account for a mint.
func MetadataAddress(mint PublicKey) (PublicKey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{[]byte("metadata"), TokenMetadataProgramID[:], mint[:]},
		TokenMetadataProgramID,
	)
	if err != nil {
		return PublicKey{}, fmt.Errorf("derive metadata address: %w", err)
	}
	return addr, nil
}
