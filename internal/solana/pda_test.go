package solana

import (
	"testing"
)

func TestIsOnCurve(t *testing.T) {
	// Every real keypair pubkey is a curve point.
	kp := mustKeypair(t)
	if !IsOnCurve(kp.PublicKey()) {
		t.Error("keypair pubkey should be on curve")
	}
}

func TestFindProgramAddress(t *testing.T) {
	seeds := [][]byte{[]byte("pool"), []byte("config")}

	addr, bump, err := FindProgramAddress(seeds, TokenProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	if IsOnCurve(addr) {
		t.Error("derived address must be off curve")
	}

	// Deterministic.
	addr2, bump2, err := FindProgramAddress(seeds, TokenProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if addr != addr2 || bump != bump2 {
		t.Error("derivation not deterministic")
	}

	// The found bump reproduces the address via CreateProgramAddress.
	direct, err := CreateProgramAddress(append(seeds, []byte{bump}), TokenProgramID)
	if err != nil {
		t.Fatalf("CreateProgramAddress with bump %d: %v", bump, err)
	}
	if direct != addr {
		t.Errorf("CreateProgramAddress = %s, want %s", direct, addr)
	}

	// Different program id yields a different address.
	other, _, err := FindProgramAddress(seeds, SystemProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if other == addr {
		t.Error("same address for different program ids")
	}
}

func TestCreateProgramAddress_SeedTooLong(t *testing.T) {
	if _, err := CreateProgramAddress([][]byte{make([]byte, 33)}, TokenProgramID); err == nil {
		t.Error("expected error for seed over 32 bytes")
	}
}

func TestAssociatedTokenAddress(t *testing.T) {
	wallet := mustKeypair(t).PublicKey()
	mint := mustKeypair(t).PublicKey()

	ata, err := AssociatedTokenAddress(wallet, mint)
	if err != nil {
		t.Fatalf("AssociatedTokenAddress: %v", err)
	}
	if IsOnCurve(ata) {
		t.Error("associated token address must be off curve")
	}

	// Distinct per wallet and per mint.
	otherWallet := mustKeypair(t).PublicKey()
	ata2, err := AssociatedTokenAddress(otherWallet, mint)
	if err != nil {
		t.Fatalf("AssociatedTokenAddress: %v", err)
	}
	if ata2 == ata {
		t.Error("same ATA for different wallets")
	}
}

func TestMetadataAddress(t *testing.T) {
	mint := mustKeypair(t).PublicKey()

	meta, err := MetadataAddress(mint)
	if err != nil {
		t.Fatalf("MetadataAddress: %v", err)
	}
	if IsOnCurve(meta) {
		t.Error("metadata address must be off curve")
	}

	meta2, err := MetadataAddress(mint)
	if err != nil {
		t.Fatalf("MetadataAddress: %v", err)
	}
	if meta != meta2 {
		t.Error("derivation not deterministic")
	}
}
