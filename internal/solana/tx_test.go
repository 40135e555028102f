package solana

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
)

func testBlockhash() string {
	return base58.Encode(bytes.Repeat([]byte{7}, 32))
}

func mustKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	return kp
}

func TestShortvecRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 5, 127, 128, 129, 300, 16383, 16384, 65535} {
		var buf bytes.Buffer
		writeShortvecLen(&buf, n)

		got, consumed, err := DecodeShortvecLen(buf.Bytes())
		if err != nil {
			t.Fatalf("decode %d: %v", n, err)
		}
		if got != n {
			t.Errorf("round trip %d: got %d", n, got)
		}
		if consumed != buf.Len() {
			t.Errorf("length %d: consumed %d of %d bytes", n, consumed, buf.Len())
		}
	}
}

func TestDecodeShortvecLen_Truncated(t *testing.T) {
	if _, _, err := DecodeShortvecLen([]byte{0x80}); err == nil {
		t.Error("expected error for truncated input")
	}
	if _, _, err := DecodeShortvecLen(nil); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestTransactionMessageLayout(t *testing.T) {
	payer := mustKeypair(t)
	dest := mustKeypair(t).PublicKey()

	ix := Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			Meta(payer.PublicKey(), true, true),
			Meta(dest, false, true),
		},
		Data: []byte{1, 2, 3},
	}

	tx := NewTransaction(ix)
	tx.SetFeePayer(payer.PublicKey())
	tx.SetRecentBlockhash(testBlockhash())

	msg, err := tx.Message()
	if err != nil {
		t.Fatalf("Message: %v", err)
	}

	// Header: 1 signer, 0 readonly signed, 1 readonly unsigned (the program).
	if msg[0] != 1 || msg[1] != 0 || msg[2] != 1 {
		t.Errorf("header = [%d %d %d], want [1 0 1]", msg[0], msg[1], msg[2])
	}

	// 3 accounts, single-byte shortvec.
	if msg[3] != 3 {
		t.Fatalf("account count = %d, want 3", msg[3])
	}

	var first PublicKey
	copy(first[:], msg[4:36])
	if first != payer.PublicKey() {
		t.Errorf("first account = %s, want fee payer %s", first, payer.PublicKey())
	}

	var last PublicKey
	copy(last[:], msg[4+64:4+96])
	if last != SystemProgramID {
		t.Errorf("last account = %s, want program id", last)
	}

	blockhash := msg[4+96 : 4+96+32]
	if !bytes.Equal(blockhash, bytes.Repeat([]byte{7}, 32)) {
		t.Error("blockhash bytes not at expected offset")
	}
}

func TestTransactionSignAndSerialize(t *testing.T) {
	payer := mustKeypair(t)
	dest := mustKeypair(t).PublicKey()

	tx := NewTransaction(Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			Meta(payer.PublicKey(), true, true),
			Meta(dest, false, true),
		},
		Data: []byte{2, 0, 0, 0},
	})
	tx.SetFeePayer(payer.PublicKey())
	tx.SetRecentBlockhash(testBlockhash())

	if err := tx.Sign(payer); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	wire, err := tx.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	// One signature, single-byte shortvec prefix.
	if wire[0] != 1 {
		t.Fatalf("signature count = %d, want 1", wire[0])
	}

	sig := wire[1:65]
	msg := wire[65:]

	pub := payer.PublicKey()
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig) {
		t.Error("signature does not verify against serialized message")
	}

	txid, ok := tx.Signature()
	if !ok {
		t.Fatal("Signature: no signature present")
	}
	if txid != base58.Encode(sig) {
		t.Errorf("Signature = %s, want %s", txid, base58.Encode(sig))
	}
}

func TestTransactionSerialize_MissingSignature(t *testing.T) {
	payer := mustKeypair(t)

	tx := NewTransaction(Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{Meta(payer.PublicKey(), true, true)},
	})
	tx.SetFeePayer(payer.PublicKey())
	tx.SetRecentBlockhash(testBlockhash())

	if _, err := tx.Serialize(); err == nil {
		t.Error("expected error for unsigned transaction")
	}
}

func TestTransactionMessage_NoFeePayer(t *testing.T) {
	tx := NewTransaction()
	tx.SetRecentBlockhash(testBlockhash())
	if _, err := tx.Message(); err == nil {
		t.Error("expected error when fee payer not set")
	}
}

func TestTransactionMessage_NoBlockhash(t *testing.T) {
	tx := NewTransaction()
	tx.SetFeePayer(mustKeypair(t).PublicKey())
	if _, err := tx.Message(); err == nil {
		t.Error("expected error when blockhash not set")
	}
}

func TestSetRecentBlockhash_ClearsSignatures(t *testing.T) {
	payer := mustKeypair(t)

	tx := NewTransaction(Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{Meta(payer.PublicKey(), true, true)},
	})
	tx.SetFeePayer(payer.PublicKey())
	tx.SetRecentBlockhash(testBlockhash())
	if err := tx.Sign(payer); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tx.SetRecentBlockhash(base58.Encode(bytes.Repeat([]byte{9}, 32)))
	if _, ok := tx.Signature(); ok {
		t.Error("expected signatures cleared after blockhash change")
	}
}

func TestCompileAccounts_MergesPrivileges(t *testing.T) {
	payer := mustKeypair(t)
	shared := mustKeypair(t).PublicKey()

	// Same account appears read-only then writable; privileges merge.
	tx := NewTransaction(
		Instruction{
			ProgramID: SystemProgramID,
			Accounts:  []AccountMeta{Meta(shared, false, false)},
		},
		Instruction{
			ProgramID: TokenProgramID,
			Accounts:  []AccountMeta{Meta(shared, false, true)},
		},
	)
	tx.SetFeePayer(payer.PublicKey())

	accounts, err := tx.compileAccounts()
	if err != nil {
		t.Fatalf("compileAccounts: %v", err)
	}

	if accounts[0].key != payer.PublicKey() {
		t.Errorf("first account = %s, want fee payer", accounts[0].key)
	}

	found := false
	for _, acc := range accounts {
		if acc.key == shared {
			found = true
			if !acc.writable {
				t.Error("shared account should be writable after merge")
			}
			if acc.signer {
				t.Error("shared account should not be a signer")
			}
		}
	}
	if !found {
		t.Fatal("shared account missing from compiled list")
	}

	// Writable non-signers sort before read-only program ids.
	if accounts[1].key != shared {
		t.Errorf("second account = %s, want writable %s", accounts[1].key, shared)
	}
}
