package minter

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-pool-cycler/internal/solana"
)

type fakeGateway struct {
	solana.Gateway
}

func (g *fakeGateway) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	return 1_461_600, nil
}

type submitted struct {
	label   string
	tx      *solana.Transaction
	signers []*solana.Keypair
}

type fakeSubmitter struct {
	calls []submitted
	errs  map[string]error
}

func (s *fakeSubmitter) Submit(ctx context.Context, label string, tx *solana.Transaction, extraSigners ...*solana.Keypair) (string, error) {
	s.calls = append(s.calls, submitted{label: label, tx: tx, signers: extraSigners})
	if err := s.errs[label]; err != nil {
		return "", err
	}
	return "txid-" + label, nil
}

type fakeUploader struct {
	uri string
	err error
}

func (u *fakeUploader) UploadJSON(ctx context.Context, v interface{}) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return u.uri, nil
}

func testKeypair(t *testing.T) *solana.Keypair {
	t.Helper()
	kp, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	return kp
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func testParams() TokenParams {
	return TokenParams{
		Name:     "PERPRUG.FUN",
		Symbol:   "PERP1",
		Decimals: 9,
		Supply:   10_000_000_000,
	}
}

func TestCreateTokenWithMetadata(t *testing.T) {
	wallet := testKeypair(t)
	sub := &fakeSubmitter{}

	m := New(Options{
		Gateway:         &fakeGateway{},
		Submitter:       sub,
		Uploader:        &fakeUploader{uri: "https://gw/ipfs/Qm1"},
		Wallet:          wallet,
		RevokeAuthority: true,
	})
	m.sleep = noSleep

	result, err := m.CreateTokenWithMetadata(context.Background(), testParams())
	if err != nil {
		t.Fatalf("CreateTokenWithMetadata: %v", err)
	}

	if result.MintAddress == "" {
		t.Error("expected mint address")
	}
	if result.MetadataURI != "https://gw/ipfs/Qm1" {
		t.Errorf("metadata uri = %s", result.MetadataURI)
	}
	if result.TxID != "txid-mint-token" {
		t.Errorf("txid = %s", result.TxID)
	}

	if len(sub.calls) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(sub.calls))
	}
	if sub.calls[0].label != "mint-token" || sub.calls[1].label != "revoke-authority" {
		t.Errorf("labels = %s, %s", sub.calls[0].label, sub.calls[1].label)
	}

	// Mint transaction co-signs with the mint keypair only; the wallet is
	// the authority and signs as fee payer.
	if len(sub.calls[0].signers) != 1 {
		t.Errorf("mint extra signers = %d, want 1", len(sub.calls[0].signers))
	}
	if len(sub.calls[1].signers) != 0 {
		t.Errorf("revoke extra signers = %d, want 0", len(sub.calls[1].signers))
	}
}

func TestCreateTokenWithMetadata_NoRevoke(t *testing.T) {
	wallet := testKeypair(t)
	sub := &fakeSubmitter{}

	m := New(Options{
		Gateway:   &fakeGateway{},
		Submitter: sub,
		Uploader:  &fakeUploader{uri: "https://gw/ipfs/Qm1"},
		Wallet:    wallet,
	})
	m.sleep = noSleep

	if _, err := m.CreateTokenWithMetadata(context.Background(), testParams()); err != nil {
		t.Fatalf("CreateTokenWithMetadata: %v", err)
	}

	if len(sub.calls) != 1 {
		t.Fatalf("expected 1 submission without revocation, got %d", len(sub.calls))
	}
}

func TestCreateTokenWithMetadata_UploadFailureFailsMint(t *testing.T) {
	wallet := testKeypair(t)
	sub := &fakeSubmitter{}
	uploadErr := errors.New("pinata down")

	m := New(Options{
		Gateway:   &fakeGateway{},
		Submitter: sub,
		Uploader:  &fakeUploader{err: uploadErr},
		Wallet:    wallet,
	})
	m.sleep = noSleep

	_, err := m.CreateTokenWithMetadata(context.Background(), testParams())
	if !errors.Is(err, uploadErr) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if len(sub.calls) != 0 {
		t.Errorf("no transaction should be sent after upload failure, got %d", len(sub.calls))
	}
}

func TestCreateTokenWithMetadata_DedicatedAuthoritySigns(t *testing.T) {
	wallet := testKeypair(t)
	authority := testKeypair(t)
	sub := &fakeSubmitter{}

	m := New(Options{
		Gateway:         &fakeGateway{},
		Submitter:       sub,
		Uploader:        &fakeUploader{uri: "https://gw/ipfs/Qm1"},
		Wallet:          wallet,
		Authority:       authority,
		RevokeAuthority: true,
	})
	m.sleep = noSleep

	if _, err := m.CreateTokenWithMetadata(context.Background(), testParams()); err != nil {
		t.Fatalf("CreateTokenWithMetadata: %v", err)
	}

	// Mint keypair plus the issuance authority co-sign.
	if len(sub.calls[0].signers) != 2 {
		t.Fatalf("mint extra signers = %d, want 2", len(sub.calls[0].signers))
	}
	if sub.calls[1].signers[0] != authority {
		t.Error("revoke must be signed by the issuance authority")
	}
}

func TestRawAmount(t *testing.T) {
	raw, err := rawAmount(10_000_000_000, 9)
	if err != nil {
		t.Fatalf("rawAmount: %v", err)
	}
	if raw != 10_000_000_000_000_000_000 {
		t.Errorf("raw = %d", raw)
	}

	if _, err := rawAmount(10_000_000_000, 10); err == nil {
		t.Error("expected overflow error")
	}
}
