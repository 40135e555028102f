package solana

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
)

// AccountMeta describes how an instruction touches an account.
type AccountMeta struct {
	PubKey     PublicKey
	IsSigner   bool
	IsWritable bool
}

// Meta builds an AccountMeta.
func Meta(key PublicKey, signer, writable bool) AccountMeta {
	return AccountMeta{PubKey: key, IsSigner: signer, IsWritable: writable}
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is a legacy-format Solana transaction.
type Transaction struct {
	instructions    []Instruction
	feePayer        PublicKey
	recentBlockhash string
	signatures      map[PublicKey][]byte
}

// NewTransaction creates a transaction from instructions.
func NewTransaction(instructions ...Instruction) *Transaction {
	return &Transaction{
		instructions: instructions,
		signatures:   make(map[PublicKey][]byte),
	}
}

// Add appends an instruction.
func (t *Transaction) Add(ix Instruction) {
	t.instructions = append(t.instructions, ix)
}

// SetFeePayer sets the account paying transaction fees. It is always the
// first account of the compiled message.
func (t *Transaction) SetFeePayer(p PublicKey) {
	t.feePayer = p
}

// SetRecentBlockhash attaches the blockhash the transaction is valid under.
// Invalidates any existing signatures.
func (t *Transaction) SetRecentBlockhash(blockhash string) {
	t.recentBlockhash = blockhash
	t.signatures = make(map[PublicKey][]byte)
}

// compiledAccount is an account with its merged privileges across the
// whole message.
type compiledAccount struct {
	key      PublicKey
	signer   bool
	writable bool
}

// compileAccounts produces the canonical account list: fee payer first,
// then signers before non-signers, writable before read-only within each
// group, base58 order as the final tiebreak.
func (t *Transaction) compileAccounts() ([]compiledAccount, error) {
	if t.feePayer.IsZero() {
		return nil, fmt.Errorf("fee payer not set")
	}

	merged := make(map[PublicKey]*compiledAccount)
	order := []PublicKey{}
	touch := func(key PublicKey, signer, writable bool) {
		acc, ok := merged[key]
		if !ok {
			acc = &compiledAccount{key: key}
			merged[key] = acc
			order = append(order, key)
		}
		acc.signer = acc.signer || signer
		acc.writable = acc.writable || writable
	}

	touch(t.feePayer, true, true)
	for _, ix := range t.instructions {
		for _, m := range ix.Accounts {
			touch(m.PubKey, m.IsSigner, m.IsWritable)
		}
		touch(ix.ProgramID, false, false)
	}

	accounts := make([]compiledAccount, 0, len(order))
	for _, key := range order {
		accounts = append(accounts, *merged[key])
	}

	feePayer := t.feePayer
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i], accounts[j]
		if (a.key == feePayer) != (b.key == feePayer) {
			return a.key == feePayer
		}
		if a.signer != b.signer {
			return a.signer
		}
		if a.writable != b.writable {
			return a.writable
		}
		return a.key.String() < b.key.String()
	})

	return accounts, nil
}

// Message serializes the transaction message (the bytes that get signed).
func (t *Transaction) Message() ([]byte, error) {
	if t.recentBlockhash == "" {
		return nil, fmt.Errorf("recent blockhash not set")
	}
	blockhash, err := base58.Decode(t.recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("decode blockhash: %w", err)
	}
	if len(blockhash) != 32 {
		return nil, fmt.Errorf("blockhash: expected 32 bytes, got %d", len(blockhash))
	}

	accounts, err := t.compileAccounts()
	if err != nil {
		return nil, err
	}

	index := make(map[PublicKey]uint8, len(accounts))
	var numSigners, numReadonlySigned, numReadonlyUnsigned int
	for i, acc := range accounts {
		if i > 255 {
			return nil, fmt.Errorf("too many accounts: %d", len(accounts))
		}
		index[acc.key] = uint8(i)
		if acc.signer {
			numSigners++
			if !acc.writable {
				numReadonlySigned++
			}
		} else if !acc.writable {
			numReadonlyUnsigned++
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(numSigners))
	buf.WriteByte(byte(numReadonlySigned))
	buf.WriteByte(byte(numReadonlyUnsigned))

	writeShortvecLen(&buf, len(accounts))
	for _, acc := range accounts {
		buf.Write(acc.key[:])
	}

	buf.Write(blockhash)

	writeShortvecLen(&buf, len(t.instructions))
	for _, ix := range t.instructions {
		buf.WriteByte(index[ix.ProgramID])
		writeShortvecLen(&buf, len(ix.Accounts))
		for _, m := range ix.Accounts {
			buf.WriteByte(index[m.PubKey])
		}
		writeShortvecLen(&buf, len(ix.Data))
		buf.Write(ix.Data)
	}

	return buf.Bytes(), nil
}

// Sign signs the compiled message with every provided keypair. All required
// signer accounts must be covered before Serialize is called.
func (t *Transaction) Sign(signers ...*Keypair) error {
	message, err := t.Message()
	if err != nil {
		return err
	}
	for _, kp := range signers {
		t.signatures[kp.PublicKey()] = kp.Sign(message)
	}
	return nil
}

// Serialize produces the wire-format transaction: signature list followed
// by the message.
func (t *Transaction) Serialize() ([]byte, error) {
	message, err := t.Message()
	if err != nil {
		return nil, err
	}
	accounts, err := t.compileAccounts()
	if err != nil {
		return nil, err
	}

	var signerKeys []PublicKey
	for _, acc := range accounts {
		if acc.signer {
			signerKeys = append(signerKeys, acc.key)
		}
	}

	var buf bytes.Buffer
	writeShortvecLen(&buf, len(signerKeys))
	for _, key := range signerKeys {
		sig, ok := t.signatures[key]
		if !ok {
			return nil, fmt.Errorf("missing signature for %s", key)
		}
		if len(sig) != 64 {
			return nil, fmt.Errorf("signature for %s: expected 64 bytes, got %d", key, len(sig))
		}
		buf.Write(sig)
	}
	buf.Write(message)

	return buf.Bytes(), nil
}

// Signature returns the first signature (the transaction id) if present.
func (t *Transaction) Signature() (string, bool) {
	accounts, err := t.compileAccounts()
	if err != nil {
		return "", false
	}
	for _, acc := range accounts {
		if acc.signer {
			sig, ok := t.signatures[acc.key]
			if !ok {
				return "", false
			}
			return base58.Encode(sig), true
		}
	}
	return "", false
}

// writeShortvecLen writes a compact-u16 length prefix.
func writeShortvecLen(buf *bytes.Buffer, n int) {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

// DecodeShortvecLen reads a compact-u16 length prefix, returning the value
// and the number of bytes consumed.
func DecodeShortvecLen(data []byte) (int, int, error) {
	var value, shift uint
	for i, b := range data {
		value |= uint(b&0x7f) << shift
		if b&0x80 == 0 {
			return int(value), i + 1, nil
		}
		shift += 7
		if shift > 14 {
			return 0, 0, fmt.Errorf("shortvec length overflows u16")
		}
	}
	return 0, 0, fmt.Errorf("truncated shortvec length")
}
