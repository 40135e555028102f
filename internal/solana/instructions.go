package solana

import (
	"bytes"
	"encoding/binary"
)

// SPL token instruction indexes used by this module.
const (
	tokenIxSetAuthority    = 6
	tokenIxMintTo          = 7
	tokenIxInitializeMint2 = 20
)

// AuthorityType selects which mint authority a SetAuthority instruction
// targets.
type AuthorityType uint8

const (
	AuthorityMintTokens    AuthorityType = 0
	AuthorityFreezeAccount AuthorityType = 1
)

// NewCreateAccountInstruction funds and allocates a new account owned by the
// given program.
func NewCreateAccountInstruction(from, newAccount PublicKey, lamports, space uint64, owner PublicKey) Instruction {
	var data bytes.Buffer
	binary.Write(&data, binary.LittleEndian, uint32(0)) // CreateAccount
	binary.Write(&data, binary.LittleEndian, lamports)
	binary.Write(&data, binary.LittleEndian, space)
	data.Write(owner[:])

	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			Meta(from, true, true),
			Meta(newAccount, true, true),
		},
		Data: data.Bytes(),
	}
}

// NewInitializeMint2Instruction initializes a mint account with the given
// decimals and authorities.
func NewInitializeMint2Instruction(mint PublicKey, decimals uint8, mintAuthority, freezeAuthority PublicKey) Instruction {
	var data bytes.Buffer
	data.WriteByte(tokenIxInitializeMint2)
	data.WriteByte(decimals)
	data.Write(mintAuthority[:])
	data.WriteByte(1) // freeze authority present
	data.Write(freezeAuthority[:])

	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			Meta(mint, false, true),
		},
		Data: data.Bytes(),
	}
}

// NewMintToInstruction mints raw token units into a token account.
func NewMintToInstruction(mint, dest, authority PublicKey, amount uint64) Instruction {
	var data bytes.Buffer
	data.WriteByte(tokenIxMintTo)
	binary.Write(&data, binary.LittleEndian, amount)

	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			Meta(mint, false, true),
			Meta(dest, false, true),
			Meta(authority, true, false),
		},
		Data: data.Bytes(),
	}
}

// NewSetAuthorityInstruction changes or revokes a mint authority. A nil
// newAuthority revokes it permanently.
func NewSetAuthorityInstruction(mint, currentAuthority PublicKey, authorityType AuthorityType, newAuthority *PublicKey) Instruction {
	var data bytes.Buffer
	data.WriteByte(tokenIxSetAuthority)
	data.WriteByte(byte(authorityType))
	if newAuthority != nil {
		data.WriteByte(1)
		data.Write(newAuthority[:])
	} else {
		data.WriteByte(0)
	}

	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			Meta(mint, false, true),
			Meta(currentAuthority, true, false),
		},
		Data: data.Bytes(),
	}
}

// NewCreateAssociatedTokenAccountInstruction creates the canonical token
// account of wallet for mint, paid for by payer.
func NewCreateAssociatedTokenAccountInstruction(payer, wallet, mint, associatedAccount PublicKey) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			Meta(payer, true, true),
			Meta(associatedAccount, false, true),
			Meta(wallet, false, false),
			Meta(mint, false, false),
			Meta(SystemProgramID, false, false),
			Meta(TokenProgramID, false, false),
		},
		Data: []byte{},
	}
}

// MetadataArgs carries the on-chain descriptive fields of a token.
type MetadataArgs struct {
	Name   string
	Symbol string
	URI    string
}

// NewCreateMetadataAccountInstruction attaches name/symbol/URI metadata to
// a mint via the token-metadata program.
func NewCreateMetadataAccountInstruction(metadata, mint, mintAuthority, payer, updateAuthority PublicKey, args MetadataArgs) Instruction {
	var data bytes.Buffer
	data.WriteByte(33) // CreateMetadataAccountV3
	writeBorshString(&data, args.Name)
	writeBorshString(&data, args.Symbol)
	writeBorshString(&data, args.URI)
	binary.Write(&data, binary.LittleEndian, uint16(0)) // seller fee basis points
	data.WriteByte(0)                                   // creators: none
	data.WriteByte(0)                                   // collection: none
	data.WriteByte(0)                                   // uses: none
	data.WriteByte(1)                                   // is mutable
	data.WriteByte(0)                                   // collection details: none

	return Instruction{
		ProgramID: TokenMetadataProgramID,
		Accounts: []AccountMeta{
			Meta(metadata, false, true),
			Meta(mint, false, false),
			Meta(mintAuthority, true, false),
			Meta(payer, true, true),
			Meta(updateAuthority, false, false),
			Meta(SystemProgramID, false, false),
			Meta(SysvarRentID, false, false),
		},
		Data: data.Bytes(),
	}
}

// writeBorshString writes a u32-length-prefixed UTF-8 string.
func writeBorshString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}
