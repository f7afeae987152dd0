package solana

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"solana-threshold-trader/internal/domain"
)

// Well-known program IDs.
var (
	TokenProgramID                  = solanago.TokenProgramID.String()
	Token2022ProgramID              = solanago.Token2022ProgramID.String()
	AssociatedTokenAccountProgramID = solanago.SPLAssociatedTokenAccountProgramID.String()
)

// Token account layout shared by both token programs.
//
//	offset  size  field
//	0       32    mint
//	32      32    owner
//	64      8     amount (u64 little-endian)
//	72      36    delegate (u32 option tag + pubkey)
//	108     1     state (0 uninitialized, 1 initialized, 2 frozen)
//	109     12    is_native (u32 option tag + u64)
//	121     8     delegated_amount
//	129     36    close_authority (u32 option tag + pubkey)
//
// Token-2022 accounts carrying extensions are longer: byte 165 holds the
// account type (2 = account) followed by TLV-encoded extensions.
const (
	TokenAccountSize = 165

	tokenAccountMintOffset   = 0
	tokenAccountOwnerOffset  = 32
	tokenAccountAmountOffset = 64
	tokenAccountStateOffset  = 108
	tokenAccountTypeOffset   = TokenAccountSize

	accountTypeAccount = 2
)

// Token account states.
const (
	TokenAccountUninitialized uint8 = 0
	TokenAccountInitialized   uint8 = 1
	TokenAccountFrozen        uint8 = 2
)

// Decoder errors.
var (
	ErrTokenAccountTooShort      = errors.New("token account data too short")
	ErrTokenAccountUninitialized = errors.New("token account uninitialized")
	ErrNotTokenAccount           = errors.New("data is not a token account")
)

// TokenAccountData is the decoded base layout of a token account.
type TokenAccountData struct {
	Mint   string
	Owner  string
	Amount uint64
	State  uint8
}

// ProgramIDFor returns the token program ID for a variant.
func ProgramIDFor(v domain.ProgramVariant) (string, error) {
	switch v {
	case domain.ProgramVariantStandard:
		return TokenProgramID, nil
	case domain.ProgramVariantExtended:
		return Token2022ProgramID, nil
	default:
		return "", fmt.Errorf("unknown program variant %q", v)
	}
}

// VariantOf returns the variant owning programID.
func VariantOf(programID string) (domain.ProgramVariant, bool) {
	switch programID {
	case TokenProgramID:
		return domain.ProgramVariantStandard, true
	case Token2022ProgramID:
		return domain.ProgramVariantExtended, true
	default:
		return "", false
	}
}

// DecodeTokenAccount decodes raw token account bytes.
func DecodeTokenAccount(data []byte) (TokenAccountData, error) {
	if len(data) < TokenAccountSize {
		return TokenAccountData{}, fmt.Errorf("%w: %d bytes", ErrTokenAccountTooShort, len(data))
	}
	if len(data) > TokenAccountSize && data[tokenAccountTypeOffset] != accountTypeAccount {
		return TokenAccountData{}, fmt.Errorf("%w: account type %d", ErrNotTokenAccount, data[tokenAccountTypeOffset])
	}

	state := data[tokenAccountStateOffset]
	if state == TokenAccountUninitialized {
		return TokenAccountData{}, ErrTokenAccountUninitialized
	}

	return TokenAccountData{
		Mint:   base58.Encode(data[tokenAccountMintOffset:tokenAccountOwnerOffset]),
		Owner:  base58.Encode(data[tokenAccountOwnerOffset:tokenAccountAmountOffset]),
		Amount: binary.LittleEndian.Uint64(data[tokenAccountAmountOffset : tokenAccountAmountOffset+8]),
		State:  state,
	}, nil
}

// HasMint reports whether raw account data starts with the mint key.
func HasMint(raw, mint []byte) bool {
	end := tokenAccountMintOffset + len(mint)
	return len(mint) == 32 && len(raw) >= end && bytes.Equal(raw[tokenAccountMintOffset:end], mint)
}

// DecodeTokenAccountBase64 decodes base64 account data as returned by RPC.
func DecodeTokenAccountBase64(data string) (TokenAccountData, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return TokenAccountData{}, fmt.Errorf("decode token account data: %w", err)
	}
	return DecodeTokenAccount(raw)
}

// EncodeTokenAccount produces the base layout for d, padded to TokenAccountSize.
func EncodeTokenAccount(d TokenAccountData) ([]byte, error) {
	mint, err := decodeKey(d.Mint)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	owner, err := decodeKey(d.Owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}

	buf := make([]byte, TokenAccountSize)
	copy(buf[tokenAccountMintOffset:], mint)
	copy(buf[tokenAccountOwnerOffset:], owner)
	binary.LittleEndian.PutUint64(buf[tokenAccountAmountOffset:], d.Amount)
	buf[tokenAccountStateOffset] = d.State
	return buf, nil
}

func decodeKey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid public key length %d", len(b))
	}
	return b, nil
}
