package solana

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-threshold-trader/internal/domain"
)

const (
	testOwner = "C5r5CXsyaSU2ie4UrEt1s2HxHs88hpPoHeSpdzap7iXT"
	testMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// Token-2022 account for testMint owned by testOwner holding 500_000_000 units,
// followed by account type 2 and an ImmutableOwner extension (type 7, length 0).
const extendedAccountHex = "" +
	"c6fa7af3bedbad3a3d65f36aabc97431b1bbe4c2d2f6e0e47ca60203452f5d61" + // mint
	"a4ae5da25b6835432a75dcbf05d044c164de43ae9091f2a12ca28568b69c396a" + // owner
	"0065cd1d00000000" + // amount
	"000000000000000000000000000000000000000000000000000000000000000000000000" + // delegate
	"01" + // state
	"000000000000000000000000" + // is_native
	"0000000000000000" + // delegated_amount
	"000000000000000000000000000000000000000000000000000000000000000000000000" + // close_authority
	"02" + // account type
	"07000000" // extension: ImmutableOwner

func fixture(t *testing.T) []byte {
	t.Helper()
	b, err := hex.DecodeString(extendedAccountHex)
	require.NoError(t, err)
	require.Len(t, b, 170)
	return b
}

func TestDecodeTokenAccount_Standard(t *testing.T) {
	raw := fixture(t)[:TokenAccountSize]

	got, err := DecodeTokenAccount(raw)
	require.NoError(t, err)

	assert.Equal(t, testMint, got.Mint)
	assert.Equal(t, testOwner, got.Owner)
	assert.Equal(t, uint64(500_000_000), got.Amount)
	assert.Equal(t, TokenAccountInitialized, got.State)
}

func TestDecodeTokenAccount_ExtendedWithExtensions(t *testing.T) {
	got, err := DecodeTokenAccount(fixture(t))
	require.NoError(t, err)

	assert.Equal(t, testMint, got.Mint)
	assert.Equal(t, uint64(500_000_000), got.Amount)
}

func TestDecodeTokenAccount_Errors(t *testing.T) {
	raw := fixture(t)

	_, err := DecodeTokenAccount(raw[:72])
	assert.ErrorIs(t, err, ErrTokenAccountTooShort)

	notAccount := append([]byte(nil), raw...)
	notAccount[TokenAccountSize] = 1 // mint account type
	_, err = DecodeTokenAccount(notAccount)
	assert.ErrorIs(t, err, ErrNotTokenAccount)

	uninit := append([]byte(nil), raw[:TokenAccountSize]...)
	uninit[108] = TokenAccountUninitialized
	_, err = DecodeTokenAccount(uninit)
	assert.ErrorIs(t, err, ErrTokenAccountUninitialized)
}

func TestDecodeTokenAccountBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(fixture(t))

	got, err := DecodeTokenAccountBase64(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), got.Amount)

	_, err = DecodeTokenAccountBase64("not base64!")
	assert.Error(t, err)
}

func TestEncodeTokenAccount_MatchesFixture(t *testing.T) {
	raw, err := EncodeTokenAccount(TokenAccountData{
		Mint:   testMint,
		Owner:  testOwner,
		Amount: 500_000_000,
		State:  TokenAccountInitialized,
	})
	require.NoError(t, err)
	assert.Equal(t, fixture(t)[:TokenAccountSize], raw)

	_, err = EncodeTokenAccount(TokenAccountData{Mint: "short", Owner: testOwner})
	assert.Error(t, err)
}

func TestProgramIDFor(t *testing.T) {
	id, err := ProgramIDFor(domain.ProgramVariantStandard)
	require.NoError(t, err)
	assert.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", id)

	id, err = ProgramIDFor(domain.ProgramVariantExtended)
	require.NoError(t, err)
	assert.Equal(t, "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb", id)

	_, err = ProgramIDFor("LEGACY")
	assert.Error(t, err)

	v, ok := VariantOf(Token2022ProgramID)
	assert.True(t, ok)
	assert.Equal(t, domain.ProgramVariantExtended, v)

	_, ok = VariantOf("11111111111111111111111111111111")
	assert.False(t, ok)
}

func TestHasMint(t *testing.T) {
	mint, err := decodeKey(testMint)
	require.NoError(t, err)
	other, err := decodeKey(testOwner)
	require.NoError(t, err)

	assert.True(t, HasMint(fixture(t), mint))
	assert.False(t, HasMint(fixture(t), other))
	assert.False(t, HasMint(mint[:16], mint))
	assert.False(t, HasMint(fixture(t), nil))
}
