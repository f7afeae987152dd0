package solana

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-threshold-trader/internal/domain"
)

func TestFindProgramAddress_OffCurve(t *testing.T) {
	addr, bump, err := FindProgramAddress([][]byte{[]byte("metadata"), []byte("seed")}, TokenProgramID)
	require.NoError(t, err)
	assert.NotZero(t, bump)

	raw, err := base58.Decode(addr)
	require.NoError(t, err)
	require.Len(t, raw, 32)
	assert.False(t, isOnCurve(raw), "program address must be off curve")

	again, againBump, err := FindProgramAddress([][]byte{[]byte("metadata"), []byte("seed")}, TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, bump, againBump)
}

func TestFindProgramAddress_InvalidProgram(t *testing.T) {
	_, _, err := FindProgramAddress(nil, "not-a-key")
	assert.Error(t, err)
}

func TestAssociatedTokenAddress(t *testing.T) {
	standard, err := AssociatedTokenAddress(testOwner, testMint, domain.ProgramVariantStandard)
	require.NoError(t, err)
	extended, err := AssociatedTokenAddress(testOwner, testMint, domain.ProgramVariantExtended)
	require.NoError(t, err)

	assert.NotEqual(t, standard, extended, "variants derive distinct addresses")

	ownerKey, _ := base58.Decode(testOwner)
	mintKey, _ := base58.Decode(testMint)
	programKey, _ := base58.Decode(TokenProgramID)
	want, _, err := FindProgramAddress([][]byte{ownerKey, programKey, mintKey}, AssociatedTokenAccountProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, standard)

	_, err = AssociatedTokenAddress("bad", testMint, domain.ProgramVariantStandard)
	assert.Error(t, err)
}

func TestIsOnCurve(t *testing.T) {
	owner, err := base58.Decode(testOwner)
	require.NoError(t, err)
	assert.False(t, isOnCurve(owner[:31]))
}
