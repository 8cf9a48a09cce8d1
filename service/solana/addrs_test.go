package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePoolAddress(t *testing.T) {
	mint := testPubkey(1)
	var salt [32]byte
	salt[0] = 0x42

	addr1, bump1, err := DerivePoolAddress(testProgramID, mint, salt)
	require.NoError(t, err)
	addr2, bump2, err := DerivePoolAddress(testProgramID, mint, salt)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2, "derivation must be deterministic")
	assert.Equal(t, bump1, bump2)

	var otherSalt [32]byte
	otherSalt[0] = 0x43
	addr3, _, err := DerivePoolAddress(testProgramID, mint, otherSalt)
	require.NoError(t, err)
	assert.NotEqual(t, addr1, addr3, "different salts must yield different pools")

	addr4, _, err := DerivePoolAddress(testProgramID, testPubkey(2), salt)
	require.NoError(t, err)
	assert.NotEqual(t, addr1, addr4, "different mints must yield different pools")
}

func TestDeriveParticipantsAddress(t *testing.T) {
	pool, _, err := DerivePoolAddress(testProgramID, testPubkey(1), [32]byte{1})
	require.NoError(t, err)

	participants1, _, err := DeriveParticipantsAddress(testProgramID, pool)
	require.NoError(t, err)
	participants2, _, err := DeriveParticipantsAddress(testProgramID, pool)
	require.NoError(t, err)

	assert.Equal(t, participants1, participants2)
	assert.NotEqual(t, pool, participants1)
}
