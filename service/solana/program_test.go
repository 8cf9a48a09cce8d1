package solana

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscriminatorDerivation(t *testing.T) {
	want := sha256.Sum256([]byte("global:join_pool"))
	got := InstructionDiscriminator(OpJoinPool)
	assert.Equal(t, want[:8], got[:])

	wantAcct := sha256.Sum256([]byte("account:Pool"))
	gotAcct := AccountDiscriminator("Pool")
	assert.Equal(t, wantAcct[:8], gotAcct[:])

	assert.NotEqual(t, AccountDiscriminator("Pool"), AccountDiscriminator("Participants"))
}

func TestPoolStatusNames(t *testing.T) {
	assert.Equal(t, "open", StatusOpen.String())
	assert.Equal(t, "winnerSelected", StatusWinnerSelected.String())
	assert.Equal(t, "unknown(42)", PoolStatus(42).String())

	assert.False(t, StatusOpen.Terminal())
	assert.False(t, StatusPaused.Terminal())
	assert.True(t, StatusEnded.Terminal())
	assert.True(t, StatusCancelled.Terminal())

	// An unmapped byte is not terminal: we cannot claim a pool is closed on
	// the strength of a status we do not understand.
	assert.False(t, PoolStatus(0xFE).Terminal())
	assert.False(t, PoolStatus(0xFE).Known())
}
