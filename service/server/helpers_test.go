package server

import (
	"net/http"
	"strings"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"

	sol "github.com/lotpool/lotpool/service/solana"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"valid address", "So11111111111111111111111111111111111111112", false},
		{"empty", "", true},
		{"too long", strings.Repeat("1", maxAddressLength+1), true},
		{"control characters", "abc\x00def", true},
		{"invalid base58 characters", "contains-invalid-chars!", true},
		{"zero and O excluded from base58", "0OIl", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddress(tt.address)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSignature(t *testing.T) {
	valid := "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"

	assert.NoError(t, validateSignature(valid))
	assert.Error(t, validateSignature(""))
	assert.Error(t, validateSignature(strings.Repeat("1", maxSignatureLength+1)))
	assert.Error(t, validateSignature("not a signature"))
}

func TestClaimErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{sol.ErrTxNotFinalized, http.StatusBadRequest},
		{sol.ErrTxNotFound, http.StatusBadRequest},
		{sol.ErrTxFailed, http.StatusBadRequest},
		{sol.ErrClaimMismatch, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, msg := claimErrorStatus(tt.err)
		assert.Equal(t, tt.wantStatus, status)
		assert.NotEmpty(t, msg)
	}
}

func TestProjectPool(t *testing.T) {
	creator := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	account := &sol.PoolAccount{
		Mint:            mint,
		Creator:         creator,
		Status:          sol.StatusLocked,
		StatusReason:    0,
		Amount:          1000,
		TotalAmount:     5000,
		MaxParticipants: 20,
		Schema:          2,
		StartTime:       1700000000,
		EndTime:         0,
	}

	params := projectPool("PoolAddr", account, "devnet", 5)

	assert.Equal(t, "PoolAddr", params.Address)
	assert.Equal(t, "devnet", params.Network)
	assert.Equal(t, mint.String(), params.Mint)
	assert.Equal(t, creator.String(), params.Creator)
	assert.Equal(t, "locked", params.Status)
	assert.Equal(t, int16(1), params.StatusByte)
	assert.Equal(t, int16(5), params.ParticipantCount)
	assert.Nil(t, params.Winner, "the zero key is no winner")
	assert.NotNil(t, params.StartTime)
	assert.Nil(t, params.EndTime, "a zero chain timestamp is unset")

	// A status byte we do not recognize still projects, labeled as unknown.
	account.Status = sol.PoolStatus(0xFF)
	params = projectPool("PoolAddr", account, "devnet", 5)
	assert.Equal(t, "unknown(255)", params.Status)
	assert.Equal(t, int16(255), params.StatusByte)

	account.Winner = solanago.NewWallet().PublicKey()
	params = projectPool("PoolAddr", account, "devnet", 5)
	if assert.NotNil(t, params.Winner) {
		assert.Equal(t, account.Winner.String(), *params.Winner)
	}
}
