package solana

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PDA seed tags used by the pool program.
var (
	poolSeed         = []byte("pool")
	participantsSeed = []byte("participants")
)

// ErrDerivationExhausted is returned when no valid off-curve address exists
// within the bump search space. Practically unreachable, but surfaced rather
// than panicking so callers can treat it like any other input error.
var ErrDerivationExhausted = errors.New("program address derivation exhausted")

// DerivePoolAddress computes the pool PDA for a mint and creator salt.
// Deterministic: the same (mint, salt) pair always yields the same address
// and bump.
func DerivePoolAddress(programID, mint solana.PublicKey, salt [32]byte) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(
		[][]byte{poolSeed, mint.Bytes(), salt[:]},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: pool(%s): %v", ErrDerivationExhausted, mint, err)
	}
	return addr, bump, nil
}

// DeriveParticipantsAddress computes the participant-list PDA for a pool.
func DeriveParticipantsAddress(programID, pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(
		[][]byte{participantsSeed, pool.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: participants(%s): %v", ErrDerivationExhausted, pool, err)
	}
	return addr, bump, nil
}
