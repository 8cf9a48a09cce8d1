package solana

import (
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Well-known program IDs.
var (
	// ComputeBudgetProgramID is the native compute budget program, used for
	// attaching priority fees to transactions.
	ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

	// TokenProgramID is the SPL Token program.
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
)

// Genesis hashes used by the network guard. A client configured for one
// network must never talk to an endpoint serving the other.
var (
	MainnetGenesisHash = solana.MustHashFromBase58("5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d")
	DevnetGenesisHash  = solana.MustHashFromBase58("EtWTRABZaYq6iMfeYKouRu166VU2xqa1wcaWoxPkrZBG")
)

// PoolStatus is the lifecycle state of a pool as stored on-chain.
type PoolStatus uint8

const (
	StatusOpen PoolStatus = iota
	StatusLocked
	StatusUnlocked
	StatusRandomnessRequested
	StatusWinnerSelected
	StatusEnded
	StatusCancelled
	StatusPaused
)

// Known reports whether the status byte maps to a named lifecycle state.
// Unmapped bytes still decode (String renders them as unknown(n)); they must
// never be misclassified as one of the named states.
func (s PoolStatus) Known() bool {
	switch s {
	case StatusOpen, StatusLocked, StatusUnlocked, StatusRandomnessRequested,
		StatusWinnerSelected, StatusEnded, StatusCancelled, StatusPaused:
		return true
	default:
		return false
	}
}

// Terminal reports whether the pool can no longer change state.
func (s PoolStatus) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

func (s PoolStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusLocked:
		return "locked"
	case StatusUnlocked:
		return "unlocked"
	case StatusRandomnessRequested:
		return "randomnessRequested"
	case StatusWinnerSelected:
		return "winnerSelected"
	case StatusEnded:
		return "ended"
	case StatusCancelled:
		return "cancelled"
	case StatusPaused:
		return "paused"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Status-reason codes written by the program alongside status transitions.
const (
	ReasonExpired     = 1
	ReasonPaused      = 2
	ReasonMaxReached  = 4
	ReasonCancelled   = 5
	ReasonAdminClosed = 6
)

// MaxParticipants is the fixed on-chain capacity of a participant list.
const MaxParticipants = 20

// Operation names the pool program instruction a claim or submission refers to.
type Operation string

const (
	OpCreatePool        Operation = "create_pool"
	OpJoinPool          Operation = "join_pool"
	OpDonate            Operation = "donate"
	OpCancelPool        Operation = "cancel_pool"
	OpClaimRefund       Operation = "claim_refund"
	OpClaimRent         Operation = "claim_rent"
	OpUnlockPool        Operation = "unlock_pool"
	OpRequestRandomness Operation = "request_randomness"
	OpSelectWinner      Operation = "select_winner"
	OpPayoutWinner      Operation = "payout_winner"
	OpSweepExpiredPool  Operation = "sweep_expired_pool"
	OpFinalizeForfeited Operation = "finalize_forfeited_pool"
	OpPausePool         Operation = "pause_pool"
	OpUnpausePool       Operation = "unpause_pool"
	OpSetLockDuration   Operation = "set_lock_duration"
	OpForceExpire       Operation = "force_expire"
)

// InstructionDiscriminator returns the 8-byte discriminator the program uses
// to dispatch an instruction: sha256("global:<name>")[:8].
func InstructionDiscriminator(op Operation) [8]byte {
	h := sha256.Sum256([]byte("global:" + string(op)))
	var d [8]byte
	copy(d[:], h[:8])
	return d
}

// AccountDiscriminator returns the 8-byte prefix identifying an account type:
// sha256("account:<name>")[:8].
func AccountDiscriminator(name string) [8]byte {
	h := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], h[:8])
	return d
}
