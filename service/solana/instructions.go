package solana

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// PoolConfig is the immutable configuration a pool is created with. The
// program stores a config_hash at creation and recomputes it from pool
// state on every join, so Hash must match the on-chain construction field
// for field.
type PoolConfig struct {
	Salt            [32]byte
	MaxParticipants uint8
	LockDuration    int64
	Amount          uint64
	DevWallet       solana.PublicKey
	DevFeeBps       uint16
	BurnFeeBps      uint16
	TreasuryWallet  solana.PublicKey
	TreasuryFeeBps  uint16
	StartTime       int64
	Duration        int64
	AllowMock       bool
}

// Hash computes the pool's config hash: sha256 over salt through
// treasury_fee_bps, then start_time and duration, integers little-endian.
// allow_mock is not hashed.
func (c PoolConfig) Hash() [32]byte {
	buf := make([]byte, 0, 32+1+8+8+32+2+2+32+2+8+8)
	buf = append(buf, c.Salt[:]...)
	buf = append(buf, c.MaxParticipants)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.LockDuration))
	buf = binary.LittleEndian.AppendUint64(buf, c.Amount)
	buf = append(buf, c.DevWallet.Bytes()...)
	buf = binary.LittleEndian.AppendUint16(buf, c.DevFeeBps)
	buf = binary.LittleEndian.AppendUint16(buf, c.BurnFeeBps)
	buf = append(buf, c.TreasuryWallet.Bytes()...)
	buf = binary.LittleEndian.AppendUint16(buf, c.TreasuryFeeBps)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.StartTime))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Duration))
	return sha256.Sum256(buf)
}

// encode serializes create_pool's argument list: the hashed fields through
// treasury_fee_bps, then the allow_mock flag. start_time and duration are
// assigned on chain at creation and never travel as arguments.
func (c PoolConfig) encode(buf []byte) []byte {
	buf = append(buf, c.Salt[:]...)
	buf = append(buf, c.MaxParticipants)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.LockDuration))
	buf = binary.LittleEndian.AppendUint64(buf, c.Amount)
	buf = append(buf, c.DevWallet.Bytes()...)
	buf = binary.LittleEndian.AppendUint16(buf, c.DevFeeBps)
	buf = binary.LittleEndian.AppendUint16(buf, c.BurnFeeBps)
	buf = append(buf, c.TreasuryWallet.Bytes()...)
	buf = binary.LittleEndian.AppendUint16(buf, c.TreasuryFeeBps)
	buf = append(buf, boolByte(c.AllowMock))
	return buf
}

// InstructionBuilder constructs pool program instructions with the account
// lists and argument encodings the program dispatches on. It performs no
// RPC; address derivation is deterministic.
type InstructionBuilder struct {
	ProgramID solana.PublicKey
}

func NewInstructionBuilder(programID solana.PublicKey) *InstructionBuilder {
	return &InstructionBuilder{ProgramID: programID}
}

func ixData(op Operation, args []byte) []byte {
	d := InstructionDiscriminator(op)
	return append(d[:], args...)
}

// CreatePoolAccounts names the accounts create_pool touches beyond the
// derivable PDAs.
type CreatePoolAccounts struct {
	Mint      solana.PublicKey
	UserToken solana.PublicKey
	PoolToken solana.PublicKey
	User      solana.PublicKey
}

// CreatePool builds the create_pool instruction. The pool and participants
// PDAs are derived here from (mint, salt).
func (b *InstructionBuilder) CreatePool(cfg PoolConfig, a CreatePoolAccounts) (solana.Instruction, error) {
	pool, _, err := DerivePoolAddress(b.ProgramID, a.Mint, cfg.Salt)
	if err != nil {
		return nil, err
	}
	participants, _, err := DeriveParticipantsAddress(b.ProgramID, pool)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(a.Mint),
			solana.Meta(pool).WRITE(),
			solana.Meta(a.UserToken).WRITE(),
			solana.Meta(a.User).WRITE().SIGNER(),
			solana.Meta(a.PoolToken).WRITE(),
			solana.Meta(TokenProgramID),
			solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(solana.SysVarRentPubkey),
			solana.Meta(participants).WRITE(),
		},
		ixData(OpCreatePool, cfg.encode(nil)),
	), nil
}

// PoolUserAccounts is the common account set for user-facing instructions
// that move tokens between a user and a pool.
type PoolUserAccounts struct {
	Mint         solana.PublicKey
	Pool         solana.PublicKey
	PoolToken    solana.PublicKey
	UserToken    solana.PublicKey
	User         solana.PublicKey
	Participants solana.PublicKey
}

// JoinPool builds join_pool. The entry amount is the sole argument; the
// program checks it against the pool's fixed amount and recomputes the
// config hash from pool state, never from instruction data.
func (b *InstructionBuilder) JoinPool(amount uint64, a PoolUserAccounts) solana.Instruction {
	args := binary.LittleEndian.AppendUint64(nil, amount)
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(a.Mint),
			solana.Meta(a.Pool).WRITE(),
			solana.Meta(a.PoolToken).WRITE(),
			solana.Meta(a.UserToken).WRITE(),
			solana.Meta(a.User).WRITE().SIGNER(),
			solana.Meta(TokenProgramID),
			solana.Meta(a.Participants).WRITE(),
		},
		ixData(OpJoinPool, args),
	)
}

// Donate builds donate: a token contribution that does not enter the
// participant list.
func (b *InstructionBuilder) Donate(amount uint64, a PoolUserAccounts) solana.Instruction {
	args := binary.LittleEndian.AppendUint64(nil, amount)
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(a.Mint),
			solana.Meta(a.Pool).WRITE(),
			solana.Meta(a.PoolToken).WRITE(),
			solana.Meta(a.UserToken).WRITE(),
			solana.Meta(a.User).WRITE().SIGNER(),
			solana.Meta(TokenProgramID),
			solana.Meta(a.Participants).WRITE(),
		},
		ixData(OpDonate, args),
	)
}

// CancelPool builds cancel_pool (creator-only, before any joins).
func (b *InstructionBuilder) CancelPool(mint, pool, poolToken, user solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(mint),
			solana.Meta(pool).WRITE(),
			solana.Meta(poolToken).WRITE(),
			solana.Meta(user).WRITE().SIGNER(),
			solana.Meta(TokenProgramID),
			solana.Meta(solana.SystemProgramID),
		},
		ixData(OpCancelPool, nil),
	)
}

// ClaimRefundAccounts names the accounts claim_refund touches.
type ClaimRefundAccounts struct {
	Mint          solana.PublicKey
	Pool          solana.PublicKey
	PoolToken     solana.PublicKey
	UserToken     solana.PublicKey
	TreasuryToken solana.PublicKey
	User          solana.PublicKey
	Participants  solana.PublicKey
}

// ClaimRefund builds claim_refund for a participant of an expired pool.
func (b *InstructionBuilder) ClaimRefund(a ClaimRefundAccounts) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(a.Mint),
			solana.Meta(a.Pool).WRITE(),
			solana.Meta(a.PoolToken).WRITE(),
			solana.Meta(a.UserToken).WRITE(),
			solana.Meta(a.TreasuryToken).WRITE(),
			solana.Meta(a.User).WRITE().SIGNER(),
			solana.Meta(TokenProgramID),
			solana.Meta(a.Participants).WRITE(),
		},
		ixData(OpClaimRefund, nil),
	)
}

// ClaimRentAccounts names the accounts claim_rent touches. CloseTarget
// receives the reclaimed rent lamports.
type ClaimRentAccounts struct {
	Pool         solana.PublicKey
	Mint         solana.PublicKey
	PoolToken    solana.PublicKey
	CloseTarget  solana.PublicKey
	User         solana.PublicKey
	Participants solana.PublicKey
}

// ClaimRent builds claim_rent, closing a terminal pool's accounts.
func (b *InstructionBuilder) ClaimRent(a ClaimRentAccounts) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(a.Pool).WRITE(),
			solana.Meta(a.Mint),
			solana.Meta(a.PoolToken).WRITE(),
			solana.Meta(a.CloseTarget).WRITE(),
			solana.Meta(a.User).WRITE().SIGNER(),
			solana.Meta(TokenProgramID),
			solana.Meta(a.Participants).WRITE(),
		},
		ixData(OpClaimRent, nil),
	)
}

// UnlockPool builds unlock_pool, the permissionless transition out of the
// lock window.
func (b *InstructionBuilder) UnlockPool(pool, user, participants solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(pool).WRITE(),
			solana.Meta(user).SIGNER(),
			solana.Meta(participants),
		},
		ixData(OpUnlockPool, nil),
	)
}

// RequestRandomness builds request_randomness against an oracle randomness
// account.
func (b *InstructionBuilder) RequestRandomness(randomness, pool, user, participants solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(randomness),
			solana.Meta(pool).WRITE(),
			solana.Meta(user).SIGNER(),
			solana.Meta(participants),
		},
		ixData(OpRequestRandomness, nil),
	)
}

// SelectWinner builds select_winner once the randomness account is
// fulfilled.
func (b *InstructionBuilder) SelectWinner(pool, randomness, user, participants solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(pool).WRITE(),
			solana.Meta(randomness),
			solana.Meta(user).SIGNER(),
			solana.Meta(participants),
		},
		ixData(OpSelectWinner, nil),
	)
}

// PayoutWinnerAccounts names the accounts payout_winner touches.
type PayoutWinnerAccounts struct {
	Mint          solana.PublicKey
	Pool          solana.PublicKey
	PoolToken     solana.PublicKey
	WinnerToken   solana.PublicKey
	DevToken      solana.PublicKey
	TreasuryToken solana.PublicKey
	Winner        solana.PublicKey
	User          solana.PublicKey
	Participants  solana.PublicKey
}

// PayoutWinner builds payout_winner, distributing the pot to the winner and
// fee wallets and ending the pool.
func (b *InstructionBuilder) PayoutWinner(a PayoutWinnerAccounts) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(a.Mint),
			solana.Meta(a.Pool).WRITE(),
			solana.Meta(a.PoolToken).WRITE(),
			solana.Meta(a.WinnerToken).WRITE(),
			solana.Meta(a.DevToken).WRITE(),
			solana.Meta(a.TreasuryToken).WRITE(),
			solana.Meta(TokenProgramID),
			solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(a.Winner),
			solana.Meta(a.User).WRITE().SIGNER(),
			solana.Meta(a.Participants).WRITE(),
		},
		ixData(OpPayoutWinner, nil),
	)
}

// SweepExpiredPool builds sweep_expired_pool, cancelling a pool that never
// filled before its expiry. The signer must be the pool's dev wallet.
func (b *InstructionBuilder) SweepExpiredPool(mint, pool, poolToken, user, participants solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(mint).WRITE(),
			solana.Meta(pool).WRITE(),
			solana.Meta(poolToken).WRITE(),
			solana.Meta(user).WRITE().SIGNER(),
			solana.Meta(TokenProgramID),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(participants),
		},
		ixData(OpSweepExpiredPool, nil),
	)
}

// FinalizeForfeitedAccounts names the accounts finalize_forfeited_pool
// touches. TreasuryToken must be the treasury wallet's ATA for the mint.
type FinalizeForfeitedAccounts struct {
	Mint          solana.PublicKey
	Pool          solana.PublicKey
	PoolToken     solana.PublicKey
	TreasuryToken solana.PublicKey
	User          solana.PublicKey
	Participants  solana.PublicKey
}

// FinalizeForfeited builds finalize_forfeited_pool, sweeping unclaimed
// funds to the treasury after the forfeit window.
func (b *InstructionBuilder) FinalizeForfeited(a FinalizeForfeitedAccounts) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(a.Mint).WRITE(),
			solana.Meta(a.Pool).WRITE(),
			solana.Meta(a.PoolToken).WRITE(),
			solana.Meta(a.TreasuryToken).WRITE(),
			solana.Meta(a.User).WRITE().SIGNER(),
			solana.Meta(TokenProgramID),
			solana.Meta(a.Participants).WRITE(),
		},
		ixData(OpFinalizeForfeited, nil),
	)
}

// PausePool builds the admin pause_pool instruction.
func (b *InstructionBuilder) PausePool(pool, admin solana.PublicKey) solana.Instruction {
	return b.adminInstruction(OpPausePool, pool, admin, nil)
}

// UnpausePool builds the admin unpause_pool instruction.
func (b *InstructionBuilder) UnpausePool(pool, admin solana.PublicKey) solana.Instruction {
	return b.adminInstruction(OpUnpausePool, pool, admin, nil)
}

// SetLockDuration builds the admin set_lock_duration instruction.
func (b *InstructionBuilder) SetLockDuration(pool, admin solana.PublicKey, lockDuration int64) solana.Instruction {
	args := binary.LittleEndian.AppendUint64(nil, uint64(lockDuration))
	return b.adminInstruction(OpSetLockDuration, pool, admin, args)
}

// ForceExpire builds the admin force_expire instruction.
func (b *InstructionBuilder) ForceExpire(pool, admin solana.PublicKey) solana.Instruction {
	return b.adminInstruction(OpForceExpire, pool, admin, nil)
}

func (b *InstructionBuilder) adminInstruction(op Operation, pool, admin solana.PublicKey, args []byte) solana.Instruction {
	return solana.NewInstruction(
		b.ProgramID,
		solana.AccountMetaSlice{
			solana.Meta(pool).WRITE(),
			solana.Meta(admin).SIGNER(),
		},
		ixData(op, args),
	)
}

// NewPriorityFeeInstruction builds a ComputeBudget SetComputeUnitPrice
// instruction: discriminant byte 3 followed by the price in micro-lamports,
// little-endian.
func NewPriorityFeeInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}
