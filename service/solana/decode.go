package solana

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Decode errors. Length violations and type mismatches are always fatal to
// the read that hit them; financial fields are never silently defaulted.
var (
	ErrTruncatedAccount       = errors.New("account data truncated")
	ErrWrongAccountType       = errors.New("account discriminator mismatch")
	ErrInvalidParticipantList = errors.New("participant list invariant violated")
)

// Account discriminators, fixed per account type.
var (
	poolAccountDiscriminator         = AccountDiscriminator("Pool")
	participantsAccountDiscriminator = AccountDiscriminator("Participants")
)

// PoolAccount is the decoded on-chain pool record. Field order matches the
// program's declared layout exactly; all multi-byte integers are
// little-endian. One canonical layout exists per schema/version -- anything
// that does not fit it is undecodable, never guessed at.
type PoolAccount struct {
	PoolID                 uint64
	Salt                   [32]byte
	Mint                   solana.PublicKey
	PoolToken              solana.PublicKey
	Creator                solana.PublicKey
	StartTime              int64
	Duration               int64
	ExpireTime             int64
	EndTime                int64
	UnlockTime             int64
	CloseTime              int64
	MaxParticipants        uint8
	LockDuration           int64
	LockStartTime          int64
	Amount                 uint64
	TotalAmount            uint64
	TotalVolume            uint64
	TotalJoins             uint32
	TotalDonations         uint32
	DevWallet              solana.PublicKey
	DevFeeBps              uint16
	BurnFeeBps             uint16
	TreasuryWallet         solana.PublicKey
	TreasuryFeeBps         uint16
	Randomness             bin.Uint128
	RandomnessAccount      solana.PublicKey
	RandomnessDeadlineSlot uint64
	Bump                   uint8
	Status                 PoolStatus
	Paused                 bool
	Version                uint8
	Schema                 uint8
	ConfigHash             [32]byte
	AllowMock              bool
	RandomnessCommitSlot   uint64
	Initialized            bool
	LastJoinTime           int64
	StatusReason           uint8
	ParticipantsAccount    solana.PublicKey
	Winner                 solana.PublicKey
}

// PoolAccountSize is the full serialized size including the 8-byte
// discriminator prefix.
const PoolAccountSize = 8 + // discriminator
	8 + 32 + 32 + 32 + 32 + // pool_id, salt, mint, pool_token, creator
	6*8 + // start, duration, expire, end, unlock, close
	1 + // max_participants
	2*8 + // lock_duration, lock_start_time
	3*8 + // amount, total_amount, total_volume
	2*4 + // total_joins, total_donations
	32 + 2 + 2 + 32 + 2 + // dev wallet/fees, treasury wallet/fee
	16 + 32 + 8 + // randomness, randomness_account, deadline slot
	1 + 1 + 1 + 1 + 1 + // bump, status, paused, version, schema
	32 + 1 + 8 + 1 + 8 + 1 + // config_hash, allow_mock, commit slot, initialized, last_join, status_reason
	32 + 32 // participants_account, winner

// ParticipantsAccount is the decoded participant list. Two historical wire
// layouts exist (fixed-capacity array and length-prefixed list); both decode
// into this one shape.
type ParticipantsAccount struct {
	Count    uint16
	Capacity uint16
	List     []solana.PublicKey
}

// participantsFixedSize is the serialized size of the fixed-array layout.
const participantsFixedSize = 8 + MaxParticipants*32 + 1

// ParticipantsLayoutConfig selects which wire layout a schema version uses.
// The boundary is configuration, not a guess from buffer length: accounts
// with schema >= VecListMinSchema carry the length-prefixed list, older ones
// the fixed array.
type ParticipantsLayoutConfig struct {
	VecListMinSchema uint8
}

// DefaultParticipantsLayout reflects the deployed program history.
var DefaultParticipantsLayout = ParticipantsLayoutConfig{VecListMinSchema: 2}

// byteReader is a bounds-checked little-endian cursor over account data.
// Every read either advances or latches ErrTruncatedAccount; it never reads
// out of bounds.
type byteReader struct {
	data []byte
	off  int
	err  error
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrTruncatedAccount, n, r.off, len(r.data))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *byteReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *byteReader) boolean() bool { return r.u8() != 0 }

func (r *byteReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *byteReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *byteReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *byteReader) i64() int64 { return int64(r.u64()) }

func (r *byteReader) u128() bin.Uint128 {
	b := r.take(16)
	if b == nil {
		return bin.Uint128{}
	}
	return bin.Uint128{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}

func (r *byteReader) bytes32() (out [32]byte) {
	b := r.take(32)
	if b != nil {
		copy(out[:], b)
	}
	return out
}

func (r *byteReader) pubkey() solana.PublicKey {
	b := r.bytes32()
	return solana.PublicKeyFromBytes(b[:])
}

// DecodePool decodes a raw pool account buffer. The status byte converts
// through the explicit lifecycle table; unmapped ordinals survive decoding
// as-is (PoolStatus.Known reports false) rather than failing the read.
func DecodePool(data []byte) (*PoolAccount, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes, discriminator needs 8", ErrTruncatedAccount, len(data))
	}
	if !bytes.Equal(data[:8], poolAccountDiscriminator[:]) {
		return nil, fmt.Errorf("%w: not a Pool account", ErrWrongAccountType)
	}

	r := &byteReader{data: data, off: 8}
	p := &PoolAccount{
		PoolID:    r.u64(),
		Salt:      r.bytes32(),
		Mint:      r.pubkey(),
		PoolToken: r.pubkey(),
		Creator:   r.pubkey(),

		StartTime:  r.i64(),
		Duration:   r.i64(),
		ExpireTime: r.i64(),
		EndTime:    r.i64(),
		UnlockTime: r.i64(),
		CloseTime:  r.i64(),

		MaxParticipants: r.u8(),
		LockDuration:    r.i64(),
		LockStartTime:   r.i64(),

		Amount:         r.u64(),
		TotalAmount:    r.u64(),
		TotalVolume:    r.u64(),
		TotalJoins:     r.u32(),
		TotalDonations: r.u32(),

		DevWallet:      r.pubkey(),
		DevFeeBps:      r.u16(),
		BurnFeeBps:     r.u16(),
		TreasuryWallet: r.pubkey(),
		TreasuryFeeBps: r.u16(),

		Randomness:             r.u128(),
		RandomnessAccount:      r.pubkey(),
		RandomnessDeadlineSlot: r.u64(),
	}
	p.Bump = r.u8()
	p.Status = PoolStatus(r.u8())
	p.Paused = r.boolean()
	p.Version = r.u8()
	p.Schema = r.u8()
	p.ConfigHash = r.bytes32()
	p.AllowMock = r.boolean()
	p.RandomnessCommitSlot = r.u64()
	p.Initialized = r.boolean()
	p.LastJoinTime = r.i64()
	p.StatusReason = r.u8()
	p.ParticipantsAccount = r.pubkey()
	p.Winner = r.pubkey()

	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

// EncodePool serializes a pool account back to its wire form. Exists for
// round-trip testing and fixtures; the service never writes accounts
// directly.
func EncodePool(p *PoolAccount) []byte {
	buf := make([]byte, 0, PoolAccountSize)
	buf = append(buf, poolAccountDiscriminator[:]...)

	buf = binary.LittleEndian.AppendUint64(buf, p.PoolID)
	buf = append(buf, p.Salt[:]...)
	buf = append(buf, p.Mint.Bytes()...)
	buf = append(buf, p.PoolToken.Bytes()...)
	buf = append(buf, p.Creator.Bytes()...)

	for _, ts := range []int64{p.StartTime, p.Duration, p.ExpireTime, p.EndTime, p.UnlockTime, p.CloseTime} {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(ts))
	}

	buf = append(buf, p.MaxParticipants)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.LockDuration))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.LockStartTime))

	buf = binary.LittleEndian.AppendUint64(buf, p.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, p.TotalAmount)
	buf = binary.LittleEndian.AppendUint64(buf, p.TotalVolume)
	buf = binary.LittleEndian.AppendUint32(buf, p.TotalJoins)
	buf = binary.LittleEndian.AppendUint32(buf, p.TotalDonations)

	buf = append(buf, p.DevWallet.Bytes()...)
	buf = binary.LittleEndian.AppendUint16(buf, p.DevFeeBps)
	buf = binary.LittleEndian.AppendUint16(buf, p.BurnFeeBps)
	buf = append(buf, p.TreasuryWallet.Bytes()...)
	buf = binary.LittleEndian.AppendUint16(buf, p.TreasuryFeeBps)

	buf = binary.LittleEndian.AppendUint64(buf, p.Randomness.Lo)
	buf = binary.LittleEndian.AppendUint64(buf, p.Randomness.Hi)
	buf = append(buf, p.RandomnessAccount.Bytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, p.RandomnessDeadlineSlot)

	buf = append(buf, p.Bump, uint8(p.Status), boolByte(p.Paused), p.Version, p.Schema)
	buf = append(buf, p.ConfigHash[:]...)
	buf = append(buf, boolByte(p.AllowMock))
	buf = binary.LittleEndian.AppendUint64(buf, p.RandomnessCommitSlot)
	buf = append(buf, boolByte(p.Initialized))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.LastJoinTime))
	buf = append(buf, p.StatusReason)
	buf = append(buf, p.ParticipantsAccount.Bytes()...)
	buf = append(buf, p.Winner.Bytes()...)

	return buf
}

// DecodeParticipants decodes a participant-list account. The wire layout is
// selected by the owning pool's schema byte through cfg -- never inferred
// from the buffer length.
func DecodeParticipants(data []byte, schema uint8, cfg ParticipantsLayoutConfig) (*ParticipantsAccount, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes, discriminator needs 8", ErrTruncatedAccount, len(data))
	}
	if !bytes.Equal(data[:8], participantsAccountDiscriminator[:]) {
		return nil, fmt.Errorf("%w: not a Participants account", ErrWrongAccountType)
	}

	var (
		acct *ParticipantsAccount
		err  error
	)
	if schema >= cfg.VecListMinSchema {
		acct, err = decodeParticipantsVec(data)
	} else {
		acct, err = decodeParticipantsFixed(data)
	}
	if err != nil {
		return nil, err
	}

	if acct.Count > acct.Capacity {
		return nil, fmt.Errorf("%w: count %d exceeds capacity %d",
			ErrInvalidParticipantList, acct.Count, acct.Capacity)
	}
	seen := make(map[solana.PublicKey]struct{}, len(acct.List))
	for _, pk := range acct.List {
		if _, dup := seen[pk]; dup {
			return nil, fmt.Errorf("%w: duplicate address %s", ErrInvalidParticipantList, pk)
		}
		seen[pk] = struct{}{}
	}
	return acct, nil
}

// decodeParticipantsFixed reads the original layout: a fixed array of
// MaxParticipants keys followed by a trailing count byte. Slots past the
// count hold the zero-key sentinel and are dropped.
func decodeParticipantsFixed(data []byte) (*ParticipantsAccount, error) {
	r := &byteReader{data: data, off: 8}
	keys := make([]solana.PublicKey, MaxParticipants)
	for i := range keys {
		keys[i] = r.pubkey()
	}
	count := r.u8()
	if r.err != nil {
		return nil, r.err
	}
	if int(count) > MaxParticipants {
		return nil, fmt.Errorf("%w: count %d exceeds capacity %d",
			ErrInvalidParticipantList, count, MaxParticipants)
	}
	return &ParticipantsAccount{
		Count:    uint16(count),
		Capacity: MaxParticipants,
		List:     keys[:count],
	}, nil
}

// decodeParticipantsVec reads the newer layout: a u32 length prefix followed
// by exactly that many keys.
func decodeParticipantsVec(data []byte) (*ParticipantsAccount, error) {
	r := &byteReader{data: data, off: 8}
	n := r.u32()
	if r.err != nil {
		return nil, r.err
	}
	if n > MaxParticipants {
		return nil, fmt.Errorf("%w: length prefix %d exceeds capacity %d",
			ErrInvalidParticipantList, n, MaxParticipants)
	}
	keys := make([]solana.PublicKey, n)
	for i := range keys {
		keys[i] = r.pubkey()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &ParticipantsAccount{
		Count:    uint16(n),
		Capacity: MaxParticipants,
		List:     keys,
	}, nil
}

// EncodeParticipantsFixed serializes the fixed-array layout (schema < vec
// boundary). Test/fixture helper.
func EncodeParticipantsFixed(list []solana.PublicKey) []byte {
	buf := make([]byte, 0, participantsFixedSize)
	buf = append(buf, participantsAccountDiscriminator[:]...)
	for i := 0; i < MaxParticipants; i++ {
		if i < len(list) {
			buf = append(buf, list[i].Bytes()...)
		} else {
			buf = append(buf, make([]byte, 32)...)
		}
	}
	buf = append(buf, uint8(len(list)))
	return buf
}

// EncodeParticipantsVec serializes the length-prefixed layout. Test/fixture
// helper.
func EncodeParticipantsVec(list []solana.PublicKey) []byte {
	buf := make([]byte, 0, 8+4+len(list)*32)
	buf = append(buf, participantsAccountDiscriminator[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(list)))
	for _, pk := range list {
		buf = append(buf, pk.Bytes()...)
	}
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
