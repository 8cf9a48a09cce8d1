package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/lotpool/lotpool/service/metrics"
)

// Verification outcomes. Not-found and not-finalized are distinct: a claim
// for a transaction the cluster has simply not finalized yet is retryable by
// the caller, a claim for a transaction that does not exist is not.
var (
	ErrTxNotFound     = errors.New("transaction not found on chain")
	ErrTxNotFinalized = errors.New("transaction not yet finalized")
	ErrTxFailed       = errors.New("transaction failed on chain")
	ErrClaimMismatch  = errors.New("transaction does not match the claim")
)

// Expectation describes what a client claims a signature did. The verifier
// trusts none of it; every field is checked against the finalized
// transaction.
type Expectation struct {
	Kind   Operation
	Actor  solana.PublicKey
	Pool   solana.PublicKey
	Mint   *solana.PublicKey // nil when the operation carries no mint
	Amount *uint64           // nil when the operation carries no amount
}

// opAccountIndexes locates the pool, mint, and acting signer within each
// instruction's account list. mint -1 means the instruction has no mint
// account.
type opAccountIndexes struct {
	pool  int
	mint  int
	actor int
}

var accountIndexByOp = map[Operation]opAccountIndexes{
	OpCreatePool:        {pool: 1, mint: 0, actor: 3},
	OpJoinPool:          {pool: 1, mint: 0, actor: 4},
	OpDonate:            {pool: 1, mint: 0, actor: 4},
	OpCancelPool:        {pool: 1, mint: 0, actor: 3},
	OpClaimRefund:       {pool: 1, mint: 0, actor: 5},
	OpClaimRent:         {pool: 0, mint: 1, actor: 4},
	OpUnlockPool:        {pool: 0, mint: -1, actor: 1},
	OpRequestRandomness: {pool: 1, mint: -1, actor: 2},
	OpSelectWinner:      {pool: 0, mint: -1, actor: 2},
	OpPayoutWinner:      {pool: 1, mint: 0, actor: 10},
}

// Verifier checks claimed signatures against finalized chain state before
// any projection is written. Client-supplied fields are treated as claims,
// never as facts.
type Verifier struct {
	client  *Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewVerifier(client *Client, m *metrics.Metrics, logger *slog.Logger) *Verifier {
	return &Verifier{client: client, logger: logger, metrics: m}
}

// Verify fetches the finalized transaction for sig and checks it against
// want. On success it returns the slot and block time of the transaction.
func (v *Verifier) Verify(ctx context.Context, sig solana.Signature, want Expectation) (uint64, int64, error) {
	slot, blockTime, err := v.verify(ctx, sig, want)
	if v.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		v.metrics.RecordVerification(string(want.Kind), status)
	}
	return slot, blockTime, err
}

func (v *Verifier) verify(ctx context.Context, sig solana.Signature, want Expectation) (uint64, int64, error) {
	idx, ok := accountIndexByOp[want.Kind]
	if !ok {
		return 0, 0, fmt.Errorf("%w: unverifiable operation %q", ErrClaimMismatch, want.Kind)
	}

	result, err := v.client.GetTransaction(ctx, sig)
	if err != nil || result == nil {
		// The node returns not-found both for unknown signatures and for
		// ones that exist below the finalized commitment. A status probe
		// tells the two apart.
		return 0, 0, v.classifyMissing(ctx, sig, err)
	}
	if result.Meta == nil {
		return 0, 0, fmt.Errorf("%w: %s has no metadata", ErrTxNotFound, sig)
	}
	if result.Meta.Err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", ErrTxFailed, sig, result.Meta.Err)
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return 0, 0, fmt.Errorf("decode transaction %s: %w", sig, err)
	}

	ix, accounts, err := v.findProgramInstruction(tx, want.Kind)
	if err != nil {
		return 0, 0, err
	}

	if err := v.checkAccounts(tx, accounts, idx, want); err != nil {
		return 0, 0, err
	}

	if want.Amount != nil {
		got, ok := instructionAmount(want.Kind, ix.Data)
		if !ok {
			return 0, 0, fmt.Errorf("%w: %s carries no amount to check", ErrClaimMismatch, want.Kind)
		}
		if got != *want.Amount {
			return 0, 0, fmt.Errorf("%w: amount %d, claimed %d", ErrClaimMismatch, got, *want.Amount)
		}
	}

	var blockTime int64
	if result.BlockTime != nil {
		blockTime = int64(*result.BlockTime)
	}
	return result.Slot, blockTime, nil
}

// classifyMissing distinguishes a signature the cluster has never seen from
// one that exists but has not finalized.
func (v *Verifier) classifyMissing(ctx context.Context, sig solana.Signature, fetchErr error) error {
	status, err := v.client.GetSignatureStatus(ctx, sig)
	if err != nil {
		if fetchErr != nil {
			return fmt.Errorf("%w: %s: %v", ErrTxNotFound, sig, fetchErr)
		}
		return fmt.Errorf("%w: %s", ErrTxNotFound, sig)
	}
	if status == nil {
		return fmt.Errorf("%w: %s", ErrTxNotFound, sig)
	}
	if status.Err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTxFailed, sig, status.Err)
	}
	if status.ConfirmationStatus != rpc.ConfirmationStatusFinalized {
		return fmt.Errorf("%w: %s at %s", ErrTxNotFinalized, sig, status.ConfirmationStatus)
	}
	return fmt.Errorf("%w: %s", ErrTxNotFound, sig)
}

// findProgramInstruction locates the pool-program instruction whose
// discriminator matches op and resolves its account list.
func (v *Verifier) findProgramInstruction(tx *solana.Transaction, op Operation) (*solana.CompiledInstruction, []solana.PublicKey, error) {
	disc := InstructionDiscriminator(op)
	keys := tx.Message.AccountKeys

	for i := range tx.Message.Instructions {
		ix := &tx.Message.Instructions[i]
		if int(ix.ProgramIDIndex) >= len(keys) {
			continue
		}
		if !keys[ix.ProgramIDIndex].Equals(v.client.ProgramID()) {
			continue
		}
		if len(ix.Data) < 8 || !bytes.Equal(ix.Data[:8], disc[:]) {
			continue
		}
		accounts := make([]solana.PublicKey, 0, len(ix.Accounts))
		for _, ai := range ix.Accounts {
			if int(ai) >= len(keys) {
				return nil, nil, fmt.Errorf("%w: instruction references account %d of %d", ErrClaimMismatch, ai, len(keys))
			}
			accounts = append(accounts, keys[ai])
		}
		return ix, accounts, nil
	}
	return nil, nil, fmt.Errorf("%w: no %s instruction for the pool program", ErrClaimMismatch, op)
}

// checkAccounts verifies the claimed actor, pool, and mint occupy the
// operation's expected roles, and that the actor actually signed.
func (v *Verifier) checkAccounts(tx *solana.Transaction, accounts []solana.PublicKey, idx opAccountIndexes, want Expectation) error {
	need := idx.pool
	if idx.actor > need {
		need = idx.actor
	}
	if idx.mint > need {
		need = idx.mint
	}
	if len(accounts) <= need {
		return fmt.Errorf("%w: instruction has %d accounts, role table needs %d", ErrClaimMismatch, len(accounts), need+1)
	}

	if !accounts[idx.pool].Equals(want.Pool) {
		return fmt.Errorf("%w: pool is %s, claimed %s", ErrClaimMismatch, accounts[idx.pool], want.Pool)
	}
	if !accounts[idx.actor].Equals(want.Actor) {
		return fmt.Errorf("%w: actor is %s, claimed %s", ErrClaimMismatch, accounts[idx.actor], want.Actor)
	}
	if want.Mint != nil {
		if idx.mint < 0 {
			return fmt.Errorf("%w: %s carries no mint account", ErrClaimMismatch, want.Kind)
		}
		if !accounts[idx.mint].Equals(*want.Mint) {
			return fmt.Errorf("%w: mint is %s, claimed %s", ErrClaimMismatch, accounts[idx.mint], *want.Mint)
		}
	}

	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	for i, key := range tx.Message.AccountKeys {
		if key.Equals(want.Actor) {
			if i < numSigners {
				return nil
			}
			break
		}
	}
	return fmt.Errorf("%w: claimed actor %s did not sign", ErrClaimMismatch, want.Actor)
}

// instructionAmount extracts the token amount an instruction carries, when
// it carries one. Join and donate carry the amount as their sole argument;
// for create_pool it sits after salt, max_participants, and lock_duration.
func instructionAmount(op Operation, data []byte) (uint64, bool) {
	switch op {
	case OpJoinPool, OpDonate:
		if len(data) < 16 {
			return 0, false
		}
		return binary.LittleEndian.Uint64(data[8:16]), true
	case OpCreatePool:
		const off = 8 + 32 + 1 + 8
		if len(data) < off+8 {
			return 0, false
		}
		return binary.LittleEndian.Uint64(data[off:off+8]), true
	default:
		return 0, false
	}
}
