// Package reconciler drives pools through their lifecycle. Pools advance
// through unlock, randomness, winner selection, and payout via
// permissionless instructions; the reconciler submits whichever one a pool
// is due for and refreshes the projection as it goes.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/lotpool/lotpool/service/db"
	"github.com/lotpool/lotpool/service/metrics"
	sol "github.com/lotpool/lotpool/service/solana"
)

// Store is the projection access the reconciler needs.
type Store interface {
	ListActivePools(ctx context.Context) ([]*db.Pool, error)
	UpsertPool(ctx context.Context, params db.UpsertPoolParams) (*db.Pool, error)
}

// Ledger is the chain read access the reconciler needs.
type Ledger interface {
	Network() string
	GetPoolState(ctx context.Context, address solanago.PublicKey) (*sol.PoolAccount, error)
	GetParticipants(ctx context.Context, address solanago.PublicKey, schema uint8) (*sol.ParticipantsAccount, error)
	GetSlot(ctx context.Context) (uint64, error)
}

// Sender submits instructions signed by the reconciler's wallet.
type Sender interface {
	Submit(ctx context.Context, wallet sol.Wallet, instructions []solanago.Instruction) (solanago.Signature, error)
}

// Reconciler compares projected pools against chain state and drives due
// lifecycle transitions. Every action is idempotent from the program's
// perspective: re-submitting a transition a competing caller already made
// fails simulation and is skipped.
type Reconciler struct {
	store   Store
	ledger  Ledger
	sender  Sender
	builder *sol.InstructionBuilder
	wallet  sol.Wallet
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Reconciler. If m is nil, no metrics are recorded.
func New(store Store, ledger Ledger, sender Sender, builder *sol.InstructionBuilder, wallet sol.Wallet, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		ledger:  ledger,
		sender:  sender,
		builder: builder,
		wallet:  wallet,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// Result summarizes one reconcile pass.
type Result struct {
	PoolsChecked int
	Actions      int
	Errors       int
}

// ReconcileOnce runs a single pass over all non-terminal pools. Individual
// pool failures are logged and counted, never fatal to the pass.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (Result, error) {
	start := r.now()
	var res Result

	pools, err := r.store.ListActivePools(ctx)
	if err != nil {
		r.recordRun("error", start)
		return res, err
	}

	for _, pool := range pools {
		if ctx.Err() != nil {
			r.recordRun("cancelled", start)
			return res, ctx.Err()
		}
		res.PoolsChecked++

		acted, err := r.reconcilePool(ctx, pool)
		if err != nil {
			res.Errors++
			r.logger.WarnContext(ctx, "pool reconcile failed",
				"pool", pool.Address,
				"status", pool.Status,
				"error", err,
			)
			continue
		}
		if acted {
			res.Actions++
		}
	}

	r.recordRun("success", start)
	r.logger.InfoContext(ctx, "reconcile pass complete",
		"pools", res.PoolsChecked,
		"actions", res.Actions,
		"errors", res.Errors,
	)
	return res, nil
}

// reconcilePool refreshes one pool's projection and submits its due
// transition, if any. Returns whether a transition was submitted.
func (r *Reconciler) reconcilePool(ctx context.Context, pool *db.Pool) (bool, error) {
	addr, err := solanago.PublicKeyFromBase58(pool.Address)
	if err != nil {
		return false, err
	}

	account, err := r.ledger.GetPoolState(ctx, addr)
	if err != nil {
		if errors.Is(err, sol.ErrAccountNotFound) {
			// Account closed out from under the projection (rent reclaimed).
			return false, r.markClosed(ctx, pool)
		}
		return false, err
	}

	count := int(pool.ParticipantCount)
	if participants, perr := r.ledger.GetParticipants(ctx, account.ParticipantsAccount, account.Schema); perr == nil {
		count = int(participants.Count)
	}

	if _, err := r.store.UpsertPool(ctx, projectPool(pool.Address, account, r.ledger.Network(), count)); err != nil {
		return false, err
	}

	if account.Paused {
		return false, nil
	}

	action, ix := r.dueTransition(ctx, addr, account)
	if ix == nil {
		return false, nil
	}

	sig, err := r.sender.Submit(ctx, r.wallet, []solanago.Instruction{ix})
	if r.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.RecordReconcileAction(action, status)
	}
	if err != nil {
		return false, err
	}

	r.logger.InfoContext(ctx, "lifecycle transition submitted",
		"pool", pool.Address,
		"action", action,
		"signature", sig.String(),
	)
	return true, nil
}

// dueTransition returns the instruction a pool is due for, or nil when
// nothing is actionable yet.
func (r *Reconciler) dueTransition(ctx context.Context, addr solanago.PublicKey, account *sol.PoolAccount) (string, solanago.Instruction) {
	me := r.wallet.PublicKey()

	switch account.Status {
	case sol.StatusLocked:
		unlockAt := account.LockStartTime + account.LockDuration
		if account.LockStartTime > 0 && r.now().Unix() >= unlockAt {
			return string(sol.OpUnlockPool), r.builder.UnlockPool(addr, me, account.ParticipantsAccount)
		}

	case sol.StatusUnlocked:
		if account.RandomnessAccount.IsZero() {
			return "", nil
		}
		return string(sol.OpRequestRandomness), r.builder.RequestRandomness(account.RandomnessAccount, addr, me, account.ParticipantsAccount)

	case sol.StatusRandomnessRequested:
		// The oracle writes the value into the pool on fulfillment; a zero
		// randomness past the deadline slot means the request lapsed and
		// must be re-issued.
		if account.Randomness.Lo != 0 || account.Randomness.Hi != 0 {
			return string(sol.OpSelectWinner), r.builder.SelectWinner(addr, account.RandomnessAccount, me, account.ParticipantsAccount)
		}
		if slot, err := r.ledger.GetSlot(ctx); err == nil && slot > account.RandomnessDeadlineSlot {
			return string(sol.OpRequestRandomness), r.builder.RequestRandomness(account.RandomnessAccount, addr, me, account.ParticipantsAccount)
		}

	case sol.StatusWinnerSelected:
		if account.Winner.IsZero() {
			return "", nil
		}
		winnerToken, _, err := solanago.FindAssociatedTokenAddress(account.Winner, account.Mint)
		if err != nil {
			return "", nil
		}
		devToken, _, err := solanago.FindAssociatedTokenAddress(account.DevWallet, account.Mint)
		if err != nil {
			return "", nil
		}
		treasuryToken, _, err := solanago.FindAssociatedTokenAddress(account.TreasuryWallet, account.Mint)
		if err != nil {
			return "", nil
		}
		return string(sol.OpPayoutWinner), r.builder.PayoutWinner(sol.PayoutWinnerAccounts{
			Mint:          account.Mint,
			Pool:          addr,
			PoolToken:     account.PoolToken,
			WinnerToken:   winnerToken,
			DevToken:      devToken,
			TreasuryToken: treasuryToken,
			Winner:        account.Winner,
			User:          me,
			Participants:  account.ParticipantsAccount,
		})
	}

	return "", nil
}

// markClosed records that a pool's on-chain accounts no longer exist.
func (r *Reconciler) markClosed(ctx context.Context, pool *db.Pool) error {
	_, err := r.store.UpsertPool(ctx, db.UpsertPoolParams{
		Address:          pool.Address,
		Network:          pool.Network,
		Mint:             pool.Mint,
		Creator:          pool.Creator,
		Status:           sol.StatusEnded.String(),
		StatusByte:       int16(uint8(sol.StatusEnded)),
		StatusReason:     pool.StatusReason,
		Amount:           pool.Amount,
		TotalAmount:      pool.TotalAmount,
		MaxParticipants:  pool.MaxParticipants,
		ParticipantCount: pool.ParticipantCount,
		SchemaVersion:    pool.SchemaVersion,
		Winner:           pool.Winner,
		StartTime:        pool.StartTime,
		EndTime:          pool.EndTime,
		UnlockTime:       pool.UnlockTime,
	})
	if err == nil {
		r.logger.InfoContext(ctx, "pool accounts closed, projection marked ended", "pool", pool.Address)
	}
	return err
}

func (r *Reconciler) recordRun(status string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordReconcileRun(status, time.Since(start).Seconds())
}

// projectPool maps a decoded chain account onto projection columns.
func projectPool(address string, account *sol.PoolAccount, network string, participantCount int) db.UpsertPoolParams {
	var winner *string
	if !account.Winner.IsZero() {
		w := account.Winner.String()
		winner = &w
	}

	return db.UpsertPoolParams{
		Address:          address,
		Network:          network,
		Mint:             account.Mint.String(),
		Creator:          account.Creator.String(),
		Status:           account.Status.String(),
		StatusByte:       int16(uint8(account.Status)),
		StatusReason:     int16(account.StatusReason),
		Amount:           int64(account.Amount),
		TotalAmount:      int64(account.TotalAmount),
		MaxParticipants:  int16(account.MaxParticipants),
		ParticipantCount: int16(participantCount),
		SchemaVersion:    int16(account.Schema),
		Winner:           winner,
		StartTime:        unixToTimePtr(account.StartTime),
		EndTime:          unixToTimePtr(account.EndTime),
		UnlockTime:       unixToTimePtr(account.UnlockTime),
	}
}

func unixToTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
