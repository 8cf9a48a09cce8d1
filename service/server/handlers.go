package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/lotpool/lotpool/service/db"
	"github.com/lotpool/lotpool/service/metrics"
	"github.com/lotpool/lotpool/service/nats"
	sol "github.com/lotpool/lotpool/service/solana"
)

// claimKind describes how one claim route is verified and projected.
// finalStatus is set for operations that close the on-chain accounts, where
// no post-claim chain read is possible.
type claimKind struct {
	name            string
	op              sol.Operation
	addsParticipant bool
	checkMint       bool
	finalStatus     *sol.PoolStatus
}

func statusPtr(s sol.PoolStatus) *sol.PoolStatus { return &s }

var (
	claimJoin   = claimKind{name: "join", op: sol.OpJoinPool, addsParticipant: true, checkMint: true}
	claimDonate = claimKind{name: "donate", op: sol.OpDonate, checkMint: true}
	claimCancel = claimKind{name: "cancel", op: sol.OpCancelPool, checkMint: true, finalStatus: statusPtr(sol.StatusCancelled)}
	claimRefund = claimKind{name: "claim-refund", op: sol.OpClaimRefund, checkMint: true}
	claimRent   = claimKind{name: "claim-rent", op: sol.OpClaimRent, finalStatus: statusPtr(sol.StatusEnded)}
)

// registerPoolRequest is the body for POST /api/v1/pools.
type registerPoolRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// claimRequest is the body for the claim routes. Amount is optional; when
// present it is checked against the instruction's encoded amount.
type claimRequest struct {
	Signature string  `json:"signature"`
	Actor     string  `json:"actor"`
	Amount    *uint64 `json:"amount,omitempty"`
}

// handleRegisterPool returns a handler that registers a freshly created
// pool. The creation signature is verified and the account is read through
// the readiness gate before anything is stored.
// POST /api/v1/pools
func handleRegisterPool(store *db.Store, chain Chain, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req registerPoolRequest
		body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.Address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateSignature(req.Signature); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		poolAddr, err := solanago.PublicKeyFromBase58(req.Address)
		if err != nil {
			writeError(w, "invalid pool address", http.StatusBadRequest)
			return
		}
		sig, err := solanago.SignatureFromBase58(req.Signature)
		if err != nil {
			writeError(w, "invalid signature", http.StatusBadRequest)
			return
		}

		used, err := store.IsTransactionUsed(r.Context(), req.Signature)
		if err != nil {
			logger.Error("failed to check signature usage", "signature", req.Signature, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if used {
			writeError(w, "transaction signature already used", http.StatusConflict)
			return
		}

		// Creation confirms before the account is reliably readable.
		account, err := chain.WaitForPool(r.Context(), poolAddr)
		if err != nil {
			logger.Warn("pool account not ready", "pool", req.Address, "error", err)
			writeError(w, "pool account not ready", http.StatusBadRequest)
			return
		}

		slot, _, err := chain.Verify(r.Context(), sig, sol.Expectation{
			Kind:  sol.OpCreatePool,
			Actor: account.Creator,
			Pool:  poolAddr,
			Mint:  &account.Mint,
		})
		if err != nil {
			status, msg := claimErrorStatus(err)
			logger.Warn("pool registration rejected", "pool", req.Address, "signature", req.Signature, "error", err)
			writeError(w, msg, status)
			return
		}

		params := projectPool(req.Address, account, chain.Network(), 0)

		var pool *db.Pool
		err = store.WithTx(r.Context(), func(tx *db.Store) error {
			if err := tx.MarkTransactionUsed(r.Context(), db.MarkTransactionUsedParams{
				Signature:   req.Signature,
				Operation:   string(sol.OpCreatePool),
				PoolAddress: req.Address,
				Actor:       account.Creator.String(),
				Slot:        int64(slot),
			}); err != nil {
				return err
			}
			pool, err = tx.UpsertPool(r.Context(), params)
			return err
		})
		if err != nil {
			if errors.Is(err, db.ErrTransactionUsed) {
				if m != nil {
					m.RecordReplayConflict(string(sol.OpCreatePool))
				}
				writeError(w, "transaction signature already used", http.StatusConflict)
				return
			}
			logger.Error("failed to register pool", "pool", req.Address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		publishPoolEvent(r.Context(), publisher, pool, string(sol.OpCreatePool), account.Creator.String(), req.Signature, int64(slot), logger)

		logger.Info("pool registered", "pool", req.Address, "creator", account.Creator.String())
		writeJSON(w, poolToResponse(pool), http.StatusCreated)
	})
}

// handleClaim returns a handler for one claim route. The client reports a
// finalized signature; everything else it sent is re-derived from chain
// state.
// POST /api/v1/pools/{address}/<claim>
func handleClaim(kind claimKind, store *db.Store, chain Chain, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req claimRequest
		body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := validateSignature(req.Signature); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.Actor); err != nil {
			writeError(w, "actor: "+err.Error(), http.StatusBadRequest)
			return
		}

		proj, err := store.GetPool(r.Context(), address)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "pool not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to load pool", "pool", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		poolAddr, err := solanago.PublicKeyFromBase58(address)
		if err != nil {
			writeError(w, "invalid pool address", http.StatusBadRequest)
			return
		}
		actor, err := solanago.PublicKeyFromBase58(req.Actor)
		if err != nil {
			writeError(w, "invalid actor address", http.StatusBadRequest)
			return
		}
		sig, err := solanago.SignatureFromBase58(req.Signature)
		if err != nil {
			writeError(w, "invalid signature", http.StatusBadRequest)
			return
		}

		used, err := store.IsTransactionUsed(r.Context(), req.Signature)
		if err != nil {
			logger.Error("failed to check signature usage", "signature", req.Signature, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if used {
			if m != nil {
				m.RecordReplayConflict(string(kind.op))
			}
			writeError(w, "transaction signature already used", http.StatusConflict)
			return
		}

		want := sol.Expectation{
			Kind:   kind.op,
			Actor:  actor,
			Pool:   poolAddr,
			Amount: req.Amount,
		}
		if kind.checkMint {
			mint, err := solanago.PublicKeyFromBase58(proj.Mint)
			if err == nil {
				want.Mint = &mint
			}
		}

		slot, _, err := chain.Verify(r.Context(), sig, want)
		if err != nil {
			status, msg := claimErrorStatus(err)
			logger.Warn("claim rejected",
				"pool", address,
				"operation", kind.op,
				"actor", req.Actor,
				"signature", req.Signature,
				"error", err,
			)
			writeError(w, msg, status)
			return
		}

		params, err := refreshProjection(r, kind, chain, proj, poolAddr)
		if err != nil {
			logger.Error("failed to refresh pool state", "pool", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		var pool *db.Pool
		err = store.WithTx(r.Context(), func(tx *db.Store) error {
			if err := tx.MarkTransactionUsed(r.Context(), db.MarkTransactionUsedParams{
				Signature:   req.Signature,
				Operation:   string(kind.op),
				PoolAddress: address,
				Actor:       req.Actor,
				Slot:        int64(slot),
			}); err != nil {
				return err
			}
			var err error
			pool, err = tx.UpsertPool(r.Context(), params)
			if err != nil {
				return err
			}
			if kind.addsParticipant {
				return tx.AddParticipant(r.Context(), db.AddParticipantParams{
					PoolAddress: address,
					Address:     req.Actor,
					Signature:   req.Signature,
					Slot:        int64(slot),
				})
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, db.ErrTransactionUsed) {
				if m != nil {
					m.RecordReplayConflict(string(kind.op))
				}
				writeError(w, "transaction signature already used", http.StatusConflict)
				return
			}
			logger.Error("failed to record claim", "pool", address, "operation", kind.op, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		publishPoolEvent(r.Context(), publisher, pool, string(kind.op), req.Actor, req.Signature, int64(slot), logger)

		logger.Info("claim recorded",
			"pool", address,
			"operation", kind.op,
			"actor", req.Actor,
			"signature", req.Signature,
		)
		writeJSON(w, poolToResponse(pool), http.StatusOK)
	})
}

// refreshProjection builds the upsert parameters for a claim. Operations
// that close the pool's accounts cannot be re-read from chain, so the
// existing projection is carried forward with the terminal status.
func refreshProjection(r *http.Request, kind claimKind, chain Chain, proj *db.Pool, poolAddr solanago.PublicKey) (db.UpsertPoolParams, error) {
	if kind.finalStatus != nil {
		params := db.UpsertPoolParams{
			Address:          proj.Address,
			Network:          proj.Network,
			Mint:             proj.Mint,
			Creator:          proj.Creator,
			Status:           kind.finalStatus.String(),
			StatusByte:       int16(uint8(*kind.finalStatus)),
			StatusReason:     proj.StatusReason,
			Amount:           proj.Amount,
			TotalAmount:      proj.TotalAmount,
			MaxParticipants:  proj.MaxParticipants,
			ParticipantCount: proj.ParticipantCount,
			SchemaVersion:    proj.SchemaVersion,
			Winner:           proj.Winner,
			StartTime:        proj.StartTime,
			EndTime:          proj.EndTime,
			UnlockTime:       proj.UnlockTime,
		}
		return params, nil
	}

	account, err := chain.GetPoolState(r.Context(), poolAddr)
	if err != nil {
		return db.UpsertPoolParams{}, err
	}

	count := int(proj.ParticipantCount)
	if participants, err := chain.GetParticipants(r.Context(), account.ParticipantsAccount, account.Schema); err == nil {
		count = int(participants.Count)
	}

	return projectPool(proj.Address, account, chain.Network(), count), nil
}

// publishPoolEvent publishes best-effort; a failed publish never fails the
// claim that was already committed.
func publishPoolEvent(ctx context.Context, publisher nats.Publisher, pool *db.Pool, operation, actor, signature string, slot int64, logger *slog.Logger) {
	if publisher == nil {
		return
	}
	event := nats.FromPoolProjection(pool, operation, actor, signature, slot)
	if err := publisher.PublishPoolEvent(ctx, event); err != nil {
		logger.Error("failed to publish pool event",
			"pool", pool.Address,
			"operation", operation,
			"error", err,
		)
	}
}

// handleGetPool returns a handler that retrieves a pool projection.
// GET /api/v1/pools/{address}
func handleGetPool(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		pool, err := store.GetPool(r.Context(), address)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "pool not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get pool", "pool", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, poolToResponse(pool), http.StatusOK)
	})
}

// handleListPools returns a handler that lists pool projections.
// GET /api/v1/pools?status={status}&limit={n}&offset={n}
func handleListPools(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := db.ListPoolsParams{
			Status: r.URL.Query().Get("status"),
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil || n < 0 {
				writeError(w, "invalid limit", http.StatusBadRequest)
				return
			}
			params.Limit = int32(n)
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil || n < 0 {
				writeError(w, "invalid offset", http.StatusBadRequest)
				return
			}
			params.Offset = int32(n)
		}

		pools, err := store.ListPools(r.Context(), params)
		if err != nil {
			logger.Error("failed to list pools", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]poolResponse, len(pools))
		for i, p := range pools {
			resp[i] = poolToResponse(p)
		}
		writeJSON(w, map[string]interface{}{"pools": resp}, http.StatusOK)
	})
}

// handleListParticipants returns a handler that lists a pool's participants.
// GET /api/v1/pools/{address}/participants
func handleListParticipants(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if _, err := store.GetPool(r.Context(), address); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "pool not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get pool", "pool", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		participants, err := store.ListParticipants(r.Context(), address)
		if err != nil {
			logger.Error("failed to list participants", "pool", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]participantResponse, len(participants))
		for i, p := range participants {
			resp[i] = participantToResponse(p)
		}
		writeJSON(w, map[string]interface{}{
			"pool":         address,
			"participants": resp,
		}, http.StatusOK)
	})
}

// claimErrorStatus maps verification failures to HTTP responses.
func claimErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, sol.ErrTxNotFinalized):
		return http.StatusBadRequest, "transaction not yet finalized, retry shortly"
	case errors.Is(err, sol.ErrTxNotFound):
		return http.StatusBadRequest, "transaction not found on chain"
	case errors.Is(err, sol.ErrTxFailed):
		return http.StatusBadRequest, "transaction failed on chain"
	case errors.Is(err, sol.ErrClaimMismatch):
		return http.StatusBadRequest, "transaction does not match the claim"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
