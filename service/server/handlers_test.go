package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotpool/lotpool/service/db"
	"github.com/lotpool/lotpool/service/nats"
	sol "github.com/lotpool/lotpool/service/solana"
)

// mockChain implements Chain with canned responses.
type mockChain struct {
	account      *sol.PoolAccount
	participants *sol.ParticipantsAccount
	verifySlot   uint64
	verifyErr    error
	waitErr      error
	verified     []sol.Expectation
}

func (c *mockChain) Network() string { return "devnet" }

func (c *mockChain) Verify(ctx context.Context, sig solanago.Signature, want sol.Expectation) (uint64, int64, error) {
	c.verified = append(c.verified, want)
	if c.verifyErr != nil {
		return 0, 0, c.verifyErr
	}
	return c.verifySlot, 1700000123, nil
}

func (c *mockChain) GetPoolState(ctx context.Context, address solanago.PublicKey) (*sol.PoolAccount, error) {
	if c.account == nil {
		return nil, sol.ErrAccountNotFound
	}
	return c.account, nil
}

func (c *mockChain) GetParticipants(ctx context.Context, address solanago.PublicKey, schema uint8) (*sol.ParticipantsAccount, error) {
	if c.participants == nil {
		return nil, sol.ErrAccountNotFound
	}
	return c.participants, nil
}

func (c *mockChain) WaitForPool(ctx context.Context, address solanago.PublicKey) (*sol.PoolAccount, error) {
	if c.waitErr != nil {
		return nil, c.waitErr
	}
	if c.account == nil {
		return nil, sol.ErrPoolNotReady
	}
	return c.account, nil
}

func newTestMux(store *db.Store, chain Chain, publisher nats.Publisher) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/pools", handleRegisterPool(store, chain, publisher, nil, logger))
	mux.Handle("GET /api/v1/pools", handleListPools(store, logger))
	mux.Handle("GET /api/v1/pools/{address}", handleGetPool(store, logger))
	mux.Handle("GET /api/v1/pools/{address}/participants", handleListParticipants(store, logger))
	mux.Handle("POST /api/v1/pools/{address}/join", handleClaim(claimJoin, store, chain, publisher, nil, logger))
	mux.Handle("POST /api/v1/pools/{address}/donate", handleClaim(claimDonate, store, chain, publisher, nil, logger))
	mux.Handle("POST /api/v1/pools/{address}/claim-rent", handleClaim(claimRent, store, chain, publisher, nil, logger))
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func testSignature(n byte) string {
	var b [64]byte
	for i := range b {
		b[i] = n
	}
	sig := solanago.SignatureFromBytes(b[:])
	return sig.String()
}

// chainAccount returns an on-chain pool account for the mock chain.
func chainAccount(creator, mint solanago.PublicKey) *sol.PoolAccount {
	return &sol.PoolAccount{
		Mint:            mint,
		Creator:         creator,
		Status:          sol.StatusOpen,
		Amount:          1000,
		TotalAmount:     1000,
		MaxParticipants: 20,
		Schema:          2,
		Initialized:     true,
		StartTime:       1700000000,
	}
}

func seedPool(t *testing.T, store *db.Store, address string, creator, mint solanago.PublicKey) {
	t.Helper()
	_, err := store.UpsertPool(context.Background(), projectPool(address, chainAccount(creator, mint), "devnet", 0))
	require.NoError(t, err)
}

func TestHandleRegisterPool(t *testing.T) {
	db.SkipIfNoTestDB(t)
	ts := db.NewTestStore(t)
	defer ts.Close()

	creator := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()
	poolAddr := solanago.NewWallet().PublicKey()

	t.Run("registers a verified pool", func(t *testing.T) {
		ts.Cleanup(t)
		chain := &mockChain{account: chainAccount(creator, mint), verifySlot: 1234}
		publisher := nats.NewMockPublisher()
		mux := newTestMux(ts.Store, chain, publisher)

		rec := doJSON(t, mux, "POST", "/api/v1/pools", registerPoolRequest{
			Address:   poolAddr.String(),
			Signature: testSignature(1),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp poolResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, poolAddr.String(), resp.Address)
		assert.Equal(t, "open", resp.Status)
		assert.Equal(t, creator.String(), resp.Creator)

		// The verification ran against the creator read from chain, not
		// anything the client sent.
		require.Len(t, chain.verified, 1)
		assert.Equal(t, sol.OpCreatePool, chain.verified[0].Kind)
		assert.Equal(t, creator, chain.verified[0].Actor)

		events := publisher.GetPublishedEvents()
		require.Len(t, events, 1)
		assert.Equal(t, string(sol.OpCreatePool), events[0].Operation)
	})

	t.Run("replayed signature conflicts", func(t *testing.T) {
		ts.Cleanup(t)
		chain := &mockChain{account: chainAccount(creator, mint), verifySlot: 1234}
		mux := newTestMux(ts.Store, chain, nats.NewMockPublisher())

		body := registerPoolRequest{Address: poolAddr.String(), Signature: testSignature(2)}
		rec := doJSON(t, mux, "POST", "/api/v1/pools", body)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doJSON(t, mux, "POST", "/api/v1/pools", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("verification failure rejects", func(t *testing.T) {
		ts.Cleanup(t)
		chain := &mockChain{account: chainAccount(creator, mint), verifyErr: sol.ErrClaimMismatch}
		mux := newTestMux(ts.Store, chain, nats.NewMockPublisher())

		rec := doJSON(t, mux, "POST", "/api/v1/pools", registerPoolRequest{
			Address:   poolAddr.String(),
			Signature: testSignature(3),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		// Nothing was stored for the rejected registration.
		_, err := ts.Store.GetPool(context.Background(), poolAddr.String())
		assert.ErrorIs(t, err, db.ErrNotFound)
	})

	t.Run("unfinalized creation asks for a retry", func(t *testing.T) {
		ts.Cleanup(t)
		chain := &mockChain{account: chainAccount(creator, mint), verifyErr: sol.ErrTxNotFinalized}
		mux := newTestMux(ts.Store, chain, nats.NewMockPublisher())

		rec := doJSON(t, mux, "POST", "/api/v1/pools", registerPoolRequest{
			Address:   poolAddr.String(),
			Signature: testSignature(4),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "retry")
	})

	t.Run("pool account never becomes ready", func(t *testing.T) {
		ts.Cleanup(t)
		chain := &mockChain{account: nil}
		mux := newTestMux(ts.Store, chain, nats.NewMockPublisher())

		rec := doJSON(t, mux, "POST", "/api/v1/pools", registerPoolRequest{
			Address:   poolAddr.String(),
			Signature: testSignature(5),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		chain := &mockChain{}
		mux := newTestMux(ts.Store, chain, nats.NewMockPublisher())
		req := httptest.NewRequest("POST", "/api/v1/pools", bytes.NewBufferString("not json"))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleJoinClaim(t *testing.T) {
	db.SkipIfNoTestDB(t)
	ts := db.NewTestStore(t)
	defer ts.Close()

	creator := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()
	poolAddr := solanago.NewWallet().PublicKey()
	actor := solanago.NewWallet().PublicKey()

	joinPath := fmt.Sprintf("/api/v1/pools/%s/join", poolAddr)

	t.Run("verified join updates projection and membership", func(t *testing.T) {
		ts.Cleanup(t)
		seedPool(t, ts.Store, poolAddr.String(), creator, mint)

		account := chainAccount(creator, mint)
		account.TotalAmount = 2000
		chain := &mockChain{
			account:      account,
			participants: &sol.ParticipantsAccount{Count: 1, Capacity: 20, List: []solanago.PublicKey{actor}},
			verifySlot:   2000,
		}
		publisher := nats.NewMockPublisher()
		mux := newTestMux(ts.Store, chain, publisher)

		amount := uint64(1000)
		rec := doJSON(t, mux, "POST", joinPath, claimRequest{
			Signature: testSignature(10),
			Actor:     actor.String(),
			Amount:    &amount,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp poolResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int16(1), resp.ParticipantCount)
		assert.Equal(t, int64(2000), resp.TotalAmount)

		participants, err := ts.Store.ListParticipants(context.Background(), poolAddr.String())
		require.NoError(t, err)
		require.Len(t, participants, 1)
		assert.Equal(t, actor.String(), participants[0].Address)

		// The claimed mint came from the stored projection.
		require.Len(t, chain.verified, 1)
		require.NotNil(t, chain.verified[0].Mint)
		assert.Equal(t, mint, *chain.verified[0].Mint)

		require.Len(t, publisher.GetPublishedEvents(), 1)
	})

	t.Run("unknown pool", func(t *testing.T) {
		ts.Cleanup(t)
		chain := &mockChain{}
		mux := newTestMux(ts.Store, chain, nats.NewMockPublisher())

		rec := doJSON(t, mux, "POST", joinPath, claimRequest{
			Signature: testSignature(11),
			Actor:     actor.String(),
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("replayed signature conflicts before verification", func(t *testing.T) {
		ts.Cleanup(t)
		seedPool(t, ts.Store, poolAddr.String(), creator, mint)
		require.NoError(t, ts.Store.MarkTransactionUsed(context.Background(), db.MarkTransactionUsedParams{
			Signature:   testSignature(12),
			Operation:   string(sol.OpJoinPool),
			PoolAddress: poolAddr.String(),
			Actor:       actor.String(),
			Slot:        1,
		}))

		chain := &mockChain{account: chainAccount(creator, mint)}
		mux := newTestMux(ts.Store, chain, nats.NewMockPublisher())

		rec := doJSON(t, mux, "POST", joinPath, claimRequest{
			Signature: testSignature(12),
			Actor:     actor.String(),
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, chain.verified, "a replayed claim never reaches the verifier")
	})

	t.Run("mismatched claim", func(t *testing.T) {
		ts.Cleanup(t)
		seedPool(t, ts.Store, poolAddr.String(), creator, mint)
		chain := &mockChain{account: chainAccount(creator, mint), verifyErr: sol.ErrClaimMismatch}
		mux := newTestMux(ts.Store, chain, nats.NewMockPublisher())

		rec := doJSON(t, mux, "POST", joinPath, claimRequest{
			Signature: testSignature(13),
			Actor:     actor.String(),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		used, err := ts.Store.IsTransactionUsed(context.Background(), testSignature(13))
		require.NoError(t, err)
		assert.False(t, used, "a rejected claim must not burn the signature")
	})
}

func TestHandleClaimRent(t *testing.T) {
	db.SkipIfNoTestDB(t)
	ts := db.NewTestStore(t)
	defer ts.Close()

	creator := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()
	poolAddr := solanago.NewWallet().PublicKey()

	ts.Cleanup(t)
	seedPool(t, ts.Store, poolAddr.String(), creator, mint)

	// The accounts are closed by claim_rent, so the chain read fails; the
	// projection is carried forward with the terminal status.
	chain := &mockChain{account: nil, verifySlot: 3000}
	mux := newTestMux(ts.Store, chain, nats.NewMockPublisher())

	rec := doJSON(t, mux, "POST", fmt.Sprintf("/api/v1/pools/%s/claim-rent", poolAddr), claimRequest{
		Signature: testSignature(20),
		Actor:     creator.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp poolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ended", resp.Status)
	assert.Equal(t, mint.String(), resp.Mint, "closing keeps the projected identity")
}

func TestHandleGetAndListPools(t *testing.T) {
	db.SkipIfNoTestDB(t)
	ts := db.NewTestStore(t)
	defer ts.Close()

	creator := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()
	poolAddr := solanago.NewWallet().PublicKey()

	ts.Cleanup(t)
	seedPool(t, ts.Store, poolAddr.String(), creator, mint)
	mux := newTestMux(ts.Store, &mockChain{}, nats.NewMockPublisher())

	t.Run("get pool", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", "/api/v1/pools/"+poolAddr.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp poolResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, poolAddr.String(), resp.Address)
	})

	t.Run("get missing pool", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", "/api/v1/pools/"+solanago.NewWallet().PublicKey().String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list pools with status filter", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", "/api/v1/pools?status=open", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Pools []poolResponse `json:"pools"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Pools, 1)

		rec = doJSON(t, mux, "GET", "/api/v1/pools?status=ended", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Pools)
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", "/api/v1/pools?limit=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list participants of empty pool", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", fmt.Sprintf("/api/v1/pools/%s/participants", poolAddr), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Participants []participantResponse `json:"participants"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Participants)
	})
}
