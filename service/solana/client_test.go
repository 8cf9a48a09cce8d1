package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing. It's behavior-focused: we
// set what it should return, not verify call sequences.
type mockRPCClient struct {
	genesisHash solana.Hash
	genesisErr  error

	accounts  map[solana.PublicKey][]byte
	accountFn func(solana.PublicKey) (*rpc.GetAccountInfoResult, error)

	blockhash    solana.Hash
	blockhashErr error

	simulateFn func(*solana.Transaction) (*rpc.SimulateTransactionResponse, error)
	sendFn     func(*solana.Transaction) (solana.Signature, error)
	statusFn   func(solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	txFn       func(solana.Signature) (*rpc.GetTransactionResult, error)

	slot uint64
}

func (m *mockRPCClient) GetGenesisHash(ctx context.Context) (solana.Hash, error) {
	return m.genesisHash, m.genesisErr
}

func (m *mockRPCClient) GetAccountInfoWithOpts(
	ctx context.Context,
	account solana.PublicKey,
	opts *rpc.GetAccountInfoOpts,
) (*rpc.GetAccountInfoResult, error) {
	if m.accountFn != nil {
		return m.accountFn(account)
	}
	data, ok := m.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{
			Data: rpc.DataBytesOrJSONFromBytes(data),
		},
	}, nil
}

func (m *mockRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (*rpc.GetLatestBlockhashResult, error) {
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            m.blockhash,
			LastValidBlockHeight: 1000,
		},
	}, nil
}

func (m *mockRPCClient) SimulateTransactionWithOpts(
	ctx context.Context,
	tx *solana.Transaction,
	opts *rpc.SimulateTransactionOpts,
) (*rpc.SimulateTransactionResponse, error) {
	if m.simulateFn != nil {
		return m.simulateFn(tx)
	}
	return &rpc.SimulateTransactionResponse{
		Value: &rpc.SimulateTransactionResult{},
	}, nil
}

func (m *mockRPCClient) SendTransactionWithOpts(
	ctx context.Context,
	tx *solana.Transaction,
	opts rpc.TransactionOpts,
) (solana.Signature, error) {
	if m.sendFn != nil {
		return m.sendFn(tx)
	}
	return solana.Signature{1}, nil
}

func (m *mockRPCClient) GetSignatureStatuses(
	ctx context.Context,
	searchTransactionHistory bool,
	signatures ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	if m.statusFn != nil {
		return m.statusFn(signatures[0])
	}
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusFinalized},
		},
	}, nil
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	if m.txFn != nil {
		return m.txFn(signature)
	}
	return nil, rpc.ErrNotFound
}

func (m *mockRPCClient) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	return m.slot, nil
}

var testProgramID = testPubkey(9)

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, testProgramID, "devnet", DefaultParticipantsLayout, "test", nil, logger)
}

func TestVerifyNetwork(t *testing.T) {
	ctx := context.Background()

	t.Run("matching genesis hash", func(t *testing.T) {
		mock := &mockRPCClient{genesisHash: DevnetGenesisHash}
		client := newTestClient(mock)
		require.NoError(t, client.VerifyNetwork(ctx))
	})

	t.Run("mismatched genesis hash", func(t *testing.T) {
		mock := &mockRPCClient{genesisHash: MainnetGenesisHash}
		client := newTestClient(mock)
		err := client.VerifyNetwork(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWrongNetwork)
	})

	t.Run("unknown network name", func(t *testing.T) {
		mock := &mockRPCClient{genesisHash: DevnetGenesisHash}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		client := NewClient(mock, testProgramID, "testnet", DefaultParticipantsLayout, "test", nil, logger)
		require.Error(t, client.VerifyNetwork(ctx))
	})

	t.Run("rpc error", func(t *testing.T) {
		mock := &mockRPCClient{genesisErr: errors.New("connection refused")}
		client := newTestClient(mock)
		require.Error(t, client.VerifyNetwork(ctx))
	})
}

func TestGetAccountData(t *testing.T) {
	ctx := context.Background()
	addr := solana.NewWallet().PublicKey()

	t.Run("missing account", func(t *testing.T) {
		client := newTestClient(&mockRPCClient{})
		_, err := client.GetAccountData(ctx, addr)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("present account", func(t *testing.T) {
		mock := &mockRPCClient{accounts: map[solana.PublicKey][]byte{
			addr: {1, 2, 3},
		}}
		client := newTestClient(mock)
		data, err := client.GetAccountData(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, data)
	})
}

func TestGetPoolState(t *testing.T) {
	ctx := context.Background()
	addr := solana.NewWallet().PublicKey()
	pool := samplePool()

	t.Run("decodes a pool account", func(t *testing.T) {
		mock := &mockRPCClient{accounts: map[solana.PublicKey][]byte{
			addr: EncodePool(pool),
		}}
		client := newTestClient(mock)
		got, err := client.GetPoolState(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, pool, got)
	})

	t.Run("rejects a non-pool account", func(t *testing.T) {
		mock := &mockRPCClient{accounts: map[solana.PublicKey][]byte{
			addr: EncodeParticipantsVec(nil),
		}}
		client := newTestClient(mock)
		_, err := client.GetPoolState(ctx, addr)
		assert.ErrorIs(t, err, ErrWrongAccountType)
	})

	t.Run("missing pool", func(t *testing.T) {
		client := newTestClient(&mockRPCClient{})
		_, err := client.GetPoolState(ctx, addr)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestGetParticipants(t *testing.T) {
	ctx := context.Background()
	addr := solana.NewWallet().PublicKey()
	list := []solana.PublicKey{
		solana.NewWallet().PublicKey(),
		solana.NewWallet().PublicKey(),
	}

	t.Run("vec layout for new schema", func(t *testing.T) {
		mock := &mockRPCClient{accounts: map[solana.PublicKey][]byte{
			addr: EncodeParticipantsVec(list),
		}}
		client := newTestClient(mock)
		got, err := client.GetParticipants(ctx, addr, 2)
		require.NoError(t, err)
		assert.Equal(t, uint16(2), got.Count)
		assert.Equal(t, list, got.List)
	})

	t.Run("fixed layout for old schema", func(t *testing.T) {
		mock := &mockRPCClient{accounts: map[solana.PublicKey][]byte{
			addr: EncodeParticipantsFixed(list),
		}}
		client := newTestClient(mock)
		got, err := client.GetParticipants(ctx, addr, 1)
		require.NoError(t, err)
		assert.Equal(t, uint16(2), got.Count)
		assert.Equal(t, list, got.List)
	})
}

func TestGetLatestBlockhash(t *testing.T) {
	hash := solana.HashFromBytes([]byte{
		9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9,
		9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9,
	})
	client := newTestClient(&mockRPCClient{blockhash: hash})
	got, height, err := client.GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, got)
	assert.Equal(t, uint64(1000), height)
}

func TestGetSignatureStatus(t *testing.T) {
	t.Run("unknown signature yields nil status", func(t *testing.T) {
		mock := &mockRPCClient{statusFn: func(solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
			return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
		}}
		client := newTestClient(mock)
		status, err := client.GetSignatureStatus(context.Background(), solana.Signature{1})
		require.NoError(t, err)
		assert.Nil(t, status)
	})

	t.Run("finalized signature", func(t *testing.T) {
		client := newTestClient(&mockRPCClient{})
		status, err := client.GetSignatureStatus(context.Background(), solana.Signature{1})
		require.NoError(t, err)
		require.NotNil(t, status)
		assert.Equal(t, rpc.ConfirmationStatusFinalized, status.ConfirmationStatus)
	})
}
