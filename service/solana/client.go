package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/lotpool/lotpool/service/metrics"
)

// RPCClient is an interface over the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type RPCClient interface {
	GetGenesisHash(ctx context.Context) (solana.Hash, error)

	GetAccountInfoWithOpts(
		ctx context.Context,
		account solana.PublicKey,
		opts *rpc.GetAccountInfoOpts,
	) (*rpc.GetAccountInfoResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SimulateTransactionWithOpts(
		ctx context.Context,
		tx *solana.Transaction,
		opts *rpc.SimulateTransactionOpts,
	) (*rpc.SimulateTransactionResponse, error)

	SendTransactionWithOpts(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

var (
	// ErrAccountNotFound is returned when the requested account does not
	// exist at the finalized commitment.
	ErrAccountNotFound = errors.New("account not found")

	// ErrWrongNetwork is returned when the RPC endpoint's genesis hash does
	// not match the configured network.
	ErrWrongNetwork = errors.New("rpc endpoint genesis hash does not match configured network")
)

// Client provides pool-program reads and transaction plumbing over an RPC
// endpoint. All reads use the finalized commitment; state that can still be
// rolled back is never acted on.
type Client struct {
	rpc       RPCClient
	programID solana.PublicKey
	network   string // "mainnet" or "devnet"
	layout    ParticipantsLayoutConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
	endpoint  string // endpoint identifier for metrics labels
}

// NewClient creates a pool-program client. network must be "mainnet" or
// "devnet"; it selects the expected genesis hash for VerifyNetwork. If m is
// nil, no metrics are recorded.
func NewClient(
	rpcClient RPCClient,
	programID solana.PublicKey,
	network string,
	layout ParticipantsLayoutConfig,
	endpoint string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Client {
	return &Client{
		rpc:       rpcClient,
		programID: programID,
		network:   network,
		layout:    layout,
		logger:    logger,
		metrics:   m,
		endpoint:  endpoint,
	}
}

// ProgramID returns the pool program this client is bound to.
func (c *Client) ProgramID() solana.PublicKey { return c.programID }

// Network returns the configured network name.
func (c *Client) Network() string { return c.network }

// ParticipantsLayout returns the layout dispatch configuration.
func (c *Client) ParticipantsLayout() ParticipantsLayoutConfig { return c.layout }

// expectedGenesisHash maps the configured network name to its genesis hash.
func (c *Client) expectedGenesisHash() (solana.Hash, error) {
	switch c.network {
	case "mainnet":
		return MainnetGenesisHash, nil
	case "devnet":
		return DevnetGenesisHash, nil
	default:
		return solana.Hash{}, fmt.Errorf("unknown network %q", c.network)
	}
}

// VerifyNetwork checks that the endpoint's genesis hash matches the
// configured network. Call it at startup and before building transactions;
// a mainnet transaction must never be assembled against devnet state.
func (c *Client) VerifyNetwork(ctx context.Context) error {
	want, err := c.expectedGenesisHash()
	if err != nil {
		return err
	}

	start := time.Now()
	got, err := c.rpc.GetGenesisHash(ctx)
	c.record("GetGenesisHash", err, start)
	if err != nil {
		return fmt.Errorf("get genesis hash: %w", err)
	}
	if !got.Equals(want) {
		c.logger.ErrorContext(ctx, "genesis hash mismatch",
			"network", c.network,
			"expected", want.String(),
			"got", got.String(),
		)
		return fmt.Errorf("%w: network=%s got=%s", ErrWrongNetwork, c.network, got)
	}
	return nil
}

// GetAccountData fetches raw account data at the finalized commitment.
// Returns ErrAccountNotFound if the account does not exist.
func (c *Client) GetAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	start := time.Now()
	result, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentFinalized,
		Encoding:   solana.EncodingBase64,
	})
	c.record("GetAccountInfo", err, start)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
		}
		return nil, fmt.Errorf("get account info %s: %w", address, err)
	}
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	data := result.Value.Data.GetBinary()
	if data == nil {
		return nil, fmt.Errorf("%w: %s has no binary data", ErrAccountNotFound, address)
	}
	return data, nil
}

// GetPoolState fetches and decodes a pool account. It first attempts the
// structured decode and falls back to the raw field-order reader, logging a
// warning when the fallback engages so layout drift is visible.
func (c *Client) GetPoolState(ctx context.Context, address solana.PublicKey) (*PoolAccount, error) {
	data, err := c.GetAccountData(ctx, address)
	if err != nil {
		return nil, err
	}

	pool, structuredErr := decodePoolStructured(data)
	if structuredErr == nil {
		return pool, nil
	}
	if errors.Is(structuredErr, ErrWrongAccountType) {
		return nil, structuredErr
	}

	pool, err = DecodePool(data)
	if err != nil {
		return nil, fmt.Errorf("decode pool %s: %w", address, err)
	}
	c.logger.WarnContext(ctx, "structured pool decode failed, raw decode succeeded",
		"pool", address.String(),
		"schema", pool.Schema,
		"error", structuredErr,
	)
	return pool, nil
}

// decodePoolStructured decodes a pool account through the borsh decoder
// after the manual discriminator check. It requires the exact serialized
// size; an account with trailing bytes decodes only through the raw reader,
// which tolerates appended fields.
func decodePoolStructured(data []byte) (*PoolAccount, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes, discriminator needs 8", ErrTruncatedAccount, len(data))
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	if disc != poolAccountDiscriminator {
		return nil, fmt.Errorf("%w: not a Pool account", ErrWrongAccountType)
	}
	if len(data) != PoolAccountSize {
		return nil, fmt.Errorf("%w: %d bytes, pool layout is %d", ErrTruncatedAccount, len(data), PoolAccountSize)
	}
	var p PoolAccount
	if err := bin.NewBorshDecoder(data[8:]).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedAccount, err)
	}
	return &p, nil
}

// GetParticipants fetches and decodes a pool's participant list. The owning
// pool's schema byte selects the wire layout.
func (c *Client) GetParticipants(ctx context.Context, address solana.PublicKey, schema uint8) (*ParticipantsAccount, error) {
	data, err := c.GetAccountData(ctx, address)
	if err != nil {
		return nil, err
	}
	acct, err := DecodeParticipants(data, schema, c.layout)
	if err != nil {
		return nil, fmt.Errorf("decode participants %s: %w", address, err)
	}
	return acct, nil
}

// GetLatestBlockhash returns a fresh finalized blockhash and its last valid
// block height. Callers must fetch a new one per signing attempt; blockhashes
// expire.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	start := time.Now()
	result, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.record("GetLatestBlockhash", err, start)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("get latest blockhash: %w", err)
	}
	return result.Value.Blockhash, result.Value.LastValidBlockHeight, nil
}

// SimulationError carries the program logs from a failed simulation so
// callers can map program error codes to actionable messages.
type SimulationError struct {
	Err  any
	Logs []string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("transaction simulation failed: %v", e.Err)
}

// Simulate runs the transaction through preflight simulation without
// submitting it. A program-level failure returns *SimulationError.
func (c *Client) Simulate(ctx context.Context, tx *solana.Transaction) error {
	start := time.Now()
	resp, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		Commitment: rpc.CommitmentFinalized,
	})
	c.record("SimulateTransaction", err, start)
	if err != nil {
		return fmt.Errorf("simulate transaction: %w", err)
	}
	if resp.Value != nil && resp.Value.Err != nil {
		return &SimulationError{Err: resp.Value.Err, Logs: resp.Value.Logs}
	}
	return nil
}

// Send submits a signed transaction. Preflight is skipped; Simulate runs
// separately so simulation failures and send failures stay distinguishable.
func (c *Client) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	c.record("SendTransaction", err, start)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// GetSignatureStatus returns the cluster's view of a signature, searching
// full transaction history. A nil status means the cluster has no record of
// the signature.
func (c *Client) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	start := time.Now()
	result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	c.record("GetSignatureStatuses", err, start)
	if err != nil {
		return nil, fmt.Errorf("get signature statuses: %w", err)
	}
	if result == nil || len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// GetTransaction fetches a finalized transaction with full account and
// instruction detail.
func (c *Client) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	start := time.Now()
	result, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	c.record("GetTransaction", err, start)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	return result, nil
}

// GetSlot returns the current finalized slot.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	start := time.Now()
	slot, err := c.rpc.GetSlot(ctx, rpc.CommitmentFinalized)
	c.record("GetSlot", err, start)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

func (c *Client) record(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}
