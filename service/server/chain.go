package server

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"

	sol "github.com/lotpool/lotpool/service/solana"
)

// Chain is the view of on-chain state the handlers need. It is an interface
// so handler tests can run against a fake ledger.
type Chain interface {
	// Network returns the configured network name ("mainnet" or "devnet").
	Network() string

	// Verify checks a claimed signature against finalized chain state and
	// returns the slot and block time of the transaction.
	Verify(ctx context.Context, sig solanago.Signature, want sol.Expectation) (uint64, int64, error)

	// GetPoolState fetches and decodes a pool account.
	GetPoolState(ctx context.Context, address solanago.PublicKey) (*sol.PoolAccount, error)

	// GetParticipants fetches and decodes a pool's participant list.
	GetParticipants(ctx context.Context, address solanago.PublicKey, schema uint8) (*sol.ParticipantsAccount, error)

	// WaitForPool blocks until a freshly created pool account is readable.
	WaitForPool(ctx context.Context, address solanago.PublicKey) (*sol.PoolAccount, error)
}

// ChainClient bundles the real client, verifier, and readiness gate into the
// Chain interface.
type ChainClient struct {
	Client   *sol.Client
	Verifier *sol.Verifier
	Gate     *sol.ReadinessGate
}

func NewChainClient(client *sol.Client, verifier *sol.Verifier, gate *sol.ReadinessGate) *ChainClient {
	return &ChainClient{Client: client, Verifier: verifier, Gate: gate}
}

func (c *ChainClient) Network() string { return c.Client.Network() }

func (c *ChainClient) Verify(ctx context.Context, sig solanago.Signature, want sol.Expectation) (uint64, int64, error) {
	return c.Verifier.Verify(ctx, sig, want)
}

func (c *ChainClient) GetPoolState(ctx context.Context, address solanago.PublicKey) (*sol.PoolAccount, error) {
	return c.Client.GetPoolState(ctx, address)
}

func (c *ChainClient) GetParticipants(ctx context.Context, address solanago.PublicKey, schema uint8) (*sol.ParticipantsAccount, error) {
	return c.Client.GetParticipants(ctx, address, schema)
}

func (c *ChainClient) WaitForPool(ctx context.Context, address solanago.PublicKey) (*sol.PoolAccount, error) {
	return c.Gate.WaitForPool(ctx, address)
}
