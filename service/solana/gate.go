package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ErrPoolNotReady is returned when a pool account does not become readable
// within the readiness window.
var ErrPoolNotReady = errors.New("pool account not ready")

// ReadinessGate waits for a freshly created pool account to become visible
// and decodable at the finalized commitment. Creation confirms before the
// account is reliably readable, so callers that immediately act on a new
// pool go through the gate first.
type ReadinessGate struct {
	client   *Client
	attempts int
	interval time.Duration
}

// NewReadinessGate uses the standard window: twelve polls, one second apart.
func NewReadinessGate(client *Client) *ReadinessGate {
	return &ReadinessGate{client: client, attempts: 12, interval: time.Second}
}

// WaitForPool polls until the pool account exists, passes the strict
// structured decode, and reports initialized. The raw fallback the read
// path tolerates does not count as ready here; an account that only decodes
// through it is still settling or carries a drifted layout. Returns the
// decoded pool on success and ErrPoolNotReady (wrapping the last observed
// failure) when the window closes first.
func (g *ReadinessGate) WaitForPool(ctx context.Context, address solana.PublicKey) (*PoolAccount, error) {
	var lastErr error
	for i := 0; i < g.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.interval):
			}
		}

		data, err := g.client.GetAccountData(ctx, address)
		if err != nil {
			lastErr = err
			continue
		}
		pool, err := decodePoolStructured(data)
		if err != nil {
			lastErr = err
			continue
		}
		if !pool.Initialized {
			lastErr = fmt.Errorf("pool %s decoded but not initialized", address)
			continue
		}
		return pool, nil
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrPoolNotReady, address, g.attempts, lastErr)
}
