package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyWalletError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassUnknown},
		{"user rejected", errors.New("User rejected the request"), ClassCancelled},
		{"approval denied", errors.New("signing failed: approval denied"), ClassCancelled},
		{"websocket drop", errors.New("websocket: close 1006 (abnormal closure)"), ClassFlakyTransport},
		{"connection reset", errors.New("read tcp: connection reset by peer"), ClassFlakyTransport},
		{"rate limited", errors.New("HTTP 429 Too Many Requests"), ClassFlakyTransport},
		{"timeout", errors.New("request timed out"), ClassFlakyTransport},
		{"program rejection", errors.New("custom program error: 0x1771"), ClassUnknown},
		{"something else", errors.New("unexpected wallet state"), ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyWalletError(tt.err))
		})
	}
}

func TestRetryPolicyDecide(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:       3,
		SimulationBackoff: 300 * time.Millisecond,
		WalletSettleDelay: 500 * time.Millisecond,
	}

	tests := []struct {
		name      string
		attempt   int
		kind      FailureKind
		class     ErrorClass
		wantDelay time.Duration
		wantRetry bool
	}{
		{"simulation failure backs off", 1, FailureSimulation, ClassUnknown, 300 * time.Millisecond, true},
		{"expired blockhash retries immediately", 1, FailureExpired, ClassFlakyTransport, 0, true},
		{"flaky signing settles then retries", 2, FailureSigning, ClassFlakyTransport, 500 * time.Millisecond, true},
		{"flaky send settles then retries", 1, FailureSend, ClassFlakyTransport, 500 * time.Millisecond, true},
		{"cancellation is terminal", 1, FailureSigning, ClassCancelled, 0, false},
		{"unknown send failure is terminal", 1, FailureSend, ClassUnknown, 0, false},
		{"attempt budget exhausted", 3, FailureSimulation, ClassUnknown, 0, false},
		{"budget applies to flaky failures too", 3, FailureSend, ClassFlakyTransport, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, retry := policy.Decide(tt.attempt, tt.kind, tt.class)
			assert.Equal(t, tt.wantRetry, retry)
			assert.Equal(t, tt.wantDelay, delay)
		})
	}
}

func TestMapProgramError(t *testing.T) {
	t.Run("known code", func(t *testing.T) {
		simErr := &SimulationError{
			Err: "InstructionError",
			Logs: []string{
				"Program log: Instruction: JoinPool",
				"Program log: AnchorError occurred. Error Code: PoolFull. Error Number: 6001. Error Message: pool is full.",
			},
		}
		err := mapProgramError(simErr)
		var progErr *ProgramError
		require.ErrorAs(t, err, &progErr)
		assert.Equal(t, 6001, progErr.Code)
		assert.Equal(t, "pool is full", progErr.Message)
	})

	t.Run("unknown code gets generic message", func(t *testing.T) {
		simErr := &SimulationError{
			Logs: []string{"Error Number: 9999. Error Message: who knows."},
		}
		err := mapProgramError(simErr)
		var progErr *ProgramError
		require.ErrorAs(t, err, &progErr)
		assert.Equal(t, 9999, progErr.Code)
	})

	t.Run("no code in logs", func(t *testing.T) {
		simErr := &SimulationError{Logs: []string{"Program failed to complete"}}
		assert.Nil(t, mapProgramError(simErr))
	})
}

// fakeWallet signs by doing nothing; the submitter only cares about the error.
type fakeWallet struct {
	key      solana.PrivateKey
	signErrs []error // consumed one per attempt, nil entries succeed
	calls    int
}

func newFakeWallet(signErrs ...error) *fakeWallet {
	return &fakeWallet{key: solana.NewWallet().PrivateKey, signErrs: signErrs}
}

func (w *fakeWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w *fakeWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	w.calls++
	if len(w.signErrs) > 0 {
		err := w.signErrs[0]
		w.signErrs = w.signErrs[1:]
		return err
	}
	return nil
}

func newTestSubmitter(mock *mockRPCClient) *Submitter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := RetryPolicy{
		MaxAttempts:       3,
		SimulationBackoff: time.Millisecond,
		WalletSettleDelay: time.Millisecond,
	}
	return NewSubmitter(newTestClient(mock), policy, 0, nil, logger)
}

func testInstructions(payer solana.PublicKey) []solana.Instruction {
	b := NewInstructionBuilder(testProgramID)
	return []solana.Instruction{b.UnlockPool(testPubkey(2), payer, testPubkey(7))}
}

func TestSubmitSuccess(t *testing.T) {
	wallet := newFakeWallet()
	wantSig := solana.Signature{42}

	sends := 0
	mock := &mockRPCClient{
		genesisHash: DevnetGenesisHash,
		sendFn: func(*solana.Transaction) (solana.Signature, error) {
			sends++
			return wantSig, nil
		},
	}

	sig, err := newTestSubmitter(mock).Submit(context.Background(), wallet, testInstructions(wallet.PublicKey()))
	require.NoError(t, err)
	assert.Equal(t, wantSig, sig)
	assert.Equal(t, 1, sends)
	assert.Equal(t, 1, wallet.calls)
}

func TestSubmitRefusesWrongNetwork(t *testing.T) {
	wallet := newFakeWallet()
	mock := &mockRPCClient{genesisHash: MainnetGenesisHash}

	_, err := newTestSubmitter(mock).Submit(context.Background(), wallet, testInstructions(wallet.PublicKey()))
	assert.ErrorIs(t, err, ErrWrongNetwork)
}

func TestSubmitProgramErrorIsTerminal(t *testing.T) {
	wallet := newFakeWallet()

	simulations := 0
	mock := &mockRPCClient{
		genesisHash: DevnetGenesisHash,
		simulateFn: func(*solana.Transaction) (*rpc.SimulateTransactionResponse, error) {
			simulations++
			return &rpc.SimulateTransactionResponse{
				Value: &rpc.SimulateTransactionResult{
					Err:  "InstructionError",
					Logs: []string{"Error Number: 6001. Error Message: pool is full."},
				},
			}, nil
		},
	}

	_, err := newTestSubmitter(mock).Submit(context.Background(), wallet, testInstructions(wallet.PublicKey()))
	var progErr *ProgramError
	require.ErrorAs(t, err, &progErr)
	assert.Equal(t, 6001, progErr.Code)
	assert.Equal(t, 1, simulations, "a recognized program error must not be retried")
	assert.Equal(t, 0, wallet.calls, "nothing reached the signer")
}

func TestSubmitUnmappedSimulationFailureIsTerminal(t *testing.T) {
	wallet := newFakeWallet()

	// A runtime-level rejection carries no Anchor error code line, but the
	// same bytes still fail the same way on every resubmission.
	simulations := 0
	mock := &mockRPCClient{
		genesisHash: DevnetGenesisHash,
		simulateFn: func(*solana.Transaction) (*rpc.SimulateTransactionResponse, error) {
			simulations++
			return &rpc.SimulateTransactionResponse{
				Value: &rpc.SimulateTransactionResult{
					Err:  "InsufficientFundsForFee",
					Logs: []string{"Program failed to complete"},
				},
			}, nil
		},
	}

	_, err := newTestSubmitter(mock).Submit(context.Background(), wallet, testInstructions(wallet.PublicKey()))
	var simErr *SimulationError
	require.ErrorAs(t, err, &simErr)
	assert.Equal(t, 1, simulations, "a program-level rejection must not be resubmitted")
	assert.Equal(t, 0, wallet.calls, "nothing reached the signer")
}

func TestSubmitCancelledSigningIsTerminal(t *testing.T) {
	wallet := newFakeWallet(errors.New("user rejected the transaction"))
	mock := &mockRPCClient{genesisHash: DevnetGenesisHash}

	_, err := newTestSubmitter(mock).Submit(context.Background(), wallet, testInstructions(wallet.PublicKey()))
	assert.ErrorIs(t, err, ErrSigningCancelled)
	assert.Equal(t, 1, wallet.calls)
}

func TestSubmitRetriesFlakyTransport(t *testing.T) {
	wallet := newFakeWallet()
	wantSig := solana.Signature{7}

	sends := 0
	mock := &mockRPCClient{
		genesisHash: DevnetGenesisHash,
		sendFn: func(*solana.Transaction) (solana.Signature, error) {
			sends++
			if sends == 1 {
				return solana.Signature{}, errors.New("write tcp: connection reset by peer")
			}
			return wantSig, nil
		},
	}

	sig, err := newTestSubmitter(mock).Submit(context.Background(), wallet, testInstructions(wallet.PublicKey()))
	require.NoError(t, err)
	assert.Equal(t, wantSig, sig)
	assert.Equal(t, 2, sends)
}

func TestSubmitUnknownSendFailureIsTerminal(t *testing.T) {
	wallet := newFakeWallet()

	sends := 0
	mock := &mockRPCClient{
		genesisHash: DevnetGenesisHash,
		sendFn: func(*solana.Transaction) (solana.Signature, error) {
			sends++
			return solana.Signature{}, errors.New("transaction already processed")
		},
	}

	_, err := newTestSubmitter(mock).Submit(context.Background(), wallet, testInstructions(wallet.PublicKey()))
	require.Error(t, err)
	assert.Equal(t, 1, sends, "an unattributable send failure risks a duplicate spend if retried")
}

func TestSubmitFailedOnChain(t *testing.T) {
	failingStatus := func(solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
		return &rpc.GetSignatureStatusesResult{
			Value: []*rpc.SignatureStatusesResult{
				{Err: map[string]any{"InstructionError": []any{0, "Custom"}}},
			},
		}, nil
	}

	t.Run("execution logs map to an actionable message", func(t *testing.T) {
		wallet := newFakeWallet()
		mock := &mockRPCClient{
			genesisHash: DevnetGenesisHash,
			statusFn:    failingStatus,
			txFn: func(solana.Signature) (*rpc.GetTransactionResult, error) {
				return &rpc.GetTransactionResult{
					Meta: &rpc.TransactionMeta{
						LogMessages: []string{
							"Program log: Instruction: JoinPool",
							"Program log: AnchorError occurred. Error Code: ConfigMismatch. Error Number: 6003. Error Message: hash mismatch.",
						},
					},
				}, nil
			},
		}

		_, err := newTestSubmitter(mock).Submit(context.Background(), wallet, testInstructions(wallet.PublicKey()))
		var txErr *TransactionFailedError
		require.ErrorAs(t, err, &txErr)
		require.NotNil(t, txErr.Program)
		assert.Equal(t, 6003, txErr.Program.Code)
		assert.Contains(t, err.Error(), "configuration hash mismatch")
	})

	t.Run("unfetchable logs still fail terminally", func(t *testing.T) {
		wallet := newFakeWallet()
		mock := &mockRPCClient{
			genesisHash: DevnetGenesisHash,
			statusFn:    failingStatus,
		}

		_, err := newTestSubmitter(mock).Submit(context.Background(), wallet, testInstructions(wallet.PublicKey()))
		var txErr *TransactionFailedError
		require.ErrorAs(t, err, &txErr)
		assert.Nil(t, txErr.Program)
	})
}
