package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/lotpool/lotpool/service/metrics"
)

// Wallet signs transactions it is shown. Implementations range from a local
// keypair to a remote signing service; the submitter only ever asks for a
// signature over a fully built transaction.
type Wallet interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// WalletSender is an optional capability: a wallet that submits the signed
// transaction itself and returns the signature. When a wallet implements it,
// the submitter delegates the send instead of using its own RPC connection.
type WalletSender interface {
	Wallet
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// ErrorClass is the structured classification of a failed signing or
// submission step.
type ErrorClass int

const (
	// ClassUnknown is terminal: an error we cannot attribute to user intent
	// or transport is not retried.
	ClassUnknown ErrorClass = iota
	// ClassCancelled means the signer declined. Terminal.
	ClassCancelled
	// ClassFlakyTransport means the failure looks like a transient
	// connection problem between us and the signer or RPC node. Retryable.
	ClassFlakyTransport
)

func (c ErrorClass) String() string {
	switch c {
	case ClassCancelled:
		return "cancelled"
	case ClassFlakyTransport:
		return "flaky_transport"
	default:
		return "unknown"
	}
}

// cancelMarkers and transportMarkers are the substring heuristics for
// classifying wallet errors. They live in this one function so the matching
// is auditable in a single place.
var (
	cancelMarkers = []string{
		"user rejected",
		"user denied",
		"rejected the request",
		"approval denied",
		"declined by user",
	}
	transportMarkers = []string{
		"websocket",
		"connection reset",
		"connection refused",
		"broken pipe",
		"timeout",
		"timed out",
		"network error",
		"disconnected",
		"429",
		"temporarily unavailable",
	}
)

// ClassifyWalletError assigns an error from a signer or send path to an
// ErrorClass. Unrecognized errors are ClassUnknown and therefore terminal.
func ClassifyWalletError(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, m := range cancelMarkers {
		if strings.Contains(msg, m) {
			return ClassCancelled
		}
	}
	for _, m := range transportMarkers {
		if strings.Contains(msg, m) {
			return ClassFlakyTransport
		}
	}
	return ClassUnknown
}

// RetryPolicy decides whether a failed attempt is retried and after what
// delay. Decide is pure: it performs no sleeping and no I/O, which keeps the
// policy unit-testable without clocks.
type RetryPolicy struct {
	MaxAttempts       int
	SimulationBackoff time.Duration
	WalletSettleDelay time.Duration
}

// DefaultRetryPolicy matches observed wallet and RPC behavior: three
// attempts, a short pause before re-simulating, and a settle delay after a
// transport drop so a reconnecting signer is not hammered.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:       3,
	SimulationBackoff: 300 * time.Millisecond,
	WalletSettleDelay: 500 * time.Millisecond,
}

// FailureKind names the step that failed for retry purposes.
type FailureKind int

const (
	FailureSimulation FailureKind = iota
	FailureSigning
	FailureSend
	FailureExpired
)

// Decide returns (delay, true) when attempt (1-based) should be retried
// after delay, or (0, false) when the failure is terminal.
func (p RetryPolicy) Decide(attempt int, kind FailureKind, class ErrorClass) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	switch kind {
	case FailureSimulation:
		return p.SimulationBackoff, true
	case FailureExpired:
		// A fresh blockhash is fetched on the next attempt anyway.
		return 0, true
	case FailureSigning, FailureSend:
		switch class {
		case ClassFlakyTransport:
			return p.WalletSettleDelay, true
		default:
			// Cancellation and unknown errors are terminal. Retrying an
			// unknown failure risks a duplicate spend.
			return 0, false
		}
	}
	return 0, false
}

// Terminal submission errors.
var (
	ErrSigningCancelled = errors.New("signer declined the transaction")
	ErrBlockhashExpired = errors.New("transaction blockhash expired before confirmation")
)

// TransactionFailedError is a transaction that landed on chain and failed in
// execution. It is terminal; the chain has recorded the failure. Program is
// set when the execution logs yielded a recognizable error code.
type TransactionFailedError struct {
	Signature solana.Signature
	TxErr     any
	Program   *ProgramError
}

func (e *TransactionFailedError) Error() string {
	if e.Program != nil {
		return fmt.Sprintf("transaction %s failed on chain: %v", e.Signature, e.Program)
	}
	return fmt.Sprintf("transaction %s failed on chain: %v", e.Signature, e.TxErr)
}

func (e *TransactionFailedError) Unwrap() error {
	if e.Program == nil {
		return nil
	}
	return e.Program
}

// Submitter drives the build, simulate, sign, send, confirm pipeline for a
// single transaction. Each attempt uses a fresh blockhash; a stale one is
// never reused.
type Submitter struct {
	client         *Client
	policy         RetryPolicy
	priorityFee    uint64 // micro-lamports per compute unit, 0 disables
	confirmTimeout time.Duration
	confirmPoll    time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewSubmitter creates a Submitter over an existing client. If m is nil, no
// metrics are recorded.
func NewSubmitter(client *Client, policy RetryPolicy, priorityFeeMicroLamports uint64, m *metrics.Metrics, logger *slog.Logger) *Submitter {
	return &Submitter{
		client:         client,
		policy:         policy,
		priorityFee:    priorityFeeMicroLamports,
		confirmTimeout: 60 * time.Second,
		confirmPoll:    2 * time.Second,
		logger:         logger,
		metrics:        m,
	}
}

// Submit runs the full pipeline for the given instructions, paying fees from
// the wallet's key. It returns the finalized signature or a terminal error.
func (s *Submitter) Submit(ctx context.Context, wallet Wallet, instructions []solana.Instruction) (solana.Signature, error) {
	if err := s.client.VerifyNetwork(ctx); err != nil {
		return solana.Signature{}, err
	}

	ixs := instructions
	if s.priorityFee > 0 {
		ixs = append([]solana.Instruction{NewPriorityFeeInstruction(s.priorityFee)}, instructions...)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		sig, err := s.attempt(ctx, wallet, ixs)
		if err == nil {
			s.recordSubmission("success", attempt)
			return sig, nil
		}
		lastErr = err

		kind, class := classifyAttemptFailure(err)
		delay, retry := s.policy.Decide(attempt, kind, class)
		s.logger.WarnContext(ctx, "transaction attempt failed",
			"attempt", attempt,
			"max_attempts", s.policy.MaxAttempts,
			"failure", kind,
			"class", class.String(),
			"retry", retry,
			"error", err,
		)
		if !retry {
			s.recordSubmission("error", attempt)
			return solana.Signature{}, lastErr
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return solana.Signature{}, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

// attempt performs one full build/simulate/sign/send/confirm cycle.
func (s *Submitter) attempt(ctx context.Context, wallet Wallet, ixs []solana.Instruction) (solana.Signature, error) {
	blockhash, _, err := s.client.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", errSendFailed, err)
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(wallet.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	if err := s.client.Simulate(ctx, tx); err != nil {
		var simErr *SimulationError
		if errors.As(err, &simErr) {
			// The program evaluated the transaction and rejected it. The
			// same bytes fail the same way on resubmission, so this is
			// terminal whether or not the logs yield a known error code.
			if mapped := mapProgramError(simErr); mapped != nil {
				return solana.Signature{}, mapped
			}
			return solana.Signature{}, simErr
		}
		return solana.Signature{}, fmt.Errorf("%w: %v", errSimulateFailed, err)
	}

	if err := wallet.SignTransaction(ctx, tx); err != nil {
		if ClassifyWalletError(err) == ClassCancelled {
			return solana.Signature{}, fmt.Errorf("%w: %v", ErrSigningCancelled, err)
		}
		return solana.Signature{}, fmt.Errorf("%w: %v", errSignFailed, err)
	}

	var sig solana.Signature
	if sender, ok := wallet.(WalletSender); ok {
		sig, err = sender.SendTransaction(ctx, tx)
	} else {
		sig, err = s.client.Send(ctx, tx)
	}
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", errSendFailed, err)
	}

	if err := s.confirm(ctx, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// confirm polls signature status until the transaction is finalized, failed,
// or presumed expired.
func (s *Submitter) confirm(ctx context.Context, sig solana.Signature) error {
	deadline := time.Now().Add(s.confirmTimeout)
	for {
		status, err := s.client.GetSignatureStatus(ctx, sig)
		if err == nil && status != nil {
			if status.Err != nil {
				return s.failedOnChain(ctx, sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrBlockhashExpired, sig)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.confirmPoll):
		}
	}
}

// failedOnChain builds the terminal error for a transaction that landed and
// failed, fetching its execution logs so known program error codes surface
// as actionable messages instead of the raw status error.
func (s *Submitter) failedOnChain(ctx context.Context, sig solana.Signature, txErr any) error {
	failed := &TransactionFailedError{Signature: sig, TxErr: txErr}
	result, err := s.client.GetTransaction(ctx, sig)
	if err != nil || result == nil || result.Meta == nil {
		if err != nil {
			s.logger.WarnContext(ctx, "could not fetch logs for failed transaction",
				"signature", sig.String(),
				"error", err,
			)
		}
		return failed
	}
	failed.Program = mapLogError(result.Meta.LogMessages)
	return failed
}

func (s *Submitter) recordSubmission(status string, attempts int) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSubmission(status, attempts)
}

// Internal failure markers used to route errors back through the retry
// policy.
var (
	errSimulateFailed = errors.New("simulation step failed")
	errSignFailed     = errors.New("signing step failed")
	errSendFailed     = errors.New("send step failed")
)

func classifyAttemptFailure(err error) (FailureKind, ErrorClass) {
	switch {
	case errors.Is(err, ErrSigningCancelled):
		return FailureSigning, ClassCancelled
	case errors.Is(err, ErrBlockhashExpired):
		return FailureExpired, ClassFlakyTransport
	case errors.Is(err, errSimulateFailed):
		return FailureSimulation, ClassUnknown
	case errors.Is(err, errSignFailed):
		return FailureSigning, ClassifyWalletError(err)
	case errors.Is(err, errSendFailed):
		return FailureSend, ClassifyWalletError(err)
	default:
		// Program errors, on-chain failures, build failures: terminal.
		return FailureSigning, ClassUnknown
	}
}

// ProgramError is a simulation failure with a recognized program error code,
// carrying a message a caller can surface directly.
type ProgramError struct {
	Code    int
	Message string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("program error %d: %s", e.Code, e.Message)
}

// programErrorMessages maps error codes seen in simulation logs to
// actionable messages. Anchor framework codes sit alongside pool program
// codes.
var programErrorMessages = map[int]string{
	2006: "seeds constraint violated: derived address does not match",
	3012: "account not initialized: the token account for this mint does not exist yet",
	6000: "pool is not open for entries",
	6001: "pool is full",
	6002: "entry amount does not match the pool's fixed amount",
	6003: "pool configuration hash mismatch",
	6004: "already joined this pool",
	6005: "pool is paused",
	6006: "pool has not expired",
	6007: "nothing to refund for this address",
}

// mapProgramError extracts a custom program error code from simulation
// output and maps it to a ProgramError. Returns nil when no code is found so
// the caller falls back to the generic simulation failure path.
func mapProgramError(simErr *SimulationError) error {
	if pe := mapLogError(simErr.Logs); pe != nil {
		return pe
	}
	return nil
}

// mapLogError scans execution logs for an error code line and maps it to a
// ProgramError, or nil when the logs carry none.
func mapLogError(logs []string) *ProgramError {
	for _, line := range logs {
		if idx := strings.Index(line, "Error Number: "); idx >= 0 {
			rest := line[idx+len("Error Number: "):]
			code := 0
			for _, ch := range rest {
				if ch < '0' || ch > '9' {
					break
				}
				code = code*10 + int(ch-'0')
			}
			if msg, ok := programErrorMessages[code]; ok {
				return &ProgramError{Code: code, Message: msg}
			}
			return &ProgramError{Code: code, Message: "program rejected the transaction"}
		}
	}
	return nil
}
