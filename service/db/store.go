package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Sentinel errors surfaced to handlers.
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransactionUsed is returned when a signature has already been
	// consumed by a previous claim. The unique index on used_transactions is
	// the source of truth; concurrent claims for the same signature
	// linearize on it.
	ErrTransactionUsed = errors.New("transaction signature already used")
)

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same store methods run standalone or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// EnsureSchema applies the embedded schema. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn against a store view bound to a single transaction and
// commits if fn returns nil. The replay-guard write and the projection write
// for one claim must go through the same call so they land atomically.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	if s.pool == nil {
		return errors.New("store is already transaction-bound")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Pool is the off-chain projection of an on-chain pool account.
type Pool struct {
	Address          string
	Network          string
	Mint             string
	Creator          string
	Status           string
	StatusByte       int16
	StatusReason     int16
	Amount           int64
	TotalAmount      int64
	MaxParticipants  int16
	ParticipantCount int16
	SchemaVersion    int16
	Winner           *string
	StartTime        *time.Time
	EndTime          *time.Time
	UnlockTime       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UpsertPoolParams carries a full projection of a pool's current on-chain
// state. Every upsert replaces the mutable columns; the projection always
// reflects the most recently verified chain state.
type UpsertPoolParams struct {
	Address          string
	Network          string
	Mint             string
	Creator          string
	Status           string
	StatusByte       int16
	StatusReason     int16
	Amount           int64
	TotalAmount      int64
	MaxParticipants  int16
	ParticipantCount int16
	SchemaVersion    int16
	Winner           *string
	StartTime        *time.Time
	EndTime          *time.Time
	UnlockTime       *time.Time
}

const poolColumns = `address, network, mint, creator, status, status_byte, status_reason,
	amount, total_amount, max_participants, participant_count, schema_version,
	winner, start_time, end_time, unlock_time, created_at, updated_at`

func scanPool(row pgx.Row) (*Pool, error) {
	var p Pool
	err := row.Scan(
		&p.Address, &p.Network, &p.Mint, &p.Creator, &p.Status, &p.StatusByte, &p.StatusReason,
		&p.Amount, &p.TotalAmount, &p.MaxParticipants, &p.ParticipantCount, &p.SchemaVersion,
		&p.Winner, &p.StartTime, &p.EndTime, &p.UnlockTime, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpsertPool inserts or updates a pool projection.
func (s *Store) UpsertPool(ctx context.Context, params UpsertPoolParams) (*Pool, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO pools (
			address, network, mint, creator, status, status_byte, status_reason,
			amount, total_amount, max_participants, participant_count, schema_version,
			winner, start_time, end_time, unlock_time
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (address) DO UPDATE SET
			status = EXCLUDED.status,
			status_byte = EXCLUDED.status_byte,
			status_reason = EXCLUDED.status_reason,
			total_amount = EXCLUDED.total_amount,
			participant_count = EXCLUDED.participant_count,
			schema_version = EXCLUDED.schema_version,
			winner = EXCLUDED.winner,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			unlock_time = EXCLUDED.unlock_time,
			updated_at = now()
		RETURNING `+poolColumns,
		params.Address, params.Network, params.Mint, params.Creator,
		params.Status, params.StatusByte, params.StatusReason,
		params.Amount, params.TotalAmount, params.MaxParticipants,
		params.ParticipantCount, params.SchemaVersion,
		params.Winner, params.StartTime, params.EndTime, params.UnlockTime,
	)
	return scanPool(row)
}

// GetPool retrieves a pool projection by address.
func (s *Store) GetPool(ctx context.Context, address string) (*Pool, error) {
	row := s.db.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE address = $1`, address)
	return scanPool(row)
}

// ListPoolsParams filters and paginates pool listings. Status empty means
// all statuses.
type ListPoolsParams struct {
	Status string
	Limit  int32
	Offset int32
}

// ListPools returns pool projections newest first.
func (s *Store) ListPools(ctx context.Context, params ListPoolsParams) ([]*Pool, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if params.Status != "" {
		rows, err = s.db.Query(ctx, `
			SELECT `+poolColumns+` FROM pools
			WHERE status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			params.Status, limit, params.Offset)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+poolColumns+` FROM pools
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, params.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPools(rows)
}

// ListActivePools returns pools whose status is not terminal, for the
// reconciler to drive forward.
func (s *Store) ListActivePools(ctx context.Context) ([]*Pool, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+poolColumns+` FROM pools
		WHERE status NOT IN ('ended', 'cancelled')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPools(rows)
}

func collectPools(rows pgx.Rows) ([]*Pool, error) {
	var pools []*Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// Participant is a verified entry in a pool.
type Participant struct {
	PoolAddress string
	Address     string
	Signature   string
	Slot        int64
	JoinedAt    time.Time
}

// AddParticipantParams records a verified join.
type AddParticipantParams struct {
	PoolAddress string
	Address     string
	Signature   string
	Slot        int64
}

// AddParticipant inserts a participant row. Re-inserting the same
// (pool, address) pair is a no-op; the on-chain program already enforces
// one entry per address.
func (s *Store) AddParticipant(ctx context.Context, params AddParticipantParams) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO participants (pool_address, address, signature, slot)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pool_address, address) DO NOTHING`,
		params.PoolAddress, params.Address, params.Signature, params.Slot,
	)
	return err
}

// ListParticipants returns a pool's participants in join order.
func (s *Store) ListParticipants(ctx context.Context, poolAddress string) ([]*Participant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT pool_address, address, signature, slot, joined_at
		FROM participants
		WHERE pool_address = $1
		ORDER BY joined_at ASC`, poolAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.PoolAddress, &p.Address, &p.Signature, &p.Slot, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// MarkTransactionUsedParams identifies the signature being consumed and what
// it was consumed for.
type MarkTransactionUsedParams struct {
	Signature   string
	Operation   string
	PoolAddress string
	Actor       string
	Slot        int64
}

// MarkTransactionUsed consumes a signature. Returns ErrTransactionUsed if
// the signature was consumed before. Call it inside WithTx together with
// the projection write the signature justifies.
func (s *Store) MarkTransactionUsed(ctx context.Context, params MarkTransactionUsedParams) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO used_transactions (signature, operation, pool_address, actor, slot)
		VALUES ($1, $2, $3, $4, $5)`,
		params.Signature, params.Operation, params.PoolAddress, params.Actor, params.Slot,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrTransactionUsed, params.Signature)
		}
		return err
	}
	return nil
}

// IsTransactionUsed reports whether a signature has been consumed. Advisory
// only; MarkTransactionUsed inside the claim transaction is what actually
// prevents replays.
func (s *Store) IsTransactionUsed(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM used_transactions WHERE signature = $1)`,
		signature,
	).Scan(&exists)
	return exists, err
}

// UsedTransaction is a consumed signature row.
type UsedTransaction struct {
	Signature   string
	Operation   string
	PoolAddress string
	Actor       string
	Slot        int64
	UsedAt      time.Time
}

// ListUsedTransactions returns consumed signatures, newest first. An empty
// poolAddress lists across all pools.
func (s *Store) ListUsedTransactions(ctx context.Context, poolAddress string, limit int32) ([]*UsedTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT signature, operation, pool_address, actor, slot, used_at
		FROM used_transactions`
	args := []interface{}{}
	if poolAddress != "" {
		query += ` WHERE pool_address = $1`
		args = append(args, poolAddress)
	}
	query += fmt.Sprintf(` ORDER BY used_at DESC LIMIT %d`, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UsedTransaction
	for rows.Next() {
		var t UsedTransaction
		if err := rows.Scan(&t.Signature, &t.Operation, &t.PoolAddress, &t.Actor, &t.Slot, &t.UsedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
