package nats

import (
	"time"

	"github.com/lotpool/lotpool/service/db"
)

// PoolEvent represents a pool state change published to NATS.
// Events are published to the subject "pools.{pool_address}" in JetStream.
type PoolEvent struct {
	// Pool identifiers
	PoolAddress string `json:"pool_address"`
	Network     string `json:"network"`
	Mint        string `json:"mint"`

	// What happened
	Operation string `json:"operation"` // e.g. "join_pool", "payout_winner"
	Actor     string `json:"actor,omitempty"`
	Signature string `json:"signature,omitempty"`
	Slot      int64  `json:"slot,omitempty"`

	// Pool state after the change
	Status           string  `json:"status"`
	TotalAmount      int64   `json:"total_amount"`
	ParticipantCount int16   `json:"participant_count"`
	Winner           *string `json:"winner,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromPoolProjection builds a PoolEvent from the stored projection and the
// operation that changed it.
func FromPoolProjection(pool *db.Pool, operation, actor, signature string, slot int64) *PoolEvent {
	return &PoolEvent{
		PoolAddress:      pool.Address,
		Network:          pool.Network,
		Mint:             pool.Mint,
		Operation:        operation,
		Actor:            actor,
		Signature:        signature,
		Slot:             slot,
		Status:           pool.Status,
		TotalAmount:      pool.TotalAmount,
		ParticipantCount: pool.ParticipantCount,
		Winner:           pool.Winner,
		PublishedAt:      time.Now().UTC(),
	}
}
