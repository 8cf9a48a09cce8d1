package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"
	"unicode"

	sol "github.com/lotpool/lotpool/service/solana"

	"github.com/lotpool/lotpool/service/db"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for claim bodies
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxSignatureLength = 120     // base58 signatures are 87-88 chars
)

var (
	// Valid base58 characters (no 0, O, I, l)
	validBase58Regex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// validateAddress validates an account address for format and safety.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validBase58Regex.MatchString(address) {
		return errorf("invalid address: must be base58")
	}

	return nil
}

// validateSignature validates a transaction signature string.
func validateSignature(signature string) error {
	if signature == "" {
		return errorf("signature is required")
	}

	if len(signature) > maxSignatureLength {
		return errorf("signature too long: maximum length is %d characters", maxSignatureLength)
	}

	if !validBase58Regex.MatchString(signature) {
		return errorf("invalid signature: must be base58")
	}

	return nil
}

// poolResponse is the JSON shape of a pool projection.
type poolResponse struct {
	Address          string     `json:"address"`
	Network          string     `json:"network"`
	Mint             string     `json:"mint"`
	Creator          string     `json:"creator"`
	Status           string     `json:"status"`
	StatusByte       int16      `json:"status_byte"`
	StatusReason     int16      `json:"status_reason,omitempty"`
	Amount           int64      `json:"amount"`
	TotalAmount      int64      `json:"total_amount"`
	MaxParticipants  int16      `json:"max_participants"`
	ParticipantCount int16      `json:"participant_count"`
	SchemaVersion    int16      `json:"schema_version"`
	Winner           *string    `json:"winner,omitempty"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	UnlockTime       *time.Time `json:"unlock_time,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func poolToResponse(p *db.Pool) poolResponse {
	return poolResponse{
		Address:          p.Address,
		Network:          p.Network,
		Mint:             p.Mint,
		Creator:          p.Creator,
		Status:           p.Status,
		StatusByte:       p.StatusByte,
		StatusReason:     p.StatusReason,
		Amount:           p.Amount,
		TotalAmount:      p.TotalAmount,
		MaxParticipants:  p.MaxParticipants,
		ParticipantCount: p.ParticipantCount,
		SchemaVersion:    p.SchemaVersion,
		Winner:           p.Winner,
		StartTime:        p.StartTime,
		EndTime:          p.EndTime,
		UnlockTime:       p.UnlockTime,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// participantResponse is the JSON shape of a participant row.
type participantResponse struct {
	PoolAddress string    `json:"pool_address"`
	Address     string    `json:"address"`
	Signature   string    `json:"signature"`
	Slot        int64     `json:"slot"`
	JoinedAt    time.Time `json:"joined_at"`
}

func participantToResponse(p *db.Participant) participantResponse {
	return participantResponse{
		PoolAddress: p.PoolAddress,
		Address:     p.Address,
		Signature:   p.Signature,
		Slot:        p.Slot,
		JoinedAt:    p.JoinedAt,
	}
}

// unixToTimePtr converts a chain timestamp to *time.Time, treating zero as
// unset.
func unixToTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

// projectPool maps a decoded chain account onto the projection columns. The
// participant count comes from the participant list account, which is the
// authoritative membership record.
func projectPool(address string, account *sol.PoolAccount, network string, participantCount int) db.UpsertPoolParams {
	var winner *string
	if !account.Winner.IsZero() {
		w := account.Winner.String()
		winner = &w
	}

	return db.UpsertPoolParams{
		Address:          address,
		Network:          network,
		Mint:             account.Mint.String(),
		Creator:          account.Creator.String(),
		Status:           account.Status.String(),
		StatusByte:       int16(uint8(account.Status)),
		StatusReason:     int16(account.StatusReason),
		Amount:           int64(account.Amount),
		TotalAmount:      int64(account.TotalAmount),
		MaxParticipants:  int16(account.MaxParticipants),
		ParticipantCount: int16(participantCount),
		SchemaVersion:    int16(account.Schema),
		Winner:           winner,
		StartTime:        unixToTimePtr(account.StartTime),
		EndTime:          unixToTimePtr(account.EndTime),
		UnlockTime:       unixToTimePtr(account.UnlockTime),
	}
}
