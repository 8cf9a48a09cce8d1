package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Pool is a pool projection as returned by the server.
type Pool struct {
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

// Participant is a recorded pool membership row.
type Participant struct {
	PoolAddress string    `json:"pool_address"`
	Address     string    `json:"address"`
	Signature   string    `json:"signature"`
	Slot        int64     `json:"slot"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Claim describes a finalized on-chain transaction the caller wants the
// server to verify and record. Amount is optional; when set the server checks
// it against the instruction's encoded amount.
type Claim struct {
	Signature string  `json:"signature"`
	Actor     string  `json:"actor"`
	Amount    *uint64 `json:"amount,omitempty"`
}

// ListPoolsOptions filters a pool listing. Zero values are omitted from the
// request.
type ListPoolsOptions struct {
	Status string
	Limit  int
	Offset int
}

// Client is the HTTP client for the lotpool service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new pool service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// RegisterPool reports a freshly created pool. The server verifies the
// creation signature against the chain before projecting the pool.
func (c *Client) RegisterPool(ctx context.Context, address, signature string) (*Pool, error) {
	reqBody := map[string]interface{}{
		"address":   address,
		"signature": signature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/pools", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var pool Pool
	if err := json.NewDecoder(resp.Body).Decode(&pool); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("pool registered", "pool", address, "signature", signature)
	return &pool, nil
}

// Join reports a finalized join_pool transaction.
func (c *Client) Join(ctx context.Context, pool string, claim Claim) (*Pool, error) {
	return c.postClaim(ctx, pool, "join", claim)
}

// Donate reports a finalized donate transaction.
func (c *Client) Donate(ctx context.Context, pool string, claim Claim) (*Pool, error) {
	return c.postClaim(ctx, pool, "donate", claim)
}

// Cancel reports a finalized cancel_pool transaction.
func (c *Client) Cancel(ctx context.Context, pool string, claim Claim) (*Pool, error) {
	return c.postClaim(ctx, pool, "cancel", claim)
}

// ClaimRefund reports a finalized claim_refund transaction.
func (c *Client) ClaimRefund(ctx context.Context, pool string, claim Claim) (*Pool, error) {
	return c.postClaim(ctx, pool, "claim-refund", claim)
}

// ClaimRent reports a finalized claim_rent transaction.
func (c *Client) ClaimRent(ctx context.Context, pool string, claim Claim) (*Pool, error) {
	return c.postClaim(ctx, pool, "claim-rent", claim)
}

func (c *Client) postClaim(ctx context.Context, pool, route string, claim Claim) (*Pool, error) {
	body, err := json.Marshal(claim)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/pools/%s/%s", c.baseURL, url.PathEscape(pool), route)
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var updated Pool
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("claim recorded", "pool", pool, "route", route, "actor", claim.Actor)
	return &updated, nil
}

// GetPool retrieves one pool projection.
func (c *Client) GetPool(ctx context.Context, address string) (*Pool, error) {
	u := fmt.Sprintf("%s/api/v1/pools/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var pool Pool
	if err := json.NewDecoder(resp.Body).Decode(&pool); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &pool, nil
}

// ListPools retrieves pool projections matching the given options.
func (c *Client) ListPools(ctx context.Context, opts ListPoolsOptions) ([]*Pool, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/pools")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Pools []*Pool `json:"pools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Pools, nil
}

// ListParticipants retrieves the recorded participants of a pool.
func (c *Client) ListParticipants(ctx context.Context, pool string) ([]*Participant, error) {
	u := fmt.Sprintf("%s/api/v1/pools/%s/participants", c.baseURL, url.PathEscape(pool))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Pool         string         `json:"pool"`
		Participants []*Participant `json:"participants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Participants, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
