package billingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Client calls the billing service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a billing service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Entitlement is the billing state tied to a one-time purchase token.
type Entitlement struct {
	MemberID string `json:"memberId"`
	Premium  bool   `json:"premium"`
}

// Redeem verifies a one-time purchase token and returns the entitlement
// it grants. Tokens are single use on the billing side.
func (c *Client) Redeem(ctx context.Context, token string) (Entitlement, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return Entitlement{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/billing/redeem", bytes.NewReader(body))
	if err != nil {
		return Entitlement{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Entitlement{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Entitlement{}, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	var out Entitlement
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Entitlement{}, err
	}
	return out, nil
}

// APIError represents a billing service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}
