package identityclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Client calls the identity provider over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs an identity service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// TokenResponse is the identity provider's code-exchange result.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// Exchange trades an OAuth authorization code for a member access token.
func (c *Client) Exchange(ctx context.Context, code string) (TokenResponse, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return TokenResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/exchange", bytes.NewReader(body))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return TokenResponse{}, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	var out TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TokenResponse{}, err
	}
	return out, nil
}

// APIError represents an identity service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}
