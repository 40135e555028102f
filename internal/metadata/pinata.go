// Package metadata uploads token metadata documents to IPFS via Pinata.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Uploader stores a JSON document and returns a public URI for it.
type Uploader interface {
	UploadJSON(ctx context.Context, v interface{}) (string, error)
}

// TokenMetadata is the off-chain metadata document referenced by the
// on-chain metadata account.
type TokenMetadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Website     string `json:"website,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
	Telegram    string `json:"telegram,omitempty"`
}

// UploadError wraps a failed upload with its HTTP status if any.
type UploadError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("metadata upload: %v", e.Err)
	}
	return fmt.Sprintf("metadata upload: status %d: %s", e.StatusCode, e.Body)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// DefaultGateway serves pinned content when no dedicated gateway is configured.
const DefaultGateway = "https://gateway.pinata.cloud"

const pinEndpoint = "https://api.pinata.cloud/pinning/pinJSONToIPFS"

// PinataClient implements Uploader against the Pinata pinning API.
type PinataClient struct {
	jwt      string
	gateway  string
	endpoint string
	client   *http.Client
}

var _ Uploader = (*PinataClient)(nil)

// NewPinataClient creates a Pinata uploader. An empty gateway falls back to
// the public Pinata gateway.
func NewPinataClient(jwt, gateway string) *PinataClient {
	if gateway == "" {
		gateway = DefaultGateway
	}
	return &PinataClient{
		jwt:      jwt,
		gateway:  strings.TrimRight(gateway, "/"),
		endpoint: pinEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type pinRequest struct {
	PinataContent interface{} `json:"pinataContent"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// UploadJSON pins the document and returns its gateway URI.
func (c *PinataClient) UploadJSON(ctx context.Context, v interface{}) (string, error) {
	body, err := json.Marshal(pinRequest{PinataContent: v})
	if err != nil {
		return "", &UploadError{Err: fmt.Errorf("marshal content: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &UploadError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.jwt)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UploadError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &UploadError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var pinned pinResponse
	if err := json.Unmarshal(respBody, &pinned); err != nil {
		return "", &UploadError{Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if pinned.IpfsHash == "" {
		return "", &UploadError{Err: fmt.Errorf("empty IpfsHash in response")}
	}

	return c.gateway + "/ipfs/" + pinned.IpfsHash, nil
}
