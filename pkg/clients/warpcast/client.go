package warpcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Layr-Labs/farbook-go/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	signerRequestStatusPath = "/v2/signer-request"

	// maxResponseBytes bounds how much of a response body is read
	maxResponseBytes = 1 << 20
)

// ErrEmptyToken is returned when the signer request API answers without a token
var ErrEmptyToken = fmt.Errorf("signer request response did not contain a token")

// ISignerRequestClient creates signer requests
type ISignerRequestClient interface {
	CreateSignerRequest(ctx context.Context, publicKeyHex string, name string) (*types.SignerRequest, error)
}

// IApprovalClient reads the approval status of a signer request
type IApprovalClient interface {
	GetSignerRequestStatus(ctx context.Context, token string) (*types.SignerRequestStatusResponse, error)
}

// ClientConfig holds the configuration for the Warpcast client
type ClientConfig struct {
	// SignerRequestURL is the full URL of the signer request endpoint (POST)
	SignerRequestURL string
	// APIBaseURL is the Warpcast API root, e.g. https://api.warpcast.com
	APIBaseURL string
	// Timeout bounds each request. Zero means no timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the signer request API and the Warpcast approval API
type Client struct {
	signerRequestURL string
	apiBaseURL       string
	httpClient       *http.Client
	logger           *zap.Logger
}

// NewClient creates a new Warpcast client instance
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.SignerRequestURL == "" {
		return nil, fmt.Errorf("signer request URL is required")
	}
	if config.APIBaseURL == "" {
		return nil, fmt.Errorf("API base URL is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		signerRequestURL: config.SignerRequestURL,
		apiBaseURL:       strings.TrimRight(config.APIBaseURL, "/"),
		httpClient:       httpClient,
		logger:           config.Logger,
	}, nil
}

// CreateSignerRequest registers the public key with the signer request API and returns
// the token the companion app will be asked to approve
func (c *Client) CreateSignerRequest(ctx context.Context, publicKeyHex string, name string) (*types.SignerRequest, error) {
	body, err := json.Marshal(&types.SignerRequestCreateRequest{
		PublicKey: publicKeyHex,
		Name:      name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.signerRequestURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build signer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res types.SignerRequestCreateResponse
	if err := c.doJSON(req, &res); err != nil {
		return nil, errors.Wrapf(err, "signer request to %s failed", c.signerRequestURL)
	}

	c.logger.Sugar().Debugw("Signer request response", "has_result", res.Result != nil)

	if res.Result == nil || res.Result.Token == "" {
		return nil, ErrEmptyToken
	}
	return &types.SignerRequest{Token: res.Result.Token}, nil
}

// GetSignerRequestStatus fetches the current state of a signer request by token
func (c *Client) GetSignerRequestStatus(ctx context.Context, token string) (*types.SignerRequestStatusResponse, error) {
	u := fmt.Sprintf("%s%s?token=%s", c.apiBaseURL, signerRequestStatusPath, url.QueryEscape(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	var res types.SignerRequestStatusResponse
	if err := c.doJSON(req, &res); err != nil {
		return nil, errors.Wrapf(err, "signer request status poll failed")
	}
	return &res, nil
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 256))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
