// Package httpvenue adapts a remote swap venue exposed over HTTP to the
// RouteAdapter interface. The venue API is two endpoints: GET /quote prices
// a trade, POST /execute settles it.
package httpvenue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sincore/aggregator/internal/domain"
)

// Client is the REST client for one remote venue.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a venue client. baseURL is the API root, e.g.
// "https://venue.example.com/api/v1". apiKey may be empty for venues without
// authentication.
func NewClient(name, baseURL, apiKey string) *Client {
	return &Client{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetHTTPClient replaces the underlying HTTP client. Useful for tests and
// custom transports.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Name returns the venue name this client was configured with.
func (c *Client) Name() string {
	return c.name
}

type executeRequest struct {
	SrcAsset  string `json:"src_asset"`
	DestAsset string `json:"dest_asset"`
	AmountIn  string `json:"amount_in"`
}

type swapResponse struct {
	AmountOut string `json:"amount_out"`
}

// Quote prices the trade on the remote venue without settling it.
func (c *Client) Quote(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int) (*big.Int, error) {
	params := url.Values{}
	params.Set("src", srcAsset.Hex())
	params.Set("dest", destAsset.Hex())
	params.Set("amount", amountIn.String())

	body, err := c.doRequest(ctx, http.MethodGet, "/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("httpvenue: %s quote: %w", c.name, err)
	}
	return c.decodeAmount(body, "quote")
}

// Execute settles the trade on the remote venue and returns the amount the
// venue paid out.
func (c *Client) Execute(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int) (*big.Int, error) {
	req := executeRequest{
		SrcAsset:  srcAsset.Hex(),
		DestAsset: destAsset.Hex(),
		AmountIn:  amountIn.String(),
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/execute", req)
	if err != nil {
		return nil, fmt.Errorf("httpvenue: %s execute: %w", c.name, err)
	}
	return c.decodeAmount(body, "execute")
}

func (c *Client) decodeAmount(body []byte, op string) (*big.Int, error) {
	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("httpvenue: %s decode %s: %w", c.name, op, err)
	}
	out, ok := new(big.Int).SetString(resp.AmountOut, 10)
	if !ok {
		return nil, fmt.Errorf("httpvenue: %s %s: bad amount %q", c.name, op, resp.AmountOut)
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ domain.RouteAdapter = (*Client)(nil)
