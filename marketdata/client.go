// Package marketdata is the HTTP client for the remote market data provider.
package marketdata

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

	"github.com/rs/zerolog/log"

	"idx-flow/auth"
	"idx-flow/dates"
)

// Granularity selects the provider endpoint.
type Granularity string

const (
	Daily        Granularity = "daily"
	OrderBook    Granularity = "orderbook"
	Broker       Granularity = "broker"
	Transactions Granularity = "transactions"
)

// maxBody caps a single response body.
const maxBody = 64 << 20

// Fetcher returns the raw records for code in [start, end]. A nil slice with a nil
// error means the provider has no data for the window.
type Fetcher interface {
	Fetch(ctx context.Context, code string, start, end dates.Day, g Granularity) ([]json.RawMessage, error)
}

// Client calls GET {base}/{granularity}/{code}?start=&end=.
type Client struct {
	baseURL    string
	tokens     auth.TokenSource
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a client. timeout bounds each request.
func NewClient(baseURL string, tokens auth.TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		timeout: timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, code string, start, end dates.Day, g Granularity) ([]json.RawMessage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", g, code, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("start", start.String())
	q.Set("end", end.String())
	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, g, url.PathEscape(code), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", g, code, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", g, code, err)
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		log.Debug().Msgf("%s/%s answered %d", g, code, resp.StatusCode)
		return nil, &NotAvailableError{Code: code, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("fetch %s/%s failed with status %d: %s", g, code, resp.StatusCode, truncate(body, 200))
	}

	return DecodeEnvelope(code, body)
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// DecodeEnvelope accepts a bare array or {"data": [...]} and returns its elements.
// null, [] and {"data": null} all mean no data. {"error": ...} is a DataError.
func DecodeEnvelope(code string, body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || isNull(body) {
		return nil, nil
	}

	switch body[0] {
	case '[':
		return decodeArray(code, body)
	case '{':
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, &DataError{Code: code, Message: err.Error()}
		}
		if msg, failed := envelopeError(env); failed {
			return nil, &DataError{Code: code, Message: msg}
		}
		if len(env.Data) == 0 || isNull(env.Data) {
			return nil, nil
		}
		return decodeArray(code, env.Data)
	default:
		return nil, &DataError{Code: code, Message: fmt.Sprintf("unexpected payload %s", truncate(body, 40))}
	}
}

// envelopeError reads "error" as either a message string or a boolean flag.
func envelopeError(env envelope) (string, bool) {
	if len(env.Error) == 0 || isNull(env.Error) {
		return "", false
	}
	var flag bool
	if err := json.Unmarshal(env.Error, &flag); err == nil {
		return env.Message, flag
	}
	var msg string
	if err := json.Unmarshal(env.Error, &msg); err == nil {
		return msg, msg != ""
	}
	return string(env.Error), true
}

func decodeArray(code string, raw []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &DataError{Code: code, Message: err.Error()}
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}

func isNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
