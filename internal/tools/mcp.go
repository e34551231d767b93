package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      any             `json:"id"`
}

// RPCError is an error object returned by an MCP tool server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// callResult is the result object of a tools/call response.
type callResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

// Client invokes tools on an MCP server with JSON-RPC 2.0 over HTTP.
type Client struct {
	http       *http.Client
	apiKey     string
	maxRetries int
}

// NewClient creates an MCP client. A nil httpClient gets one with the
// given timeout.
func NewClient(httpClient *http.Client, apiKey string, timeout time.Duration, maxRetries int) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{http: httpClient, apiKey: apiKey, maxRetries: maxRetries}
}

// CallTool sends tools/call to endpoint and returns the concatenated text
// content. Transport failures and 5xx responses are retried; 4xx responses
// and JSON-RPC errors are not. A result flagged isError is returned as an
// error carrying the tool's text.
func (c *Client) CallTool(ctx context.Context, endpoint, name string, args map[string]any) (string, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  map[string]any{"name": name, "arguments": args},
		ID:      uuid.New().String(),
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var raw []byte
	op := func() error {
		raw, err = c.post(ctx, endpoint, body)
		return err
	}
	notify := func(err error, d time.Duration) {
		log.Warn().Err(err).Str("tool", name).Dur("retry_in", d).Msg("MCP tool call failed, retrying")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return "", err
	}

	return decodeResult(raw)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("tool request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("tool server returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(fmt.Errorf("tool server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
	return data, nil
}

func decodeResult(raw []byte) (string, error) {
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		// Not JSON-RPC; treat the body as plain text.
		return string(raw), nil
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	if len(resp.Result) == 0 {
		return string(raw), nil
	}

	var result callResult
	if err := json.Unmarshal(resp.Result, &result); err != nil || len(result.Content) == 0 {
		return string(resp.Result), nil
	}

	var b strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	if result.IsError {
		return "", errors.New(b.String())
	}
	return b.String(), nil
}
