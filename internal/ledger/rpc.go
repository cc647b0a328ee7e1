package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RPC error codes returned by the ledger node. Codes outside this set are
// treated as transient and retried.
const (
	rpcCodeInsufficientFunds = -32001
	rpcCodeInvalidParams     = -32602
	rpcCodeNotFound          = -32004
)

// RPCConfig tunes the RPC client's timeout and retry behaviour.
type RPCConfig struct {
	CallTimeout time.Duration // per-attempt HTTP timeout
	MaxAttempts int           // total attempts for transient failures
	BaseBackoff time.Duration // first retry delay; doubles each attempt
}

// RPCClient talks JSON-RPC 2.0 to a ledger node over HTTP.
type RPCClient struct {
	endpoint string
	http     *http.Client
	cfg      RPCConfig
	logger   *zap.Logger
}

// NewRPCClient creates an RPCClient targeting endpoint.
func NewRPCClient(endpoint string, cfg RPCConfig, logger *zap.Logger) *RPCClient {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = 250 * time.Millisecond
	}
	return &RPCClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: cfg.CallTimeout},
		cfg:      cfg,
		logger:   logger,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Anchor implements Client. Transient failures (network errors, 5xx,
// unrecognised RPC codes) are retried with exponential backoff up to the
// configured attempt budget; InsufficientFunds and InvalidParams fail
// immediately and permanently.
func (c *RPCClient) Anchor(ctx context.Context, contentAddress, subject string) (*Receipt, error) {
	params := map[string]string{
		"content_address": contentAddress,
		"subject":         subject,
	}

	var receipt Receipt
	if err := c.callWithRetry(ctx, "cred_anchor", params, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Resolve implements Client.
func (c *RPCClient) Resolve(ctx context.Context, txRef string) (*Receipt, error) {
	var receipt Receipt
	if err := c.callWithRetry(ctx, "cred_getReceipt", map[string]string{"tx_ref": txRef}, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Height implements Client.
func (c *RPCClient) Height(ctx context.Context) (uint64, error) {
	var result struct {
		Height uint64 `json:"height"`
	}
	if err := c.callWithRetry(ctx, "cred_blockHeight", map[string]string{}, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}

// callWithRetry runs one RPC method with the transient-failure retry loop.
// Permanent errors and context cancellation break out immediately.
func (c *RPCClient) callWithRetry(ctx context.Context, method string, params, result any) error {
	backoff := c.cfg.BaseBackoff

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.call(ctx, method, params, result)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err

		c.logger.Warn("ledger RPC transient failure",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return fmt.Errorf("%w: %s after %d attempts: %v", ErrUnavailable, method, c.cfg.MaxAttempts, lastErr)
}

// call performs a single JSON-RPC round trip.
func (c *RPCClient) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &transientError{fmt.Errorf("rpc %s: %w", method, err)}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 500 {
		return &transientError{fmt.Errorf("rpc %s: node returned HTTP %d", method, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: node returned HTTP %d", method, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &transientError{fmt.Errorf("read rpc response: %w", err)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}

	if rpcResp.Error != nil {
		switch rpcResp.Error.Code {
		case rpcCodeInsufficientFunds:
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, rpcResp.Error.Message)
		case rpcCodeInvalidParams:
			return fmt.Errorf("%w: %s", ErrInvalidParams, rpcResp.Error.Message)
		case rpcCodeNotFound:
			return ErrReceiptNotFound
		default:
			return &transientError{fmt.Errorf("rpc %s: node error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)}
		}
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("decode rpc result: %w", err)
	}
	return nil
}

// transientError marks failures eligible for retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
