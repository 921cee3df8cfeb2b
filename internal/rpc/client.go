// Package rpc implements the Bitcoin Core JSON-RPC fetcher.
//
// A Client issues one diagnostic call at a time, bounds it with the
// configured timeout, and maps every possible failure into a classified
// Outcome instead of returning raw transport errors to the scheduler.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"rpcextractor/internal/config"
	logx "rpcextractor/pkg/logx"
)

// requestID tags every JSON-RPC request so responses are attributable in
// bitcoind's debug log.
const requestID = "rpcextractor"

type Client struct {
	url     string
	user    string
	pass    string
	timeout time.Duration
	httpc   *http.Client
	log     logx.Logger
}

// New builds the client and resolves credentials once. A cookie file is
// read at construction; rotating cookies require a restart, matching the
// immutable-after-startup config model.
func New(cfg config.RPCConfig, log logx.Logger) (*Client, error) {
	user := strings.TrimSpace(cfg.User)
	pass := cfg.Password

	if cookie := strings.TrimSpace(cfg.CookieFile); cookie != "" {
		var err error
		user, pass, err = readCookie(cookie)
		if err != nil {
			return nil, fmt.Errorf("rpc cookie: %w", err)
		}
	}

	timeout := cfg.TimeoutDuration()
	return &Client{
		url:     "http://" + strings.TrimSpace(cfg.Address) + "/",
		user:    user,
		pass:    pass,
		timeout: timeout,
		// The per-call ctx bounds the whole call; the client itself has no
		// second timeout so classification stays unambiguous.
		httpc: &http.Client{},
		log:   log,
	}, nil
}

// Timeout returns the per-call bound; it also caps how long the scheduler
// waits for in-flight calls during shutdown.
func (c *Client) Timeout() time.Duration { return c.timeout }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Fetch performs one call and classifies the result. It never returns a raw
// error; everything the transport or the node can do wrong ends up as an
// Outcome with a FailKind.
func (c *Client) Fetch(ctx context.Context, method string) Outcome {
	start := time.Now()
	out := Outcome{Method: method}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: requestID, Method: method, Params: []any{}})
	if err != nil {
		// Method names are static strings; this cannot happen in practice.
		return c.fail(out, start, FailDecode, err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return c.fail(out, start, FailNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return c.fail(out, start, classifyTransport(err), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(out, start, classifyTransport(err), err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return c.fail(out, start, FailAuth, fmt.Errorf("authentication rejected (HTTP %d)", resp.StatusCode))
	}

	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return c.fail(out, start, FailDecode, fmt.Errorf("malformed response (HTTP %d): %w", resp.StatusCode, err))
	}
	if parsed.Error != nil {
		return c.fail(out, start, FailDecode, parsed.Error)
	}
	if len(parsed.Result) == 0 || string(parsed.Result) == "null" {
		return c.fail(out, start, FailDecode, errors.New("response carries no result"))
	}

	out.Payload = parsed.Result
	out.Elapsed = time.Since(start)
	c.log.Trace("rpc fetched",
		logx.String("method", method),
		logx.Duration("elapsed", out.Elapsed),
		logx.Int("bytes", len(out.Payload)),
	)
	return out
}

func (c *Client) fail(out Outcome, start time.Time, kind FailKind, err error) Outcome {
	out.Elapsed = time.Since(start)
	out.Kind = kind
	out.Err = err
	return out
}

func classifyTransport(err error) FailKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return FailTimeout
	}
	return FailNetwork
}

// readCookie parses a bitcoind .cookie file ("user:password", one line).
func readCookie(path string) (user, pass string, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	line := strings.TrimSpace(string(b))
	user, pass, ok := strings.Cut(line, ":")
	if !ok || user == "" {
		return "", "", fmt.Errorf("%s: expected user:password", path)
	}
	return user, pass, nil
}
