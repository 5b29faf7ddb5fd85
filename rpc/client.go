// Package rpc is a small JSON-RPC client used to relay blocks to peers.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// RPCRequest represents a JSON-RPC request.
type RPCRequest struct {
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
	Jsonrpc string        `json:"jsonrpc"`
}

// RPCResponse represents a generic JSON-RPC response.
type RPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     uint64          `json:"id"`
}

// RPCError represents an error returned by the RPC server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC Error - Code: %d, Message: %s", e.Code, e.Message)
}

// Client is a JSON-RPC client for a peer node.
type Client struct {
	httpClient *http.Client
	endpoint   string
	username   string
	password   string
	nextID     atomic.Uint64
}

// NewClient creates a client for endpoint, a full URL such as
// http://127.0.0.1:7439. A nil httpClient gets a 30 second timeout.
func NewClient(endpoint, username, password string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		username:   username,
		password:   password,
	}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call performs a JSON-RPC call.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (*RPCResponse, error) {
	if params == nil {
		params = []interface{}{}
	}
	request := RPCRequest{
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
		Jsonrpc: "2.0",
	}

	jsonReq, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonReq))
	if err != nil {
		return nil, err
	}

	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s to %s failed: %w", method, c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rpcResp RPCResponse
	err = json.Unmarshal(body, &rpcResp)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal RPC response (status %d): %s", resp.StatusCode, body)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return &rpcResp, nil
}
