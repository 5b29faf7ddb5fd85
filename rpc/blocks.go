package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SubmitBlock hands an encoded block to the peer. A null result means the
// peer took it; a string result is its rejection reason.
func (c *Client) SubmitBlock(ctx context.Context, block []byte) error {
	resp, err := c.Call(ctx, "submitblock", hex.EncodeToString(block))
	if err != nil {
		return err
	}

	var reason *string
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &reason); err != nil {
			return fmt.Errorf("unexpected submitblock result %s", resp.Result)
		}
	}
	if reason != nil && *reason != "" {
		return fmt.Errorf("block rejected by %s: %s", c.endpoint, *reason)
	}
	return nil
}

// GetBlockCount returns the height of the peer's tip.
func (c *Client) GetBlockCount(ctx context.Context) (uint64, error) {
	resp, err := c.Call(ctx, "getblockcount")
	if err != nil {
		return 0, err
	}
	var height uint64
	if err := json.Unmarshal(resp.Result, &height); err != nil {
		return 0, fmt.Errorf("unexpected getblockcount result %s", resp.Result)
	}
	return height, nil
}
