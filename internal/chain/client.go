// Package chain fetches public seeds from an EOS-compatible chain API. The
// head block of a public chain is randomness nobody at the table controls,
// which is what makes the commit-reveal scheme auditable.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const getInfoPath = "/v1/chain/get_info"

// Client queries a chain API node for its current head block.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a client against the given chain API base URL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With().Str("component", "chain-client").Logger(),
	}
}

type getInfoResponse struct {
	HeadBlockID  string `json:"head_block_id"`
	HeadBlockNum int64  `json:"head_block_num"`
}

// Head returns the current head block id and number.
func (c *Client) Head(ctx context.Context) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+getInfoPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", 0, fmt.Errorf("build chain request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch chain info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("chain api returned status %d", resp.StatusCode)
	}

	var info getInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", 0, fmt.Errorf("decode chain info: %w", err)
	}
	if info.HeadBlockID == "" || info.HeadBlockNum <= 0 {
		return "", 0, fmt.Errorf("chain api returned empty head block")
	}

	c.logger.Debug().
		Str("block_id", info.HeadBlockID).
		Int64("block_num", info.HeadBlockNum).
		Msg("Fetched head block")

	return info.HeadBlockID, info.HeadBlockNum, nil
}
