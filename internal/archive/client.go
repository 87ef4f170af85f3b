package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/metrics"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
	"github.com/chainflip-io/chainflip-backend-sub000/pkg/config"
	"github.com/ethereum/go-ethereum/common"
)

// Client talks to the chain archive query service over HTTP JSON. It serves
// three concerns: batched block fetches for the ingester, environment state
// reads at historical block hashes, and best-effort pending-activity probes
// for the status read path.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *config.RetryConfig
	logger     *logger.Logger
}

// NewClient creates an archive client. retryCfg may be nil to disable retries.
func NewClient(baseURL string, retryCfg *config.RetryConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retryCfg,
		logger:     log,
	}
}

type blocksRequest struct {
	MinHeight  uint64   `json:"minHeight"`
	Limit      uint64   `json:"limit"`
	EventNames []string `json:"eventNames"`
}

type blocksResponse struct {
	Blocks []events.Block `json:"blocks"`
}

// GetBlocks fetches up to limit blocks with height >= minHeight, filtered
// server-side to the given event names, ordered ascending by height.
func (c *Client) GetBlocks(ctx context.Context, minHeight uint64, limit uint64, eventNames []string) ([]events.Block, error) {
	req := blocksRequest{MinHeight: minHeight, Limit: limit, EventNames: eventNames}

	var resp blocksResponse
	if err := c.post(ctx, "blocks", "/blocks", req, &resp); err != nil {
		return nil, err
	}

	for i := 1; i < len(resp.Blocks); i++ {
		if resp.Blocks[i].Height <= resp.Blocks[i-1].Height {
			return nil, fmt.Errorf("archive returned unordered blocks: %d after %d",
				resp.Blocks[i].Height, resp.Blocks[i-1].Height)
		}
	}
	return resp.Blocks, nil
}

type egressFeeRequest struct {
	Asset     swap.Asset    `json:"asset"`
	Amount    events.Amount `json:"amount"`
	BlockHash common.Hash   `json:"blockHash"`
}

type egressFeeResponse struct {
	Fee events.Amount `json:"fee"`
}

// EgressFee reads the environment egress fee for an asset and amount as of a
// historical block hash.
func (c *Client) EgressFee(ctx context.Context, asset swap.Asset, amount *big.Int, blockHash common.Hash) (*big.Int, error) {
	req := egressFeeRequest{Asset: asset, Amount: events.NewAmount(amount), BlockHash: blockHash}

	var resp egressFeeResponse
	if err := c.post(ctx, "egress_fee", "/environment/egress-fee", req, &resp); err != nil {
		return nil, err
	}
	if resp.Fee.Int == nil {
		return nil, fmt.Errorf("archive returned no egress fee for %s", asset)
	}
	return resp.Fee.Int, nil
}

// PendingDeposit is unconfirmed inbound activity observed on the external chain.
type PendingDeposit struct {
	Amount        events.Amount `json:"amount"`
	Confirmations uint32        `json:"confirmations"`
	TxHash        string        `json:"txHash,omitempty"`
}

type pendingDepositRequest struct {
	Chain   swap.Chain `json:"chain"`
	Asset   swap.Asset `json:"asset"`
	Address string     `json:"address"`
}

// GetPendingDeposit probes for an unconfirmed deposit to an address. A nil
// result with nil error means no pending activity.
func (c *Client) GetPendingDeposit(ctx context.Context, chain swap.Chain, asset swap.Asset, address string) (*PendingDeposit, error) {
	req := pendingDepositRequest{Chain: chain, Asset: asset, Address: address}

	var resp *PendingDeposit
	if err := c.post(ctx, "pending_deposit", "/pending/deposit", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

type pendingBroadcastRequest struct {
	Chain    swap.Chain `json:"chain"`
	NativeID uint64     `json:"nativeId"`
}

// GetPendingBroadcast probes whether a broadcast is in flight on the external
// chain. The payload shape is provider specific, so it stays raw.
func (c *Client) GetPendingBroadcast(ctx context.Context, chain swap.Chain, nativeID uint64) (json.RawMessage, error) {
	req := pendingBroadcastRequest{Chain: chain, NativeID: nativeID}

	var resp json.RawMessage
	if err := c.post(ctx, "pending_broadcast", "/pending/broadcast", req, &resp); err != nil {
		return nil, err
	}
	if string(resp) == "null" {
		return nil, nil
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, operation, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	return retryWithBackoff(ctx, c.retry, operation, func() error {
		metrics.ArchiveRequestInc(operation)
		start := time.Now()

		err := c.doOnce(ctx, path, payload, out)
		metrics.ArchiveRequestDuration(operation, time.Since(start))
		if err != nil {
			metrics.ArchiveErrorInc(operation)
			c.logger.Warnw("archive request failed", "operation", operation, "err", err)
		}
		return err
	})
}

func (c *Client) doOnce(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
