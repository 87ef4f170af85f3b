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
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
)

// BrokerQuote is the chain broker's reference quote for a swap.
type BrokerQuote struct {
	IntermediateAmount *big.Int
	EgressAmount       *big.Int
}

// Broker is a thin HTTP client for the chain's broker interface, used by the
// quote aggregator as its reference quote source.
type Broker struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewBroker creates a broker client.
func NewBroker(baseURL string, log *logger.Logger) *Broker {
	return &Broker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

type brokerQuoteRequest struct {
	SrcAsset  swap.Asset    `json:"srcAsset"`
	DestAsset swap.Asset    `json:"destAsset"`
	Amount    events.Amount `json:"amount"`
}

type brokerQuoteResponse struct {
	IntermediateAmount events.Amount `json:"intermediateAmount"`
	EgressAmount       events.Amount `json:"egressAmount"`
}

// DepositAddress is the broker's answer to an open-channel request.
type DepositAddress struct {
	Chain          swap.Chain `json:"chain"`
	ChannelID      uint64     `json:"channelId"`
	DepositAddress string     `json:"depositAddress"`
	IssuedBlock    uint64     `json:"issuedBlock"`
	ExpiryBlock    uint64     `json:"expiryBlock"`
}

type depositAddressRequest struct {
	SrcAsset            swap.Asset    `json:"srcAsset"`
	DestAsset           swap.Asset    `json:"destAsset"`
	DestAddress         string        `json:"destAddress"`
	Amount              events.Amount `json:"amount"`
	BrokerCommissionBps uint32        `json:"brokerCommissionBps"`
}

// RequestDepositAddress asks the broker to open a swap deposit channel on
// chain. The channel row itself materializes when the ingester observes the
// resulting channel-ready event.
func (b *Broker) RequestDepositAddress(
	ctx context.Context,
	srcAsset, destAsset swap.Asset,
	destAddress string,
	amount *big.Int,
	commissionBps uint32,
) (*DepositAddress, error) {
	payload, err := json.Marshal(depositAddressRequest{
		SrcAsset:            srcAsset,
		DestAsset:           destAsset,
		DestAddress:         destAddress,
		Amount:              events.NewAmount(amount),
		BrokerCommissionBps: commissionBps,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/deposit_address", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out DepositAddress
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode deposit address: %w", err)
	}
	if out.DepositAddress == "" {
		return nil, fmt.Errorf("broker response missing deposit address")
	}
	return &out, nil
}

// GetQuote requests a reference quote for swapping amount of srcAsset into
// destAsset.
func (b *Broker) GetQuote(ctx context.Context, srcAsset, destAsset swap.Asset, amount *big.Int) (*BrokerQuote, error) {
	payload, err := json.Marshal(brokerQuoteRequest{
		SrcAsset:  srcAsset,
		DestAsset: destAsset,
		Amount:    events.NewAmount(amount),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/quote", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out brokerQuoteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode broker quote: %w", err)
	}
	if out.EgressAmount.Int == nil {
		return nil, fmt.Errorf("broker quote missing egress amount")
	}

	return &BrokerQuote{
		IntermediateAmount: out.IntermediateAmount.Int,
		EgressAmount:       out.EgressAmount.Int,
	}, nil
}
