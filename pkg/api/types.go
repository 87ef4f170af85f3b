package api

import (
	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
)

// OpenChannelRequest is the body of a POST /api/v1/swaps request.
type OpenChannelRequest struct {
	SrcAsset  swap.Asset `json:"srcAsset"`
	DestAsset swap.Asset `json:"destAsset"`
	// DestAddress is the address on the destination chain that receives the
	// swapped funds.
	DestAddress string `json:"destAddress"`
	// Amount is the expected deposit amount in the source asset's fine units.
	Amount events.Amount `json:"amount"`
	// BrokerCommissionBps is the broker commission in basis points.
	BrokerCommissionBps uint32 `json:"brokerCommissionBps,omitempty"`
	// ChannelID makes a retried request idempotent: if an unexpired channel
	// with this id is already open on the source chain, it is returned as-is.
	ChannelID *uint64 `json:"channelId,omitempty"`
}

// OpenChannelResponse describes the deposit channel a swap should pay into.
type OpenChannelResponse struct {
	ID             string     `json:"id"`
	SrcChain       swap.Chain `json:"srcChain"`
	ChannelID      uint64     `json:"channelId"`
	DepositAddress string     `json:"depositAddress"`
	IssuedBlock    uint64     `json:"issuedBlock"`
	ExpiryBlock    uint64     `json:"expiryBlock"`
}

// QuoteResponse is the aggregated quote returned by GET /api/v1/quote.
type QuoteResponse struct {
	SrcAsset           swap.Asset    `json:"srcAsset"`
	DestAsset          swap.Asset    `json:"destAsset"`
	Amount             events.Amount `json:"amount"`
	IntermediateAmount events.Amount `json:"intermediateAmount,omitempty"`
	EgressAmount       events.Amount `json:"egressAmount"`
	Source             string        `json:"source"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status             string `json:"status"`
	LastAppliedBlock   int64  `json:"lastAppliedBlock"`
	ConnectedProviders int    `json:"connectedProviders"`
}
