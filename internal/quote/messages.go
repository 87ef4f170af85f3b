package quote

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
)

// RequestMessage is broadcast to every connected provider when a quote is
// requested.
type RequestMessage struct {
	Type      string        `json:"type"`
	ID        string        `json:"id"`
	SrcAsset  swap.Asset    `json:"srcAsset"`
	DestAsset swap.Asset    `json:"destAsset"`
	Amount    events.Amount `json:"amount"`
}

// ProviderResponse is a provider's answer to a quote request.
type ProviderResponse struct {
	Type               string        `json:"type"`
	ID                 string        `json:"id"`
	IntermediateAmount events.Amount `json:"intermediateAmount,omitempty"`
	EgressAmount       events.Amount `json:"egressAmount"`
}

const (
	messageTypeRequest  = "quote_request"
	messageTypeResponse = "quote_response"
)

// decodeProviderResponse validates one incoming provider message against the
// expected shape. Anything that does not hold up is rejected so a single
// misbehaving provider cannot poison an aggregation.
func decodeProviderResponse(data []byte) (*ProviderResponse, error) {
	var resp ProviderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	if resp.Type != messageTypeResponse {
		return nil, fmt.Errorf("unexpected message type %q", resp.Type)
	}
	if resp.ID == "" {
		return nil, errors.New("missing request id")
	}
	if resp.EgressAmount.Int == nil {
		return nil, errors.New("missing egress amount")
	}
	if resp.EgressAmount.Sign() < 0 {
		return nil, errors.New("negative egress amount")
	}
	return &resp, nil
}
