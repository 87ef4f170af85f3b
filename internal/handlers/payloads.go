package handlers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
)

// Payload shapes vary across protocol spec versions. Each shape is decoded
// leniently and then validated explicitly before a handler trusts it.

type validator interface {
	validate() error
}

func decodePayload(raw json.RawMessage, v validator) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}
	if err := v.validate(); err != nil {
		return fmt.Errorf("invalid event payload: %w", err)
	}
	return nil
}

func requireAsset(a swap.Asset, field string) error {
	if !a.Valid() {
		return fmt.Errorf("%s: unknown asset %q", field, a)
	}
	return nil
}

// swapDepositAddressReady announces a freshly issued swap deposit channel.
type swapDepositAddressReady struct {
	ChannelID           uint64        `json:"channelId"`
	SourceAsset         swap.Asset    `json:"sourceAsset"`
	DestinationAsset    swap.Asset    `json:"destinationAsset"`
	DepositAddress      string        `json:"depositAddress"`
	DestinationAddress  string        `json:"destinationAddress"`
	BrokerCommissionBps uint32        `json:"brokerCommissionBps"`
	ExpiryBlock         uint64        `json:"sourceChainExpiryBlock"`
	ExpectedAmount      events.Amount `json:"expectedDepositAmount"`
}

func (p *swapDepositAddressReady) validate() error {
	if err := requireAsset(p.SourceAsset, "sourceAsset"); err != nil {
		return err
	}
	if err := requireAsset(p.DestinationAsset, "destinationAsset"); err != nil {
		return err
	}
	if p.DepositAddress == "" {
		return errors.New("depositAddress: empty")
	}
	if p.DestinationAddress == "" {
		return errors.New("destinationAddress: empty")
	}
	return nil
}

// swapDepositAddressReadyV114 extends the channel-ready payload with the ccm
// metadata introduced at spec version 114.
type swapDepositAddressReadyV114 struct {
	swapDepositAddressReady
	CcmGasBudget events.Amount `json:"ccmGasBudget"`
	CcmMessage   string        `json:"ccmMessage"`
}

// swapOrigin is the tagged union discriminating channel-linked swaps from
// direct vault calls.
type swapOrigin struct {
	Type           swap.OriginType `json:"type"`
	DepositAddress string          `json:"depositAddress"`
	TxHash         string          `json:"txHash"`
}

func (o *swapOrigin) validate() error {
	switch o.Type {
	case swap.OriginDepositChannel:
		if o.DepositAddress == "" {
			return errors.New("origin.depositAddress: empty")
		}
	case swap.OriginVault:
		if o.TxHash == "" {
			return errors.New("origin.txHash: empty")
		}
	default:
		return fmt.Errorf("origin.type: unknown %q", o.Type)
	}
	return nil
}

type swapScheduled struct {
	SwapID           uint64        `json:"swapId"`
	SourceAsset      swap.Asset    `json:"sourceAsset"`
	DestinationAsset swap.Asset    `json:"destinationAsset"`
	DepositAmount    events.Amount `json:"depositAmount"`
	Origin           swapOrigin    `json:"origin"`
	SwapType         swap.SwapType `json:"swapType"`
}

func (p *swapScheduled) validate() error {
	if p.SwapID == 0 {
		return errors.New("swapId: zero")
	}
	if err := requireAsset(p.SourceAsset, "sourceAsset"); err != nil {
		return err
	}
	if err := requireAsset(p.DestinationAsset, "destinationAsset"); err != nil {
		return err
	}
	if p.DepositAmount.Int == nil {
		return errors.New("depositAmount: missing")
	}
	switch p.SwapType {
	case swap.SwapTypeSwap, swap.SwapTypeCcmPrincipal, swap.SwapTypeCcmGas:
	case "":
		p.SwapType = swap.SwapTypeSwap
	default:
		return fmt.Errorf("swapType: unknown %q", p.SwapType)
	}
	return p.Origin.validate()
}

type depositReceived struct {
	Asset          swap.Asset    `json:"asset"`
	Amount         events.Amount `json:"amount"`
	DepositAddress string        `json:"depositAddress"`
}

func (p *depositReceived) validate() error {
	if err := requireAsset(p.Asset, "asset"); err != nil {
		return err
	}
	if p.Amount.Int == nil {
		return errors.New("amount: missing")
	}
	if p.DepositAddress == "" {
		return errors.New("depositAddress: empty")
	}
	return nil
}

type swapExecuted struct {
	SwapID             uint64        `json:"swapId"`
	SwapInput          events.Amount `json:"swapInput"`
	SwapOutput         events.Amount `json:"swapOutput"`
	IntermediateAmount events.Amount `json:"intermediateAmount"`
}

func (p *swapExecuted) validate() error {
	if p.SwapID == 0 {
		return errors.New("swapId: zero")
	}
	if p.SwapOutput.Int == nil {
		return errors.New("swapOutput: missing")
	}
	return nil
}

type swapEgressScheduled struct {
	SwapID   uint64        `json:"swapId"`
	Chain    swap.Chain    `json:"egressChain"`
	EgressID uint64        `json:"egressId"`
	Amount   events.Amount `json:"amount"`
}

func (p *swapEgressScheduled) validate() error {
	if p.SwapID == 0 {
		return errors.New("swapId: zero")
	}
	if p.EgressID == 0 {
		return errors.New("egressId: zero")
	}
	if p.Amount.Int == nil {
		return errors.New("amount: missing")
	}
	return nil
}

// swapEgressScheduledV114 carries the egress fee directly instead of leaving
// it to be derived from environment state.
type swapEgressScheduledV114 struct {
	swapEgressScheduled
	Fee events.Amount `json:"fee"`
}

func (p *swapEgressScheduledV114) validate() error {
	if err := p.swapEgressScheduled.validate(); err != nil {
		return err
	}
	if p.Fee.Int == nil {
		return errors.New("fee: missing")
	}
	return nil
}

type swapAmountTooLow struct {
	Asset              swap.Asset    `json:"asset"`
	Amount             events.Amount `json:"amount"`
	DestinationAddress string        `json:"destinationAddress"`
	Origin             swapOrigin    `json:"origin"`
}

func (p *swapAmountTooLow) validate() error {
	if err := requireAsset(p.Asset, "asset"); err != nil {
		return err
	}
	if p.Amount.Int == nil {
		return errors.New("amount: missing")
	}
	return p.Origin.validate()
}

type depositIgnored struct {
	Asset          swap.Asset    `json:"asset"`
	Amount         events.Amount `json:"amount"`
	DepositAddress string        `json:"depositAddress"`
	Reason         string        `json:"reason"`
}

func (p *depositIgnored) validate() error {
	if err := requireAsset(p.Asset, "asset"); err != nil {
		return err
	}
	if p.DepositAddress == "" {
		return errors.New("depositAddress: empty")
	}
	if p.Reason == "" {
		return errors.New("reason: empty")
	}
	return nil
}

type batchBroadcastRequested struct {
	BroadcastID uint64   `json:"broadcastId"`
	EgressIDs   []uint64 `json:"egressIds"`
}

func (p *batchBroadcastRequested) validate() error {
	if p.BroadcastID == 0 {
		return errors.New("broadcastId: zero")
	}
	return nil
}

type broadcastTerminal struct {
	BroadcastID uint64 `json:"broadcastId"`
}

func (p *broadcastTerminal) validate() error {
	if p.BroadcastID == 0 {
		return errors.New("broadcastId: zero")
	}
	return nil
}

type broadcastRetryScheduled struct {
	BroadcastID      uint64 `json:"broadcastId"`
	RetryBroadcastID uint64 `json:"retryBroadcastId"`
}

func (p *broadcastRetryScheduled) validate() error {
	if p.BroadcastID == 0 {
		return errors.New("broadcastId: zero")
	}
	if p.RetryBroadcastID == 0 {
		return errors.New("retryBroadcastId: zero")
	}
	return nil
}

type chainStateUpdated struct {
	Height uint64 `json:"blockHeight"`
}

func (p *chainStateUpdated) validate() error {
	if p.Height == 0 {
		return errors.New("blockHeight: zero")
	}
	return nil
}

type poolFeeChanged struct {
	BaseAsset        swap.Asset `json:"baseAsset"`
	QuoteAsset       swap.Asset `json:"quoteAsset"`
	FeeHundredthPips uint32     `json:"feeHundredthPips"`
}

func (p *poolFeeChanged) validate() error {
	if err := requireAsset(p.BaseAsset, "baseAsset"); err != nil {
		return err
	}
	if err := requireAsset(p.QuoteAsset, "quoteAsset"); err != nil {
		return err
	}
	return nil
}
