package handlers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/dispatch"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
	"github.com/ethereum/go-ethereum/common"
)

// specVersionCcm is the runtime revision that moved ccm metadata and egress
// fees into the events themselves.
const specVersionCcm = 114

// Registry owns the event handler inventory and its shared dependencies.
type Registry struct {
	env EnvironmentReader
}

// NewRegistry builds the handler inventory. The environment reader is used by
// the egress-scheduled handler on protocol versions that do not carry the fee
// in the event; wrap it in an EgressFeeCache to bound external calls.
func NewRegistry(env EnvironmentReader) *Registry {
	return &Registry{env: env}
}

// Groups returns the handler inventory as version-activated groups for the
// dispatch table.
func (r *Registry) Groups() []dispatch.Group {
	base := map[string]dispatch.Handler{
		"Swapping.SwapDepositAddressReady": r.handleChannelReady,
		"Swapping.SwapScheduled":           r.handleSwapScheduled,
		"Swapping.SwapExecuted":            r.handleSwapExecuted,
		"Swapping.SwapEgressScheduled":     r.handleEgressScheduledDerived,
		"Swapping.SwapAmountTooLow":        r.handleSwapAmountTooLow,
		"LiquidityPools.NewPoolCreated":    r.handlePoolFeeChanged,
		"LiquidityPools.PoolFeeSet":        r.handlePoolFeeChanged,
	}

	for _, chain := range swap.AllChains {
		c := chain
		base[fmt.Sprintf("%sIngressEgress.DepositReceived", c)] = r.depositReceivedHandler(c)
		base[fmt.Sprintf("%sIngressEgress.DepositIgnored", c)] = r.depositIgnoredHandler(c)
		base[fmt.Sprintf("%sIngressEgress.BatchBroadcastRequested", c)] = r.broadcastRequestedHandler(c)
		base[fmt.Sprintf("%sBroadcaster.BroadcastSuccess", c)] = r.broadcastSuccessHandler(c)
		base[fmt.Sprintf("%sBroadcaster.BroadcastAborted", c)] = r.broadcastAbortedHandler(c)
		base[fmt.Sprintf("%sBroadcaster.BroadcastRetryScheduled", c)] = r.broadcastRetryHandler(c)
		base[fmt.Sprintf("%sChainTracking.ChainStateUpdated", c)] = r.chainStateUpdatedHandler(c)
	}

	return []dispatch.Group{
		{SinceVersion: 0, Handlers: base},
		{SinceVersion: specVersionCcm, Handlers: map[string]dispatch.Handler{
			"Swapping.SwapDepositAddressReady": r.handleChannelReadyCcm,
			"Swapping.SwapEgressScheduled":     r.handleEgressScheduledWithFee,
		}},
	}
}

// secondsPerBlock is the nominal block interval per external chain, used only
// for the advisory wall-clock expiry estimate on channel open.
var secondsPerBlock = map[swap.Chain]int64{
	swap.ChainEthereum: 12,
	swap.ChainPolkadot: 6,
	swap.ChainBitcoin:  600,
}

func (r *Registry) handleChannelReady(ctx context.Context, call *dispatch.Call) error {
	var p swapDepositAddressReady
	if err := decodePayload(call.Event.Args, &p); err != nil {
		return err
	}
	return r.openChannel(call, &p, nil, "")
}

func (r *Registry) handleChannelReadyCcm(ctx context.Context, call *dispatch.Call) error {
	var p swapDepositAddressReadyV114
	if err := decodePayload(call.Event.Args, &p); err != nil {
		return err
	}
	return r.openChannel(call, &p.swapDepositAddressReady, p.CcmGasBudget.Int, p.CcmMessage)
}

func (r *Registry) openChannel(call *dispatch.Call, p *swapDepositAddressReady, ccmGasBudget *big.Int, ccmMessage string) error {
	srcChain, err := p.SourceAsset.Chain()
	if err != nil {
		return err
	}
	destChain, err := p.DestinationAsset.Chain()
	if err != nil {
		return err
	}

	generic := &swap.DepositChannel{
		Chain:       srcChain,
		Address:     p.DepositAddress,
		ChannelID:   p.ChannelID,
		IssuedBlock: call.Block.Height,
		IsSwapping:  true,
	}
	if err := swap.CreateDepositChannel(call.Tx, generic); err != nil {
		return err
	}

	channel := &swap.SwapChannel{
		IssuedBlock:           call.Block.Height,
		SrcChain:              srcChain,
		ChannelID:             p.ChannelID,
		SrcAsset:              p.SourceAsset,
		DestAsset:             p.DestinationAsset,
		DestChain:             destChain,
		DepositAddress:        p.DepositAddress,
		DestAddress:           p.DestinationAddress,
		ExpectedDepositAmount: p.ExpectedAmount.Int,
		BrokerCommissionBps:   p.BrokerCommissionBps,
		ExpiryBlock:           p.ExpiryBlock,
		EstimatedExpiryAt:     r.estimateExpiry(call, srcChain, p.ExpiryBlock),
		CcmGasBudget:          ccmGasBudget,
		CcmMessage:            ccmMessage,
		OpenedAt:              call.Block.Timestamp,
	}
	if err := swap.UpsertSwapChannel(call.Tx, channel); err != nil {
		return err
	}

	call.Logger.Debugw("swap channel opened",
		"channel", channel.CompositeID(),
		"srcAsset", p.SourceAsset,
		"destAsset", p.DestinationAsset,
	)
	return nil
}

// estimateExpiry converts the chain-native expiry block into an advisory
// wall-clock estimate, computed once at channel open. Returns 0 (stored as
// NULL) when the external chain height is not yet tracked.
func (r *Registry) estimateExpiry(call *dispatch.Call, chain swap.Chain, expiryBlock uint64) int64 {
	height, err := swap.ChainHeight(call.Tx, chain)
	if err != nil || height == 0 || expiryBlock <= height {
		return 0
	}
	return call.Block.Timestamp + secondsPerBlock[chain]*int64(expiryBlock-height)
}

func (r *Registry) handleSwapScheduled(ctx context.Context, call *dispatch.Call) error {
	var p swapScheduled
	if err := decodePayload(call.Event.Args, &p); err != nil {
		return err
	}

	if existing, err := swap.SwapByNativeID(call.Tx, p.SwapID); err != nil {
		return err
	} else if existing != nil {
		// Replayed block, the swap is already recorded.
		return nil
	}

	s := &swap.Swap{
		NativeID:        p.SwapID,
		OriginType:      p.Origin.Type,
		SrcAsset:        p.SourceAsset,
		DestAsset:       p.DestinationAsset,
		DepositAmount:   p.DepositAmount.Int,
		SwapInputAmount: p.DepositAmount.Int,
		Type:            p.SwapType,
	}

	var commissionBps uint32
	switch p.Origin.Type {
	case swap.OriginDepositChannel:
		channel, err := swap.NewestChannelForDeposit(call.Tx, p.SourceAsset, p.Origin.DepositAddress, call.Block.Height)
		if err != nil {
			return err
		}
		if channel == nil {
			// Not every on-chain swap flows through a channel we track.
			call.Logger.Debugw("swap not tracked, no matching channel",
				"swapId", p.SwapID,
				"depositAddress", p.Origin.DepositAddress,
			)
			return nil
		}
		s.ChannelID = &channel.ID
		s.CcmGasBudget = channel.CcmGasBudget
		s.CcmMessage = channel.CcmMessage
		commissionBps = channel.BrokerCommissionBps
	case swap.OriginVault:
		h := common.HexToHash(p.Origin.TxHash)
		s.OriginTxHash = &h
	}

	if err := swap.InsertSwap(call.Tx, s); err != nil {
		return err
	}

	if commissionBps > 0 {
		fee := brokerFee(p.DepositAmount.Int, commissionBps)
		if fee.Sign() > 0 {
			if err := swap.AddFee(call.Tx, s.ID, swap.FeeKindBroker, p.SourceAsset, fee); err != nil {
				return err
			}
		}
	}

	call.Logger.Infow("swap scheduled", "swapId", p.SwapID, "origin", p.Origin.Type)
	return nil
}

func (r *Registry) depositReceivedHandler(chain swap.Chain) dispatch.Handler {
	return func(ctx context.Context, call *dispatch.Call) error {
		var p depositReceived
		if err := decodePayload(call.Event.Args, &p); err != nil {
			return err
		}

		channel, err := swap.NewestChannelByAddress(call.Tx, chain, p.DepositAddress)
		if err != nil {
			return err
		}
		if channel == nil {
			call.Logger.Infow("deposit for unknown or non-swap channel",
				"chain", chain,
				"depositAddress", p.DepositAddress,
			)
			return nil
		}

		s, err := swap.LatestSwapForChannel(call.Tx, channel.ID)
		if err != nil {
			return err
		}
		if s == nil {
			// The deposit can sit between the chain's minimum-deposit and
			// minimum-swap thresholds, in which case no swap was scheduled.
			call.Logger.Infow("deposit received with no scheduled swap",
				"channel", channel.CompositeID(),
			)
			return nil
		}
		if s.DepositReceivedAt != 0 {
			return nil
		}

		if s.SwapInputAmount != nil {
			ingress := new(big.Int).Sub(p.Amount.Int, s.SwapInputAmount)
			switch {
			case ingress.Sign() > 0:
				if err := swap.AddFee(call.Tx, s.ID, swap.FeeKindIngress, p.Asset, ingress); err != nil {
					return err
				}
			case ingress.Sign() < 0:
				call.Logger.Warnw("deposit smaller than recorded swap input",
					"swapId", s.NativeID,
					"deposit", p.Amount.String(),
					"swapInput", s.SwapInputAmount.String(),
				)
			}
		}

		s.DepositAmount = p.Amount.Int
		s.DepositReceivedAt = call.Block.Timestamp
		s.DepositReceivedBlockIndex = call.BlockIndex()
		return swap.UpdateSwap(call.Tx, s)
	}
}

func (r *Registry) handleSwapExecuted(ctx context.Context, call *dispatch.Call) error {
	var p swapExecuted
	if err := decodePayload(call.Event.Args, &p); err != nil {
		return err
	}

	s, err := swap.SwapByNativeID(call.Tx, p.SwapID)
	if err != nil {
		return err
	}
	if s == nil {
		call.Logger.Infow("executed swap not tracked", "swapId", p.SwapID)
		return nil
	}
	if s.SwapExecutedAt != 0 {
		return nil
	}

	input := s.SwapInputAmount
	if p.SwapInput.Int != nil {
		input = p.SwapInput.Int
	}

	s.SwapOutputAmount = p.SwapOutput.Int
	s.IntermediateAmount = p.IntermediateAmount.Int
	s.SwapExecutedAt = call.Block.Timestamp
	s.SwapExecutedBlockIndex = call.BlockIndex()
	if err := swap.UpdateSwap(call.Tx, s); err != nil {
		return err
	}

	return r.recordExecutionFees(call, s, input, p.IntermediateAmount.Int)
}

// recordExecutionFees writes the NETWORK fee on the stable-asset leg and one
// LIQUIDITY fee per pool hop. Each hop's fee is charged in its input asset.
func (r *Registry) recordExecutionFees(call *dispatch.Call, s *swap.Swap, input, intermediate *big.Int) error {
	type hop struct {
		poolAsset swap.Asset
		feeAsset  swap.Asset
		amount    *big.Int
	}

	var hops []hop
	var stableLeg *big.Int

	switch {
	case s.SrcAsset == swap.StableAsset:
		stableLeg = input
		hops = []hop{{poolAsset: s.DestAsset, feeAsset: swap.StableAsset, amount: input}}
	case s.DestAsset == swap.StableAsset:
		stableLeg = s.SwapOutputAmount
		hops = []hop{{poolAsset: s.SrcAsset, feeAsset: s.SrcAsset, amount: input}}
	default:
		stableLeg = intermediate
		hops = []hop{
			{poolAsset: s.SrcAsset, feeAsset: s.SrcAsset, amount: input},
			{poolAsset: s.DestAsset, feeAsset: swap.StableAsset, amount: intermediate},
		}
	}

	networkFee := feeFromHundredthPips(stableLeg, networkFeeHundredthPips)
	if networkFee.Sign() > 0 {
		if err := swap.AddFee(call.Tx, s.ID, swap.FeeKindNetwork, swap.StableAsset, networkFee); err != nil {
			return err
		}
	}

	for _, h := range hops {
		rate, err := swap.PoolFeeRate(call.Tx, h.poolAsset)
		if err != nil {
			return err
		}
		fee := feeFromHundredthPips(h.amount, rate)
		if fee.Sign() == 0 {
			continue
		}
		if err := swap.AddFee(call.Tx, s.ID, swap.FeeKindLiquidity, h.feeAsset, fee); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) handleEgressScheduledDerived(ctx context.Context, call *dispatch.Call) error {
	var p swapEgressScheduled
	if err := decodePayload(call.Event.Args, &p); err != nil {
		return err
	}
	return r.scheduleEgress(ctx, call, &p, nil)
}

func (r *Registry) handleEgressScheduledWithFee(ctx context.Context, call *dispatch.Call) error {
	var p swapEgressScheduledV114
	if err := decodePayload(call.Event.Args, &p); err != nil {
		return err
	}
	return r.scheduleEgress(ctx, call, &p.swapEgressScheduled, p.Fee.Int)
}

// scheduleEgress records the scheduled egress and its fee. On newer protocol
// versions the fee arrives in the event; older versions require reading the
// environment fee state as of the block hash so replays stay deterministic.
func (r *Registry) scheduleEgress(ctx context.Context, call *dispatch.Call, p *swapEgressScheduled, eventFee *big.Int) error {
	s, err := swap.SwapByNativeID(call.Tx, p.SwapID)
	if err != nil {
		return err
	}
	if s == nil {
		call.Logger.Infow("egress for untracked swap", "swapId", p.SwapID)
		return nil
	}
	if s.EgressID != nil {
		return nil
	}

	chain := p.Chain
	if chain == "" {
		if chain, err = s.DestAsset.Chain(); err != nil {
			return err
		}
	}

	fee := eventFee
	if fee == nil {
		fee, err = r.env.EgressFee(ctx, s.DestAsset, p.Amount.Int, call.Block.Hash)
		if err != nil {
			return fmt.Errorf("failed to derive egress fee: %w", err)
		}
	}
	withheld := clampFee(fee, p.Amount.Int)

	egress := &swap.Egress{
		Chain:               chain,
		NativeID:            p.EgressID,
		Amount:              new(big.Int).Sub(p.Amount.Int, withheld),
		ScheduledAt:         call.Block.Timestamp,
		ScheduledBlockIndex: call.BlockIndex(),
	}
	if err := swap.InsertEgress(call.Tx, egress); err != nil {
		return err
	}

	if withheld.Sign() > 0 {
		if err := swap.AddFee(call.Tx, s.ID, swap.FeeKindEgress, s.DestAsset, withheld); err != nil {
			return err
		}
	}

	s.EgressID = &egress.ID
	return swap.UpdateSwap(call.Tx, s)
}

func (r *Registry) handleSwapAmountTooLow(ctx context.Context, call *dispatch.Call) error {
	var p swapAmountTooLow
	if err := decodePayload(call.Event.Args, &p); err != nil {
		return err
	}

	srcChain, err := p.Asset.Chain()
	if err != nil {
		return err
	}

	if exists, err := swap.FailedSwapExists(call.Tx, call.BlockIndex()); err != nil {
		return err
	} else if exists {
		return nil
	}

	f := &swap.FailedSwap{
		Kind:             swap.FailureKindFailed,
		Reason:           "SwapAmountTooLow",
		SrcChain:         srcChain,
		SrcAsset:         p.Asset,
		Amount:           p.Amount.Int,
		DestAddress:      p.DestinationAddress,
		FailedAt:         call.Block.Timestamp,
		FailedBlockIndex: call.BlockIndex(),
	}

	if p.Origin.Type == swap.OriginDepositChannel {
		channel, err := swap.NewestChannelByAddress(call.Tx, srcChain, p.Origin.DepositAddress)
		if err != nil {
			return err
		}
		if channel != nil {
			f.ChannelID = &channel.ID
			f.DestChain = channel.DestChain
		}
	}

	return swap.InsertFailedSwap(call.Tx, f)
}

func (r *Registry) depositIgnoredHandler(chain swap.Chain) dispatch.Handler {
	return func(ctx context.Context, call *dispatch.Call) error {
		var p depositIgnored
		if err := decodePayload(call.Event.Args, &p); err != nil {
			return err
		}

		if exists, err := swap.FailedSwapExists(call.Tx, call.BlockIndex()); err != nil {
			return err
		} else if exists {
			return nil
		}

		f := &swap.FailedSwap{
			Kind:             swap.FailureKindIgnored,
			Reason:           p.Reason,
			SrcChain:         chain,
			SrcAsset:         p.Asset,
			Amount:           p.Amount.Int,
			FailedAt:         call.Block.Timestamp,
			FailedBlockIndex: call.BlockIndex(),
		}

		channel, err := swap.NewestChannelByAddress(call.Tx, chain, p.DepositAddress)
		if err != nil {
			return err
		}
		if channel != nil {
			f.ChannelID = &channel.ID
			f.DestChain = channel.DestChain
		}

		return swap.InsertFailedSwap(call.Tx, f)
	}
}

func (r *Registry) broadcastRequestedHandler(chain swap.Chain) dispatch.Handler {
	return func(ctx context.Context, call *dispatch.Call) error {
		var p batchBroadcastRequested
		if err := decodePayload(call.Event.Args, &p); err != nil {
			return err
		}

		b, err := swap.BroadcastByNativeID(call.Tx, chain, p.BroadcastID)
		if err != nil {
			return err
		}
		if b == nil {
			b = &swap.Broadcast{
				Chain:               chain,
				NativeID:            p.BroadcastID,
				RequestedAt:         call.Block.Timestamp,
				RequestedBlockIndex: call.BlockIndex(),
			}
			if err := swap.InsertBroadcast(call.Tx, b); err != nil {
				return err
			}
		}

		for _, egressID := range p.EgressIDs {
			// Zero rows is fine, the batch can contain egresses we do not track.
			if _, err := swap.LinkEgressToBroadcast(call.Tx, chain, egressID, b.ID); err != nil {
				return err
			}
		}
		return nil
	}
}

func (r *Registry) broadcastSuccessHandler(chain swap.Chain) dispatch.Handler {
	return func(ctx context.Context, call *dispatch.Call) error {
		var p broadcastTerminal
		if err := decodePayload(call.Event.Args, &p); err != nil {
			return err
		}

		n, err := swap.MarkBroadcastSucceeded(call.Tx, chain, p.BroadcastID, call.Block.Timestamp, call.BlockIndex())
		if err != nil {
			return err
		}
		if n == 0 {
			call.Logger.Infow("broadcast success for untracked broadcast",
				"chain", chain,
				"broadcastId", p.BroadcastID,
			)
		}
		return nil
	}
}

func (r *Registry) broadcastAbortedHandler(chain swap.Chain) dispatch.Handler {
	return func(ctx context.Context, call *dispatch.Call) error {
		var p broadcastTerminal
		if err := decodePayload(call.Event.Args, &p); err != nil {
			return err
		}

		n, err := swap.MarkBroadcastAborted(call.Tx, chain, p.BroadcastID, call.Block.Timestamp, call.BlockIndex())
		if err != nil {
			return err
		}
		if n == 0 {
			call.Logger.Infow("broadcast abort for untracked broadcast",
				"chain", chain,
				"broadcastId", p.BroadcastID,
			)
		}
		return nil
	}
}

func (r *Registry) broadcastRetryHandler(chain swap.Chain) dispatch.Handler {
	return func(ctx context.Context, call *dispatch.Call) error {
		var p broadcastRetryScheduled
		if err := decodePayload(call.Event.Args, &p); err != nil {
			return err
		}

		retry, err := swap.BroadcastByNativeID(call.Tx, chain, p.RetryBroadcastID)
		if err != nil {
			return err
		}
		if retry == nil {
			retry = &swap.Broadcast{
				Chain:               chain,
				NativeID:            p.RetryBroadcastID,
				RequestedAt:         call.Block.Timestamp,
				RequestedBlockIndex: call.BlockIndex(),
			}
			if err := swap.InsertBroadcast(call.Tx, retry); err != nil {
				return err
			}
		}

		if _, err := swap.MarkBroadcastReplaced(call.Tx, chain, p.BroadcastID, retry.ID); err != nil {
			return err
		}
		return nil
	}
}

func (r *Registry) chainStateUpdatedHandler(chain swap.Chain) dispatch.Handler {
	return func(ctx context.Context, call *dispatch.Call) error {
		var p chainStateUpdated
		if err := decodePayload(call.Event.Args, &p); err != nil {
			return err
		}

		if err := swap.UpsertChainTracking(call.Tx, chain, p.Height, call.Block.Timestamp); err != nil {
			return err
		}

		expired, err := swap.ExpireChannels(call.Tx, chain, p.Height)
		if err != nil {
			return err
		}
		if expired > 0 {
			call.Logger.Infow("channels expired", "chain", chain, "height", p.Height, "count", expired)
		}
		return nil
	}
}

func (r *Registry) handlePoolFeeChanged(ctx context.Context, call *dispatch.Call) error {
	var p poolFeeChanged
	if err := decodePayload(call.Event.Args, &p); err != nil {
		return err
	}
	return swap.UpsertPool(call.Tx, p.BaseAsset, p.QuoteAsset, p.FeeHundredthPips)
}
