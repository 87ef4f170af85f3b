package status

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/archive"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
	"github.com/ethereum/go-ethereum/common"
)

// State is the derived lifecycle state of a swap. It is computed on read,
// never persisted.
type State string

const (
	StateAwaitingDeposit    State = "AWAITING_DEPOSIT"
	StateDepositReceived    State = "DEPOSIT_RECEIVED"
	StateSwapExecuted       State = "SWAP_EXECUTED"
	StateEgressScheduled    State = "EGRESS_SCHEDULED"
	StateBroadcastRequested State = "BROADCAST_REQUESTED"
	StateBroadcasted        State = "BROADCASTED"
	StateBroadcastAborted   State = "BROADCAST_ABORTED"
	StateComplete           State = "COMPLETE"
	StateFailed             State = "FAILED"
)

// DepositTracker probes the external chain for unconfirmed deposits.
type DepositTracker interface {
	GetPendingDeposit(ctx context.Context, chain swap.Chain, asset swap.Asset, address string) (*archive.PendingDeposit, error)
}

// BroadcastTracker probes whether a broadcast is in flight.
type BroadcastTracker interface {
	GetPendingBroadcast(ctx context.Context, chain swap.Chain, nativeID uint64) (json.RawMessage, error)
}

// Fee is one fee row flattened into the status response.
type Fee struct {
	Kind   swap.FeeKind  `json:"kind"`
	Asset  swap.Asset    `json:"asset"`
	Amount events.Amount `json:"amount"`
}

// SwapStatus is the flattened read-side view of a swap and its channel.
type SwapStatus struct {
	State State `json:"state"`

	SwapID    uint64     `json:"swapId,omitempty"`
	ChannelID string     `json:"channelId,omitempty"`
	SrcAsset  swap.Asset `json:"srcAsset,omitempty"`
	DestAsset swap.Asset `json:"destAsset,omitempty"`
	SrcChain  swap.Chain `json:"srcChain,omitempty"`
	DestChain swap.Chain `json:"destChain,omitempty"`

	DepositAddress        string        `json:"depositAddress,omitempty"`
	DestAddress           string        `json:"destAddress,omitempty"`
	ExpectedDepositAmount events.Amount `json:"expectedDepositAmount,omitempty"`
	ExpiryBlock           uint64        `json:"expiryBlock,omitempty"`
	EstimatedExpiryAt     int64         `json:"estimatedExpiryAt,omitempty"`
	IsExpired             bool          `json:"isExpired,omitempty"`

	DepositAmount             events.Amount `json:"depositAmount,omitempty"`
	SwapInputAmount           events.Amount `json:"swapInputAmount,omitempty"`
	SwapOutputAmount          events.Amount `json:"swapOutputAmount,omitempty"`
	IntermediateAmount        events.Amount `json:"intermediateAmount,omitempty"`
	DepositReceivedAt         int64         `json:"depositReceivedAt,omitempty"`
	DepositReceivedBlockIndex string        `json:"depositReceivedBlockIndex,omitempty"`
	SwapExecutedAt            int64         `json:"swapExecutedAt,omitempty"`
	SwapExecutedBlockIndex    string        `json:"swapExecutedBlockIndex,omitempty"`

	EgressAmount      events.Amount `json:"egressAmount,omitempty"`
	EgressScheduledAt int64         `json:"egressScheduledAt,omitempty"`

	BroadcastRequestedAt int64 `json:"broadcastRequestedAt,omitempty"`
	BroadcastSucceededAt int64 `json:"broadcastSucceededAt,omitempty"`
	BroadcastAbortedAt   int64 `json:"broadcastAbortedAt,omitempty"`

	FailureReason string `json:"failureReason,omitempty"`

	Fees []Fee `json:"fees,omitempty"`

	PendingDeposit *archive.PendingDeposit `json:"pendingDeposit,omitempty"`
}

// Resolver computes swap status from the domain model plus best-effort live
// probes.
type Resolver struct {
	db         *sql.DB
	deposits   DepositTracker
	broadcasts BroadcastTracker
	logger     *logger.Logger
}

// NewResolver creates a status resolver. Both trackers may be nil, in which
// case the corresponding live enrichments are skipped.
func NewResolver(db *sql.DB, deposits DepositTracker, broadcasts BroadcastTracker, log *logger.Logger) *Resolver {
	return &Resolver{db: db, deposits: deposits, broadcasts: broadcasts, logger: log}
}

// Resolve looks up a swap by native id, channel composite id
// ("issuedBlock-srcChain-channelId") or origin transaction hash, and derives
// its status. Returns nil when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, id string) (*SwapStatus, error) {
	channel, s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if channel == nil && s == nil {
		return nil, nil
	}
	return r.derive(ctx, channel, s)
}

func (r *Resolver) lookup(id string) (*swap.SwapChannel, *swap.Swap, error) {
	if issuedBlock, chain, channelID, ok := parseCompositeID(id); ok {
		channel, err := swap.ChannelByComposite(r.db, issuedBlock, chain, channelID)
		if err != nil || channel == nil {
			return nil, nil, err
		}
		s, err := swap.LatestSwapForChannel(r.db, channel.ID)
		if err != nil {
			return nil, nil, err
		}
		return channel, s, nil
	}

	if strings.HasPrefix(id, "0x") && len(id) == 2+2*common.HashLength {
		s, err := swap.SwapByTxHash(r.db, common.HexToHash(id))
		if err != nil || s == nil {
			return nil, nil, err
		}
		return r.channelOf(s)
	}

	if nativeID, err := strconv.ParseUint(id, 10, 64); err == nil {
		s, err := swap.SwapByNativeID(r.db, nativeID)
		if err != nil || s == nil {
			return nil, nil, err
		}
		return r.channelOf(s)
	}

	return nil, nil, nil
}

func (r *Resolver) channelOf(s *swap.Swap) (*swap.SwapChannel, *swap.Swap, error) {
	if s.ChannelID == nil {
		return nil, s, nil
	}

	channel, err := swap.ChannelByRowID(r.db, *s.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	return channel, s, nil
}

func parseCompositeID(id string) (uint64, swap.Chain, uint64, bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return 0, "", 0, false
	}

	issuedBlock, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, "", 0, false
	}
	channelID, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return 0, "", 0, false
	}
	return issuedBlock, swap.Chain(parts[1]), channelID, true
}

// derive computes the state by ordered precedence and flattens the rows.
func (r *Resolver) derive(ctx context.Context, channel *swap.SwapChannel, s *swap.Swap) (*SwapStatus, error) {
	out := &SwapStatus{State: StateAwaitingDeposit}

	if channel != nil {
		out.ChannelID = channel.CompositeID()
		out.SrcAsset = channel.SrcAsset
		out.DestAsset = channel.DestAsset
		out.SrcChain = channel.SrcChain
		out.DestChain = channel.DestChain
		out.DepositAddress = channel.DepositAddress
		out.DestAddress = channel.DestAddress
		out.ExpectedDepositAmount = events.NewAmount(channel.ExpectedDepositAmount)
		out.ExpiryBlock = channel.ExpiryBlock
		out.EstimatedExpiryAt = channel.EstimatedExpiryAt
		out.IsExpired = channel.IsExpired
	}

	var egress *swap.Egress
	var broadcast *swap.Broadcast

	if s != nil {
		out.SwapID = s.NativeID
		out.SrcAsset = s.SrcAsset
		out.DestAsset = s.DestAsset
		out.DepositAmount = events.NewAmount(s.DepositAmount)
		out.SwapInputAmount = events.NewAmount(s.SwapInputAmount)
		out.SwapOutputAmount = events.NewAmount(s.SwapOutputAmount)
		out.IntermediateAmount = events.NewAmount(s.IntermediateAmount)
		out.DepositReceivedAt = s.DepositReceivedAt
		out.DepositReceivedBlockIndex = s.DepositReceivedBlockIndex
		out.SwapExecutedAt = s.SwapExecutedAt
		out.SwapExecutedBlockIndex = s.SwapExecutedBlockIndex

		fees, err := swap.FeesForSwap(r.db, s.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range fees {
			out.Fees = append(out.Fees, Fee{Kind: f.Kind, Asset: f.Asset, Amount: events.NewAmount(f.Amount)})
		}

		if s.EgressID != nil {
			if egress, err = swap.EgressByID(r.db, *s.EgressID); err != nil {
				return nil, err
			}
		}
		if egress != nil {
			out.EgressAmount = events.NewAmount(egress.Amount)
			out.EgressScheduledAt = egress.ScheduledAt

			if egress.BroadcastID != nil {
				if broadcast, err = r.liveBroadcast(*egress.BroadcastID); err != nil {
					return nil, err
				}
			}
		}
		if broadcast != nil {
			out.BroadcastRequestedAt = broadcast.RequestedAt
			out.BroadcastSucceededAt = broadcast.SucceededAt
			out.BroadcastAbortedAt = broadcast.AbortedAt
		}
	}

	// A failure on the channel overrides everything, including a sibling
	// swap that made it all the way to a successful broadcast.
	if channel != nil {
		failed, err := swap.FailedSwapForChannel(r.db, channel.ID)
		if err != nil {
			return nil, err
		}
		if failed != nil {
			out.State = StateFailed
			out.FailureReason = failed.Reason
			return out, nil
		}
	}

	switch {
	case broadcast != nil && broadcast.SucceededAt != 0:
		out.State = StateComplete
	case broadcast != nil && broadcast.AbortedAt != 0:
		out.State = StateBroadcastAborted
	case broadcast != nil && r.broadcastInFlight(ctx, broadcast):
		out.State = StateBroadcasted
	case broadcast != nil:
		out.State = StateBroadcastRequested
	case egress != nil:
		out.State = StateEgressScheduled
	case s != nil && s.SwapExecutedAt != 0:
		out.State = StateSwapExecuted
	case s != nil && s.DepositReceivedAt != 0:
		out.State = StateDepositReceived
	default:
		out.State = StateAwaitingDeposit
		r.mergePendingDeposit(ctx, channel, out)
	}

	return out, nil
}

// liveBroadcast follows retry replacements to the broadcast currently in
// charge of the egress. A visited set keeps the chase total even if corrupt
// rows form a replacement cycle.
func (r *Resolver) liveBroadcast(id int64) (*swap.Broadcast, error) {
	visited := make(map[int64]struct{})
	for {
		if _, seen := visited[id]; seen {
			return nil, fmt.Errorf("broadcast replacement cycle at id %d", id)
		}
		visited[id] = struct{}{}

		b, err := swap.BroadcastByID(r.db, id)
		if err != nil {
			return nil, err
		}
		if b == nil || b.ReplacedByID == nil {
			return b, nil
		}
		id = *b.ReplacedByID
	}
}

// broadcastInFlight is a best-effort probe. Failures degrade to "unknown".
func (r *Resolver) broadcastInFlight(ctx context.Context, b *swap.Broadcast) bool {
	if r.broadcasts == nil {
		return false
	}

	payload, err := r.broadcasts.GetPendingBroadcast(ctx, b.Chain, b.NativeID)
	if err != nil {
		r.logger.Errorw("pending broadcast probe failed", "chain", b.Chain, "broadcastId", b.NativeID, "err", err)
		return false
	}
	return payload != nil
}

// mergePendingDeposit enriches an awaiting-deposit response with unconfirmed
// mempool activity. Failures degrade to "unknown".
func (r *Resolver) mergePendingDeposit(ctx context.Context, channel *swap.SwapChannel, out *SwapStatus) {
	if r.deposits == nil || channel == nil {
		return
	}

	pending, err := r.deposits.GetPendingDeposit(ctx, channel.SrcChain, channel.SrcAsset, channel.DepositAddress)
	if err != nil {
		r.logger.Errorw("pending deposit probe failed",
			"chain", channel.SrcChain,
			"depositAddress", channel.DepositAddress,
			"err", err,
		)
		return
	}
	out.PendingDeposit = pending
}
