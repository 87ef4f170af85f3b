package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/archive"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/metrics"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
)

// ErrNoQuotes is returned when neither a provider nor the broker produced a
// usable quote within the timeout.
var ErrNoQuotes = errors.New("no quotes available")

// Broker is the chain's own quoting interface, raced against the providers
// as a reference source.
type Broker interface {
	GetQuote(ctx context.Context, srcAsset, destAsset swap.Asset, amount *big.Int) (*archive.BrokerQuote, error)
}

// Result is the winning quote of an aggregation.
type Result struct {
	Source             string   `json:"source"`
	IntermediateAmount *big.Int `json:"-"`
	EgressAmount       *big.Int `json:"-"`
}

type candidate struct {
	source       string
	intermediate *big.Int
	egress       *big.Int
}

type pendingRequest struct {
	responses chan providerQuote
}

type providerQuote struct {
	providerID string
	resp       *ProviderResponse
}

// Aggregator fans a quote request out to every connected provider plus the
// broker reference and picks the best response within a bounded time. It is
// stateless between requests; a lost response only narrows the candidate set.
type Aggregator struct {
	hub     *Hub
	broker  Broker
	timeout time.Duration
	logger  *logger.Logger

	counter atomic.Uint64

	mu       sync.Mutex
	requests map[string]*pendingRequest
}

// NewAggregator wires the aggregator into the hub's response stream.
func NewAggregator(hub *Hub, broker Broker, timeout time.Duration, log *logger.Logger) *Aggregator {
	a := &Aggregator{
		hub:      hub,
		broker:   broker,
		timeout:  timeout,
		logger:   log,
		requests: make(map[string]*pendingRequest),
	}
	hub.SetResponseHandler(a.deliver)
	return a
}

// deliver routes one valid provider response to its pending aggregation.
// Responses for unknown or already-resolved requests are dropped.
func (a *Aggregator) deliver(providerID string, resp *ProviderResponse) {
	a.mu.Lock()
	req, ok := a.requests[resp.ID]
	a.mu.Unlock()
	if !ok {
		a.logger.Debugw("late quote response dropped", "provider", providerID, "request", resp.ID)
		metrics.QuoteResponseInc("late")
		return
	}

	select {
	case req.responses <- providerQuote{providerID: providerID, resp: resp}:
		metrics.QuoteResponseInc("accepted")
	default:
		metrics.QuoteResponseInc("overflow")
	}
}

// Quote requests a quote for swapping amount of srcAsset into destAsset and
// returns the candidate with the greatest egress amount, ties broken by
// arrival order.
func (a *Aggregator) Quote(ctx context.Context, srcAsset, destAsset swap.Asset, amount *big.Int) (*Result, error) {
	start := time.Now()
	metrics.QuoteRequests.Inc()

	id := fmt.Sprintf("%d-%d", time.Now().UnixNano(), a.counter.Add(1))

	// Register before broadcasting so no response can slip through the gap.
	req := &pendingRequest{responses: make(chan providerQuote, 64)}
	a.mu.Lock()
	a.requests[id] = req
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.requests, id)
		a.mu.Unlock()
	}()

	expected, err := a.hub.Broadcast(&RequestMessage{
		Type:      messageTypeRequest,
		ID:        id,
		SrcAsset:  srcAsset,
		DestAsset: destAsset,
		Amount:    events.NewAmount(amount),
	})
	if err != nil {
		return nil, err
	}

	// The broker reference is raced concurrently under the same deadline.
	brokerCh := make(chan *archive.BrokerQuote, 1)
	go func() {
		brokerCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		bq, err := a.broker.GetQuote(brokerCtx, srcAsset, destAsset, amount)
		if err != nil {
			a.logger.Warnw("broker reference quote failed", "request", id, "err", err)
			brokerCh <- nil
			return
		}
		brokerCh <- bq
	}()

	candidates, err := a.collect(ctx, id, req, expected, brokerCh)
	if err != nil {
		return nil, err
	}

	best := pickBest(candidates)
	if best == nil {
		return nil, ErrNoQuotes
	}

	metrics.QuoteDuration.Observe(time.Since(start).Seconds())
	a.logger.Infow("quote resolved",
		"request", id,
		"source", best.source,
		"candidates", len(candidates),
		"egressAmount", best.egress.String(),
	)

	return &Result{
		Source:             best.source,
		IntermediateAmount: best.intermediate,
		EgressAmount:       best.egress,
	}, nil
}

// brokerGrace bounds how long a straggling broker reference can delay a
// request once every provider has already answered.
const brokerGrace = 200 * time.Millisecond

// collect gathers responses until every provider connected at broadcast time
// has answered and the broker attempt finished, or the timeout fires. Once
// the providers are all in, the broker gets only a short grace window.
func (a *Aggregator) collect(ctx context.Context, id string, req *pendingRequest, expected []string, brokerCh chan *archive.BrokerQuote) ([]candidate, error) {
	awaiting := make(map[string]struct{}, len(expected))
	for _, providerID := range expected {
		awaiting[providerID] = struct{}{}
	}

	var candidates []candidate
	brokerPending := true

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	var graceCh <-chan time.Time

	for len(awaiting) > 0 || brokerPending {
		if len(awaiting) == 0 && graceCh == nil {
			grace := time.NewTimer(brokerGrace)
			defer grace.Stop()
			graceCh = grace.C
		}

		select {
		case pq := <-req.responses:
			delete(awaiting, pq.providerID)
			candidates = append(candidates, candidate{
				source:       pq.providerID,
				intermediate: pq.resp.IntermediateAmount.Int,
				egress:       pq.resp.EgressAmount.Int,
			})

		case bq := <-brokerCh:
			brokerPending = false
			if bq != nil {
				candidates = append(candidates, candidate{
					source:       "broker",
					intermediate: bq.IntermediateAmount,
					egress:       bq.EgressAmount,
				})
			}

		case <-graceCh:
			a.logger.Debugw("broker reference missed the grace window", "request", id)
			return candidates, nil

		case <-timer.C:
			a.logger.Debugw("quote aggregation timed out",
				"request", id,
				"outstanding", len(awaiting),
				"brokerPending", brokerPending,
			)
			return candidates, nil

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return candidates, nil
}

// pickBest returns the candidate with the greatest egress amount. Iteration
// follows arrival order and only a strictly greater amount displaces the
// incumbent, so ties resolve to the first received.
func pickBest(candidates []candidate) *candidate {
	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if c.egress == nil {
			continue
		}
		if best == nil || c.egress.Cmp(best.egress) > 0 {
			best = c
		}
	}
	return best
}
