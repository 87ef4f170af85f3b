package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/dispatch"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/metrics"
)

// BlockSource serves ordered batches of blocks, filtered server-side to the
// given event names.
type BlockSource interface {
	GetBlocks(ctx context.Context, minHeight uint64, limit uint64, eventNames []string) ([]events.Block, error)
}

// Ingester is the block ingestion pipeline: it advances from the durable
// cursor to the chain tip, applying every event exactly once, in block and
// in-block order, one transaction per block.
type Ingester struct {
	db           *sql.DB
	source       BlockSource
	table        *dispatch.Table
	batchSize    uint64
	pollInterval time.Duration
	logger       *logger.Logger

	eventNames []string
}

// New creates an ingester. The event-name allowlist sent to the archive is
// derived from the dispatch table.
func New(db *sql.DB, source BlockSource, table *dispatch.Table, batchSize uint64, pollInterval time.Duration, log *logger.Logger) *Ingester {
	return &Ingester{
		db:           db,
		source:       source,
		table:        table,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		logger:       log,
		eventNames:   table.Names(),
	}
}

type fetchResult struct {
	blocks []events.Block
	err    error
}

// Run drives the pipeline until the context is cancelled or a fatal error
// occurs. Cancellation is checked once per loop iteration; an in-flight block
// transaction always completes.
func (i *Ingester) Run(ctx context.Context) error {
	cursor, err := ReadCursor(i.db)
	if err != nil {
		return err
	}
	metrics.LastAppliedBlock.Set(float64(cursor))
	i.logger.Infow("ingester starting", "cursor", cursor, "batchSize", i.batchSize)

	var pending chan fetchResult

	for {
		if ctx.Err() != nil {
			i.logger.Infow("ingester stopping", "cursor", cursor)
			return nil
		}

		var res fetchResult
		if pending != nil {
			res = <-pending
			pending = nil
		} else {
			res = i.fetch(ctx, uint64(cursor+1))
		}
		if res.err != nil {
			return fmt.Errorf("archive fetch failed: %w", res.err)
		}

		if len(res.blocks) == 0 {
			select {
			case <-time.After(i.pollInterval):
			case <-ctx.Done():
			}
			continue
		}

		// Overlap the next fetch with applying this batch, but only when the
		// batch came back full. A short batch means we reached the tip and
		// the next fetch would mostly come back empty anyway.
		if uint64(len(res.blocks)) == i.batchSize {
			nextHeight := res.blocks[len(res.blocks)-1].Height + 1
			ch := make(chan fetchResult, 1)
			go func() {
				ch <- i.fetch(ctx, nextHeight)
			}()
			pending = ch
		}

		for idx := range res.blocks {
			block := &res.blocks[idx]
			if err := i.applyBlock(ctx, cursor, block); err != nil {
				return err
			}
			cursor = int64(block.Height)

			metrics.LastAppliedBlock.Set(float64(cursor))
			metrics.BlocksApplied.Inc()
		}
	}
}

func (i *Ingester) fetch(ctx context.Context, minHeight uint64) fetchResult {
	blocks, err := i.source.GetBlocks(ctx, minHeight, i.batchSize, i.eventNames)
	return fetchResult{blocks: blocks, err: err}
}

// applyBlock applies one block in a single transaction. Assertion failures
// are fatal: retrying or skipping would desynchronize the derived state from
// the chain's history.
func (i *Ingester) applyBlock(ctx context.Context, expectedCursor int64, block *events.Block) error {
	start := time.Now()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin block transaction: %w", err)
	}
	defer tx.Rollback()

	// Single-writer invariant: the durable cursor must still be where this
	// process left it.
	cursor, err := ReadCursor(tx)
	if err != nil {
		return err
	}
	if cursor != expectedCursor {
		return fmt.Errorf("cursor height mismatch: expected %d, found %d, concurrent writer detected",
			expectedCursor, cursor)
	}

	// Monotonicity invariant: no gaps, no regression.
	if block.Height != uint64(cursor+1) {
		return fmt.Errorf("non-monotonic block height %d, cursor at %d", block.Height, cursor)
	}

	version, err := events.ParseSpecVersion(block.SpecID)
	if err != nil {
		return fmt.Errorf("block %d: %w", block.Height, err)
	}

	for idx := range block.Events {
		event := &block.Events[idx]

		handler, err := i.table.Lookup(event.Name, block.SpecID)
		if err != nil {
			return fmt.Errorf("block %d: %w", block.Height, err)
		}

		call := &dispatch.Call{
			Tx:      tx,
			Block:   block,
			Event:   event,
			Logger:  i.logger,
			Version: version,
		}

		if err := handler(ctx, call); err != nil {
			return fmt.Errorf("handler failed for %s at block %d (spec %s): %w",
				event.Name, block.Height, block.SpecID, err)
		}
		metrics.EventsApplied.WithLabelValues(event.Name).Inc()
	}

	if err := AdvanceCursor(tx, cursor, int64(block.Height)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit block %d: %w", block.Height, err)
	}

	metrics.BlockApplyTime.Observe(time.Since(start).Seconds())
	i.logger.Debugw("block applied", "height", block.Height, "events", len(block.Events))
	return nil
}
