package ingest

import (
	"fmt"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
)

// The cursor is a single durable row holding the last successfully applied
// block height. It starts at -1 so the first applied block is height 0.

// ReadCursor returns the last applied block height.
func ReadCursor(q swap.Querier) (int64, error) {
	var height int64
	if err := q.QueryRow(`SELECT last_applied_block FROM ingest_state WHERE id = 1`).Scan(&height); err != nil {
		return 0, fmt.Errorf("failed to read ingest cursor: %w", err)
	}
	return height, nil
}

// AdvanceCursor moves the cursor from one height to the next with a
// conditional write. Anything other than exactly one affected row means a
// concurrent writer got there first, which must abort the pipeline.
func AdvanceCursor(q swap.Querier, from, to int64) error {
	res, err := q.Exec(`
		UPDATE ingest_state SET last_applied_block = ? WHERE id = 1 AND last_applied_block = ?
	`, to, from)
	if err != nil {
		return fmt.Errorf("failed to advance ingest cursor: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("cursor advance %d -> %d affected %d rows, concurrent writer detected", from, to, n)
	}
	return nil
}
