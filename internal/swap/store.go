package swap

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	_ "github.com/chainflip-io/chainflip-backend-sub000/internal/db" // meddler converters
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

// Querier is satisfied by *sql.DB and *sql.Tx. Handlers run against the
// per-block transaction; the read path runs against the plain connection.
type Querier = meddler.DB

// CreateDepositChannel inserts a generic deposit channel row. Re-applying the
// same issuance is a no-op so block replays stay idempotent.
func CreateDepositChannel(q Querier, c *DepositChannel) error {
	existing := new(DepositChannel)
	err := meddler.QueryRow(q, existing, `
		SELECT * FROM deposit_channel
		WHERE chain = ? AND address = ? AND channel_id = ? AND issued_block = ?
	`, c.Chain, c.Address, c.ChannelID, c.IssuedBlock)
	if err == nil {
		c.ID = existing.ID
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to look up deposit channel: %w", err)
	}

	if err := meddler.Insert(q, "deposit_channel", c); err != nil {
		return fmt.Errorf("failed to insert deposit channel: %w", err)
	}
	return nil
}

// UpsertSwapChannel inserts a swap channel or updates the existing row keyed by
// (issued_block, src_chain, channel_id). The update path never clobbers a
// previously-set non-zero expected deposit amount with a zero one.
func UpsertSwapChannel(q Querier, c *SwapChannel) error {
	existing := new(SwapChannel)
	err := meddler.QueryRow(q, existing, `
		SELECT * FROM swap_channel WHERE issued_block = ? AND src_chain = ? AND channel_id = ?
	`, c.IssuedBlock, c.SrcChain, c.ChannelID)

	if errors.Is(err, sql.ErrNoRows) {
		if err := meddler.Insert(q, "swap_channel", c); err != nil {
			return fmt.Errorf("failed to insert swap channel: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up swap channel: %w", err)
	}

	c.ID = existing.ID
	if isZeroAmount(c.ExpectedDepositAmount) && !isZeroAmount(existing.ExpectedDepositAmount) {
		c.ExpectedDepositAmount = existing.ExpectedDepositAmount
	}

	if err := meddler.Update(q, "swap_channel", c); err != nil {
		return fmt.Errorf("failed to update swap channel: %w", err)
	}
	return nil
}

func isZeroAmount(a *big.Int) bool {
	return a == nil || a.Sign() == 0
}

// NewestChannelForDeposit returns the most recently issued unexpired swap
// channel for (srcAsset, depositAddress) whose expiry block has not passed the
// given height. Returns nil when no channel matches; the caller decides
// whether that is an error.
func NewestChannelForDeposit(q Querier, srcAsset Asset, depositAddress string, height uint64) (*SwapChannel, error) {
	c := new(SwapChannel)
	err := meddler.QueryRow(q, c, `
		SELECT * FROM swap_channel
		WHERE src_asset = ? AND deposit_address = ? AND is_expired = 0 AND expiry_block >= ?
		ORDER BY issued_block DESC
		LIMIT 1
	`, srcAsset, depositAddress, height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel for deposit: %w", err)
	}
	return c, nil
}

// NewestChannelByAddress returns the most recently issued swap channel for a
// deposit address regardless of expiry. Used by the deposit-received handler,
// which must resolve the owning channel even when it expired between
// scheduling and receipt.
func NewestChannelByAddress(q Querier, srcChain Chain, depositAddress string) (*SwapChannel, error) {
	c := new(SwapChannel)
	err := meddler.QueryRow(q, c, `
		SELECT * FROM swap_channel
		WHERE src_chain = ? AND deposit_address = ?
		ORDER BY issued_block DESC
		LIMIT 1
	`, srcChain, depositAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel by address: %w", err)
	}
	return c, nil
}

// ChannelByRowID loads a swap channel by primary key.
func ChannelByRowID(q Querier, id int64) (*SwapChannel, error) {
	c := new(SwapChannel)
	err := meddler.QueryRow(q, c, `SELECT * FROM swap_channel WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel by id: %w", err)
	}
	return c, nil
}

// ChannelByComposite resolves a channel by its (issuedBlock, srcChain, channelID) key.
func ChannelByComposite(q Querier, issuedBlock uint64, srcChain Chain, channelID uint64) (*SwapChannel, error) {
	c := new(SwapChannel)
	err := meddler.QueryRow(q, c, `
		SELECT * FROM swap_channel WHERE issued_block = ? AND src_chain = ? AND channel_id = ?
	`, issuedBlock, srcChain, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel by composite id: %w", err)
	}
	return c, nil
}

// OpenChannelByChannelID returns the newest unexpired channel with the given
// numeric channel id on a chain. Used for open-channel idempotency.
func OpenChannelByChannelID(q Querier, srcChain Chain, channelID uint64) (*SwapChannel, error) {
	c := new(SwapChannel)
	err := meddler.QueryRow(q, c, `
		SELECT * FROM swap_channel
		WHERE src_chain = ? AND channel_id = ? AND is_expired = 0
		ORDER BY issued_block DESC
		LIMIT 1
	`, srcChain, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query open channel: %w", err)
	}
	return c, nil
}

// InsertSwap inserts a swap row and backfills its primary key.
func InsertSwap(q Querier, s *Swap) error {
	if err := meddler.Insert(q, "swap", s); err != nil {
		return fmt.Errorf("failed to insert swap: %w", err)
	}
	return nil
}

// UpdateSwap writes back all columns of the swap row.
func UpdateSwap(q Querier, s *Swap) error {
	if err := meddler.Update(q, "swap", s); err != nil {
		return fmt.Errorf("failed to update swap: %w", err)
	}
	return nil
}

// SwapByNativeID resolves a swap by its chain-native id. Returns nil when unknown.
func SwapByNativeID(q Querier, nativeID uint64) (*Swap, error) {
	s := new(Swap)
	err := meddler.QueryRow(q, s, `SELECT * FROM swap WHERE native_id = ?`, nativeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query swap by native id: %w", err)
	}
	return s, nil
}

// SwapByTxHash resolves a vault-origin swap by its originating transaction hash.
func SwapByTxHash(q Querier, txHash common.Hash) (*Swap, error) {
	s := new(Swap)
	err := meddler.QueryRow(q, s, `SELECT * FROM swap WHERE origin_tx_hash = ?`, txHash.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query swap by tx hash: %w", err)
	}
	return s, nil
}

// LatestSwapForChannel returns the most recent swap linked to a channel, or nil.
func LatestSwapForChannel(q Querier, channelID int64) (*Swap, error) {
	s := new(Swap)
	err := meddler.QueryRow(q, s, `
		SELECT * FROM swap WHERE channel_id = ? ORDER BY id DESC LIMIT 1
	`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query swap for channel: %w", err)
	}
	return s, nil
}

// AddFee records one fee row against a swap.
func AddFee(q Querier, swapID int64, kind FeeKind, asset Asset, amount *big.Int) error {
	fee := &SwapFee{
		SwapID: swapID,
		Kind:   kind,
		Asset:  asset,
		Amount: amount,
	}
	if err := meddler.Insert(q, "swap_fee", fee); err != nil {
		return fmt.Errorf("failed to insert %s fee: %w", kind, err)
	}
	return nil
}

// FeesForSwap loads all fee rows for a swap in insertion order.
func FeesForSwap(q Querier, swapID int64) ([]*SwapFee, error) {
	var fees []*SwapFee
	rows, err := q.Query(`SELECT * FROM swap_fee WHERE swap_id = ? ORDER BY id ASC`, swapID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fees: %w", err)
	}
	defer rows.Close()

	if err := meddler.ScanAll(rows, &fees); err != nil {
		return nil, fmt.Errorf("failed to scan fees: %w", err)
	}
	return fees, nil
}

// InsertEgress inserts an egress row.
func InsertEgress(q Querier, e *Egress) error {
	if err := meddler.Insert(q, "egress", e); err != nil {
		return fmt.Errorf("failed to insert egress: %w", err)
	}
	return nil
}

// EgressByID loads an egress row by primary key.
func EgressByID(q Querier, id int64) (*Egress, error) {
	e := new(Egress)
	err := meddler.QueryRow(q, e, `SELECT * FROM egress WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query egress: %w", err)
	}
	return e, nil
}

// LinkEgressToBroadcast points egresses at their broadcast. Egresses the
// indexer does not track yield zero affected rows, which is not an error.
func LinkEgressToBroadcast(q Querier, chain Chain, egressNativeID uint64, broadcastID int64) (int64, error) {
	res, err := q.Exec(`
		UPDATE egress SET broadcast_id = ? WHERE chain = ? AND native_id = ?
	`, broadcastID, chain, egressNativeID)
	if err != nil {
		return 0, fmt.Errorf("failed to link egress to broadcast: %w", err)
	}
	return res.RowsAffected()
}

// InsertBroadcast inserts a broadcast row.
func InsertBroadcast(q Querier, b *Broadcast) error {
	if err := meddler.Insert(q, "broadcast", b); err != nil {
		return fmt.Errorf("failed to insert broadcast: %w", err)
	}
	return nil
}

// BroadcastByNativeID resolves a broadcast by (chain, native id), or nil.
func BroadcastByNativeID(q Querier, chain Chain, nativeID uint64) (*Broadcast, error) {
	b := new(Broadcast)
	err := meddler.QueryRow(q, b, `
		SELECT * FROM broadcast WHERE chain = ? AND native_id = ?
	`, chain, nativeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcast: %w", err)
	}
	return b, nil
}

// BroadcastByID loads a broadcast row by primary key.
func BroadcastByID(q Querier, id int64) (*Broadcast, error) {
	b := new(Broadcast)
	err := meddler.QueryRow(q, b, `SELECT * FROM broadcast WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcast: %w", err)
	}
	return b, nil
}

// MarkBroadcastSucceeded conditionally terminates a broadcast. Untracked
// broadcasts and repeated applications both affect zero rows, which callers
// treat as a valid outcome.
func MarkBroadcastSucceeded(q Querier, chain Chain, nativeID uint64, at int64, blockIndex string) (int64, error) {
	res, err := q.Exec(`
		UPDATE broadcast SET succeeded_at = ?, succeeded_block_index = ?
		WHERE chain = ? AND native_id = ? AND succeeded_at IS NULL AND aborted_at IS NULL
	`, at, blockIndex, chain, nativeID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark broadcast succeeded: %w", err)
	}
	return res.RowsAffected()
}

// MarkBroadcastAborted conditionally aborts a broadcast, same semantics as success.
func MarkBroadcastAborted(q Querier, chain Chain, nativeID uint64, at int64, blockIndex string) (int64, error) {
	res, err := q.Exec(`
		UPDATE broadcast SET aborted_at = ?, aborted_block_index = ?
		WHERE chain = ? AND native_id = ? AND succeeded_at IS NULL AND aborted_at IS NULL
	`, at, blockIndex, chain, nativeID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark broadcast aborted: %w", err)
	}
	return res.RowsAffected()
}

// MarkBroadcastReplaced records the retry broadcast that supersedes an earlier one.
func MarkBroadcastReplaced(q Querier, chain Chain, nativeID uint64, replacedByID int64) (int64, error) {
	res, err := q.Exec(`
		UPDATE broadcast SET replaced_by_id = ?
		WHERE chain = ? AND native_id = ? AND replaced_by_id IS NULL
	`, replacedByID, chain, nativeID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark broadcast replaced: %w", err)
	}
	return res.RowsAffected()
}

// InsertFailedSwap records a terminal failure.
func InsertFailedSwap(q Querier, f *FailedSwap) error {
	if err := meddler.Insert(q, "failed_swap", f); err != nil {
		return fmt.Errorf("failed to insert failed swap: %w", err)
	}
	return nil
}

// FailedSwapExists reports whether a failure was already recorded at the
// given block index, which identifies the originating event.
func FailedSwapExists(q Querier, blockIndex string) (bool, error) {
	var n int
	if err := q.QueryRow(`SELECT COUNT(*) FROM failed_swap WHERE failed_block_index = ?`, blockIndex).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query failed swap: %w", err)
	}
	return n > 0, nil
}

// FailedSwapForChannel returns the first failure recorded against a channel, or nil.
func FailedSwapForChannel(q Querier, channelID int64) (*FailedSwap, error) {
	f := new(FailedSwap)
	err := meddler.QueryRow(q, f, `
		SELECT * FROM failed_swap WHERE channel_id = ? ORDER BY id ASC LIMIT 1
	`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query failed swap: %w", err)
	}
	return f, nil
}

// UpsertPool creates or updates the fee tier of a pool.
func UpsertPool(q Querier, baseAsset, quoteAsset Asset, feeHundredthPips uint32) error {
	_, err := q.Exec(`
		INSERT INTO pool (base_asset, quote_asset, liquidity_fee_hundredth_pips)
		VALUES (?, ?, ?)
		ON CONFLICT (base_asset, quote_asset)
		DO UPDATE SET liquidity_fee_hundredth_pips = excluded.liquidity_fee_hundredth_pips
	`, baseAsset, quoteAsset, feeHundredthPips)
	if err != nil {
		return fmt.Errorf("failed to upsert pool: %w", err)
	}
	return nil
}

// PoolFeeRate returns the liquidity fee tier in hundredths of a pip for the
// pool trading baseAsset against the stable asset.
func PoolFeeRate(q Querier, baseAsset Asset) (uint32, error) {
	var rate uint32
	err := q.QueryRow(`
		SELECT liquidity_fee_hundredth_pips FROM pool WHERE base_asset = ? AND quote_asset = ?
	`, baseAsset, StableAsset).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("no pool fee rate for %s/%s: %w", baseAsset, StableAsset, err)
	}
	return rate, nil
}

// UpsertChainTracking records the latest height observed for a chain.
func UpsertChainTracking(q Querier, chain Chain, height uint64, at int64) error {
	_, err := q.Exec(`
		INSERT INTO chain_tracking (chain, height, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (chain)
		DO UPDATE SET height = excluded.height, updated_at = excluded.updated_at
	`, chain, height, at)
	if err != nil {
		return fmt.Errorf("failed to upsert chain tracking: %w", err)
	}
	return nil
}

// ChainHeight returns the latest recorded height for a chain, or 0 when unknown.
func ChainHeight(q Querier, chain Chain) (uint64, error) {
	var height uint64
	err := q.QueryRow(`SELECT height FROM chain_tracking WHERE chain = ?`, chain).Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query chain height: %w", err)
	}
	return height, nil
}

// ExpireChannels flips is_expired on every non-expired channel of a chain whose
// expiry block is at or below the given height, in one statement.
func ExpireChannels(q Querier, chain Chain, height uint64) (int64, error) {
	res, err := q.Exec(`
		UPDATE swap_channel SET is_expired = 1
		WHERE src_chain = ? AND is_expired = 0 AND expiry_block <= ?
	`, chain, height)
	if err != nil {
		return 0, fmt.Errorf("failed to expire channels: %w", err)
	}
	return res.RowsAffected()
}
