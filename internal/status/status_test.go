package status

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/archive"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/db"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/migrations"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, migrations.RunMigrations(dbPath))

	database, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

type stubDepositTracker struct {
	pending *archive.PendingDeposit
	err     error
}

func (s *stubDepositTracker) GetPendingDeposit(ctx context.Context, chain swap.Chain, asset swap.Asset, address string) (*archive.PendingDeposit, error) {
	return s.pending, s.err
}

type stubBroadcastTracker struct {
	payload json.RawMessage
	err     error
}

func (s *stubBroadcastTracker) GetPendingBroadcast(ctx context.Context, chain swap.Chain, nativeID uint64) (json.RawMessage, error) {
	return s.payload, s.err
}

type fixture struct {
	channel *swap.SwapChannel
	swp     *swap.Swap
}

func seedSwap(t *testing.T, database *sql.DB) fixture {
	t.Helper()

	channel := &swap.SwapChannel{
		IssuedBlock:    100,
		SrcChain:       swap.ChainEthereum,
		ChannelID:      1,
		SrcAsset:       swap.AssetETH,
		DestAsset:      swap.AssetDOT,
		DestChain:      swap.ChainPolkadot,
		DepositAddress: "0xdeposit",
		DestAddress:    "14dest",
		ExpiryBlock:    10000,
		OpenedAt:       1700000000,
	}
	require.NoError(t, swap.UpsertSwapChannel(database, channel))

	s := &swap.Swap{
		NativeID:        1,
		ChannelID:       &channel.ID,
		OriginType:      swap.OriginDepositChannel,
		SrcAsset:        swap.AssetETH,
		DestAsset:       swap.AssetDOT,
		SwapInputAmount: big.NewInt(1000),
		Type:            swap.SwapTypeSwap,
	}
	require.NoError(t, swap.InsertSwap(database, s))

	return fixture{channel: channel, swp: s}
}

func advanceToBroadcast(t *testing.T, database *sql.DB, f fixture) *swap.Broadcast {
	t.Helper()

	f.swp.DepositAmount = big.NewInt(1100)
	f.swp.DepositReceivedAt = 1700000100
	f.swp.SwapOutputAmount = big.NewInt(900)
	f.swp.SwapExecutedAt = 1700000200

	egress := &swap.Egress{
		Chain: swap.ChainPolkadot, NativeID: 5, Amount: big.NewInt(880),
		ScheduledAt: 1700000300, ScheduledBlockIndex: "102-0",
	}
	require.NoError(t, swap.InsertEgress(database, egress))
	f.swp.EgressID = &egress.ID
	require.NoError(t, swap.UpdateSwap(database, f.swp))

	b := &swap.Broadcast{
		Chain: swap.ChainPolkadot, NativeID: 3,
		RequestedAt: 1700000400, RequestedBlockIndex: "103-0",
	}
	require.NoError(t, swap.InsertBroadcast(database, b))

	_, err := swap.LinkEgressToBroadcast(database, swap.ChainPolkadot, 5, b.ID)
	require.NoError(t, err)
	return b
}

func newResolver(database *sql.DB, deposits DepositTracker, broadcasts BroadcastTracker) *Resolver {
	return NewResolver(database, deposits, broadcasts, logger.NewNopLogger())
}

func TestResolveIdentifiers(t *testing.T) {
	database := setupTestDB(t)
	f := seedSwap(t, database)
	r := newResolver(database, nil, nil)
	ctx := context.Background()

	t.Run("by native id", func(t *testing.T) {
		got, err := r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, uint64(1), got.SwapID)
		require.Equal(t, f.channel.CompositeID(), got.ChannelID)
	})

	t.Run("by composite channel id", func(t *testing.T) {
		got, err := r.Resolve(ctx, "100-Ethereum-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, uint64(1), got.SwapID)
	})

	t.Run("by tx hash", func(t *testing.T) {
		hash := "0x1111111111111111111111111111111111111111111111111111111111111111"
		h := swap.Swap{
			NativeID:   2,
			OriginType: swap.OriginVault,
			SrcAsset:   swap.AssetBTC,
			DestAsset:  swap.AssetUSDC,
			Type:       swap.SwapTypeSwap,
		}
		th := gethcommon.HexToHash(hash)
		h.OriginTxHash = &th
		require.NoError(t, swap.InsertSwap(database, &h))

		got, err := r.Resolve(ctx, hash)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, uint64(2), got.SwapID)
		require.Empty(t, got.ChannelID)
	})

	t.Run("unknown returns nil", func(t *testing.T) {
		got, err := r.Resolve(ctx, "99999")
		require.NoError(t, err)
		require.Nil(t, got)

		got, err = r.Resolve(ctx, "not-an-id")
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestStatePrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("awaiting deposit", func(t *testing.T) {
		database := setupTestDB(t)
		seedSwap(t, database)
		r := newResolver(database, nil, nil)

		got, err := r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateAwaitingDeposit, got.State)
	})

	t.Run("deposit received and swap executed", func(t *testing.T) {
		database := setupTestDB(t)
		f := seedSwap(t, database)
		r := newResolver(database, nil, nil)

		f.swp.DepositReceivedAt = 1700000100
		require.NoError(t, swap.UpdateSwap(database, f.swp))
		got, err := r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateDepositReceived, got.State)

		f.swp.SwapExecutedAt = 1700000200
		require.NoError(t, swap.UpdateSwap(database, f.swp))
		got, err = r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateSwapExecuted, got.State)
	})

	t.Run("egress and broadcast progression", func(t *testing.T) {
		database := setupTestDB(t)
		f := seedSwap(t, database)
		b := advanceToBroadcast(t, database, f)

		r := newResolver(database, nil, &stubBroadcastTracker{})
		got, err := r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateBroadcastRequested, got.State)

		inFlight := newResolver(database, nil, &stubBroadcastTracker{payload: json.RawMessage(`{"txRef":"abc"}`)})
		got, err = inFlight.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateBroadcasted, got.State)

		_, err = swap.MarkBroadcastSucceeded(database, swap.ChainPolkadot, b.NativeID, 1700000500, "104-0")
		require.NoError(t, err)
		got, err = r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateComplete, got.State)
		require.Equal(t, "880", got.EgressAmount.String())
	})

	t.Run("aborted broadcast", func(t *testing.T) {
		database := setupTestDB(t)
		f := seedSwap(t, database)
		b := advanceToBroadcast(t, database, f)

		_, err := swap.MarkBroadcastAborted(database, swap.ChainPolkadot, b.NativeID, 1700000500, "104-0")
		require.NoError(t, err)

		r := newResolver(database, nil, nil)
		got, err := r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateBroadcastAborted, got.State)
	})

	t.Run("failure overrides completed broadcast", func(t *testing.T) {
		database := setupTestDB(t)
		f := seedSwap(t, database)
		b := advanceToBroadcast(t, database, f)

		_, err := swap.MarkBroadcastSucceeded(database, swap.ChainPolkadot, b.NativeID, 1700000500, "104-0")
		require.NoError(t, err)

		require.NoError(t, swap.InsertFailedSwap(database, &swap.FailedSwap{
			Kind:             swap.FailureKindIgnored,
			Reason:           "BelowMinimumDeposit",
			ChannelID:        &f.channel.ID,
			SrcChain:         swap.ChainEthereum,
			FailedAt:         1700000600,
			FailedBlockIndex: "105-0",
		}))

		r := newResolver(database, nil, nil)
		got, err := r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateFailed, got.State)
		require.Equal(t, "BelowMinimumDeposit", got.FailureReason)
	})
}

func TestRetriedBroadcastIsFollowed(t *testing.T) {
	database := setupTestDB(t)
	f := seedSwap(t, database)
	b := advanceToBroadcast(t, database, f)

	retry := &swap.Broadcast{
		Chain: swap.ChainPolkadot, NativeID: 4,
		RequestedAt: 1700000450, RequestedBlockIndex: "104-0",
	}
	require.NoError(t, swap.InsertBroadcast(database, retry))
	_, err := swap.MarkBroadcastReplaced(database, swap.ChainPolkadot, b.NativeID, retry.ID)
	require.NoError(t, err)

	_, err = swap.MarkBroadcastSucceeded(database, swap.ChainPolkadot, retry.NativeID, 1700000500, "105-0")
	require.NoError(t, err)

	r := newResolver(database, nil, nil)
	got, err := r.Resolve(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, StateComplete, got.State)
}

func TestBroadcastReplacementCycleIsDetected(t *testing.T) {
	database := setupTestDB(t)
	f := seedSwap(t, database)
	b := advanceToBroadcast(t, database, f)

	retry := &swap.Broadcast{
		Chain: swap.ChainPolkadot, NativeID: 4,
		RequestedAt: 1700000450, RequestedBlockIndex: "104-0",
	}
	require.NoError(t, swap.InsertBroadcast(database, retry))

	// Corrupt replacement rows pointing at each other must not hang the
	// resolver.
	_, err := swap.MarkBroadcastReplaced(database, swap.ChainPolkadot, b.NativeID, retry.ID)
	require.NoError(t, err)
	_, err = swap.MarkBroadcastReplaced(database, swap.ChainPolkadot, retry.NativeID, b.ID)
	require.NoError(t, err)

	r := newResolver(database, nil, nil)
	_, err = r.Resolve(context.Background(), "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "replacement cycle")
}

func TestLiveProbesDegradeToUnknown(t *testing.T) {
	ctx := context.Background()

	t.Run("broadcast probe failure", func(t *testing.T) {
		database := setupTestDB(t)
		f := seedSwap(t, database)
		advanceToBroadcast(t, database, f)

		r := newResolver(database, nil, &stubBroadcastTracker{err: errors.New("node down")})
		got, err := r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateBroadcastRequested, got.State)
	})

	t.Run("deposit probe failure", func(t *testing.T) {
		database := setupTestDB(t)
		seedSwap(t, database)

		r := newResolver(database, &stubDepositTracker{err: errors.New("node down")}, nil)
		got, err := r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateAwaitingDeposit, got.State)
		require.Nil(t, got.PendingDeposit)
	})

	t.Run("deposit probe merges pending activity", func(t *testing.T) {
		database := setupTestDB(t)
		seedSwap(t, database)

		pending := &archive.PendingDeposit{Amount: events.NewAmount(big.NewInt(500)), Confirmations: 1}
		r := newResolver(database, &stubDepositTracker{pending: pending}, nil)
		got, err := r.Resolve(ctx, "1")
		require.NoError(t, err)
		require.Equal(t, StateAwaitingDeposit, got.State)
		require.NotNil(t, got.PendingDeposit)
		require.Equal(t, "500", got.PendingDeposit.Amount.String())
	})
}
