package swap

import (
	"database/sql"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/db"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/migrations"
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

func testChannel(issuedBlock, channelID uint64) *SwapChannel {
	return &SwapChannel{
		IssuedBlock:           issuedBlock,
		SrcChain:              ChainEthereum,
		ChannelID:             channelID,
		SrcAsset:              AssetETH,
		DestAsset:             AssetDOT,
		DestChain:             ChainPolkadot,
		DepositAddress:        "0x1111111111111111111111111111111111111111",
		DestAddress:           "14abc",
		ExpectedDepositAmount: big.NewInt(1_000_000),
		BrokerCommissionBps:   15,
		ExpiryBlock:           issuedBlock + 100,
		OpenedAt:              1700000000,
	}
}

func TestUpsertSwapChannel(t *testing.T) {
	database := setupTestDB(t)

	c := testChannel(10, 7)
	require.NoError(t, UpsertSwapChannel(database, c))
	require.NotZero(t, c.ID)

	t.Run("update keeps non-zero expected amount", func(t *testing.T) {
		again := testChannel(10, 7)
		again.ExpectedDepositAmount = nil
		again.BrokerCommissionBps = 20
		require.NoError(t, UpsertSwapChannel(database, again))
		require.Equal(t, c.ID, again.ID)

		got, err := ChannelByComposite(database, 10, ChainEthereum, 7)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, uint32(20), got.BrokerCommissionBps)
		require.NotNil(t, got.ExpectedDepositAmount)
		require.Equal(t, "1000000", got.ExpectedDepositAmount.String())
	})

	t.Run("reissuance creates a second row", func(t *testing.T) {
		reissued := testChannel(50, 7)
		require.NoError(t, UpsertSwapChannel(database, reissued))
		require.NotEqual(t, c.ID, reissued.ID)
	})
}

func TestNewestChannelForDeposit(t *testing.T) {
	database := setupTestDB(t)

	old := testChannel(10, 1)
	require.NoError(t, UpsertSwapChannel(database, old))
	newer := testChannel(50, 2)
	require.NoError(t, UpsertSwapChannel(database, newer))

	got, err := NewestChannelForDeposit(database, AssetETH, old.DepositAddress, 60)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, newer.ID, got.ID)

	t.Run("skips expired channels", func(t *testing.T) {
		// Height past newer's expiry but within old's replacement window.
		got, err := NewestChannelForDeposit(database, AssetETH, old.DepositAddress, newer.ExpiryBlock+1)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("unknown address resolves to nil", func(t *testing.T) {
		got, err := NewestChannelForDeposit(database, AssetETH, "0xdead", 60)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestSwapRoundTrip(t *testing.T) {
	database := setupTestDB(t)

	c := testChannel(10, 1)
	require.NoError(t, UpsertSwapChannel(database, c))

	s := &Swap{
		NativeID:          42,
		ChannelID:         &c.ID,
		OriginType:        OriginDepositChannel,
		SrcAsset:          AssetETH,
		DestAsset:         AssetDOT,
		DepositAmount:     big.NewInt(500),
		SwapInputAmount:   big.NewInt(495),
		DepositReceivedAt: 1700000100,
		Type:              SwapTypeSwap,
	}
	require.NoError(t, InsertSwap(database, s))
	require.NotZero(t, s.ID)

	got, err := SwapByNativeID(database, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, s.ID, got.ID)
	require.NotNil(t, got.ChannelID)
	require.Equal(t, c.ID, *got.ChannelID)
	require.Nil(t, got.SwapOutputAmount)
	require.Zero(t, got.SwapExecutedAt)

	got.SwapOutputAmount = big.NewInt(12345)
	got.SwapExecutedAt = 1700000200
	got.SwapExecutedBlockIndex = "11-3"
	require.NoError(t, UpdateSwap(database, got))

	latest, err := LatestSwapForChannel(database, c.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "12345", latest.SwapOutputAmount.String())
	require.Equal(t, "11-3", latest.SwapExecutedBlockIndex)

	missing, err := SwapByNativeID(database, 999)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFees(t *testing.T) {
	database := setupTestDB(t)

	s := &Swap{NativeID: 1, OriginType: OriginVault, SrcAsset: AssetBTC, DestAsset: AssetUSDC, Type: SwapTypeSwap}
	require.NoError(t, InsertSwap(database, s))

	require.NoError(t, AddFee(database, s.ID, FeeKindIngress, AssetBTC, big.NewInt(10)))
	require.NoError(t, AddFee(database, s.ID, FeeKindNetwork, AssetUSDC, big.NewInt(55)))

	fees, err := FeesForSwap(database, s.ID)
	require.NoError(t, err)
	require.Len(t, fees, 2)
	require.Equal(t, FeeKindIngress, fees[0].Kind)
	require.Equal(t, "10", fees[0].Amount.String())
	require.Equal(t, FeeKindNetwork, fees[1].Kind)
}

func TestBroadcastLifecycle(t *testing.T) {
	database := setupTestDB(t)

	e := &Egress{
		Chain:               ChainPolkadot,
		NativeID:            5,
		Amount:              big.NewInt(900),
		ScheduledAt:         1700000300,
		ScheduledBlockIndex: "20-1",
	}
	require.NoError(t, InsertEgress(database, e))

	b := &Broadcast{
		Chain:               ChainPolkadot,
		NativeID:            3,
		RequestedAt:         1700000310,
		RequestedBlockIndex: "21-0",
	}
	require.NoError(t, InsertBroadcast(database, b))

	n, err := LinkEgressToBroadcast(database, ChainPolkadot, 5, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	t.Run("linking an untracked egress affects nothing", func(t *testing.T) {
		n, err := LinkEgressToBroadcast(database, ChainPolkadot, 99, b.ID)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	n, err = MarkBroadcastSucceeded(database, ChainPolkadot, 3, 1700000400, "25-2")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	t.Run("terminal states are write-once", func(t *testing.T) {
		n, err := MarkBroadcastAborted(database, ChainPolkadot, 3, 1700000500, "30-0")
		require.NoError(t, err)
		require.Zero(t, n)

		got, err := BroadcastByNativeID(database, ChainPolkadot, 3)
		require.NoError(t, err)
		require.Equal(t, int64(1700000400), got.SucceededAt)
		require.Zero(t, got.AbortedAt)
	})

	t.Run("retry records replacement", func(t *testing.T) {
		retry := &Broadcast{Chain: ChainPolkadot, NativeID: 4, RequestedAt: 1700000600, RequestedBlockIndex: "31-0"}
		require.NoError(t, InsertBroadcast(database, retry))

		n, err := MarkBroadcastReplaced(database, ChainPolkadot, 3, retry.ID)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		got, err := BroadcastByNativeID(database, ChainPolkadot, 3)
		require.NoError(t, err)
		require.NotNil(t, got.ReplacedByID)
		require.Equal(t, retry.ID, *got.ReplacedByID)
	})
}

func TestPoolFeeRate(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, UpsertPool(database, AssetETH, StableAsset, 500))

	rate, err := PoolFeeRate(database, AssetETH)
	require.NoError(t, err)
	require.Equal(t, uint32(500), rate)

	require.NoError(t, UpsertPool(database, AssetETH, StableAsset, 700))
	rate, err = PoolFeeRate(database, AssetETH)
	require.NoError(t, err)
	require.Equal(t, uint32(700), rate)

	_, err = PoolFeeRate(database, AssetBTC)
	require.Error(t, err)
}

func TestExpireChannels(t *testing.T) {
	database := setupTestDB(t)

	a := testChannel(10, 1) // expires at 110
	require.NoError(t, UpsertSwapChannel(database, a))
	b := testChannel(100, 2) // expires at 200
	require.NoError(t, UpsertSwapChannel(database, b))

	n, err := ExpireChannels(database, ChainEthereum, 110)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	gotA, err := ChannelByComposite(database, 10, ChainEthereum, 1)
	require.NoError(t, err)
	require.True(t, gotA.IsExpired)

	gotB, err := ChannelByComposite(database, 100, ChainEthereum, 2)
	require.NoError(t, err)
	require.False(t, gotB.IsExpired)

	t.Run("idempotent on replay", func(t *testing.T) {
		n, err := ExpireChannels(database, ChainEthereum, 110)
		require.NoError(t, err)
		require.Zero(t, n)
	})
}

func TestChainTracking(t *testing.T) {
	database := setupTestDB(t)

	h, err := ChainHeight(database, ChainBitcoin)
	require.NoError(t, err)
	require.Zero(t, h)

	require.NoError(t, UpsertChainTracking(database, ChainBitcoin, 800000, 1700000000))
	require.NoError(t, UpsertChainTracking(database, ChainBitcoin, 800001, 1700000600))

	h, err = ChainHeight(database, ChainBitcoin)
	require.NoError(t, err)
	require.Equal(t, uint64(800001), h)
}

func TestFailedSwap(t *testing.T) {
	database := setupTestDB(t)

	c := testChannel(10, 1)
	require.NoError(t, UpsertSwapChannel(database, c))

	f := &FailedSwap{
		Kind:             FailureKindIgnored,
		Reason:           "BelowMinimumDeposit",
		ChannelID:        &c.ID,
		SrcChain:         ChainEthereum,
		SrcAsset:         AssetETH,
		Amount:           big.NewInt(1),
		FailedAt:         1700000000,
		FailedBlockIndex: "12-0",
	}
	require.NoError(t, InsertFailedSwap(database, f))

	got, err := FailedSwapForChannel(database, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, FailureKindIgnored, got.Kind)
	require.Equal(t, "BelowMinimumDeposit", got.Reason)
}
