package handlers

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestEgressFeeCache(t *testing.T) {
	env := &stubEnv{fee: big.NewInt(150)}
	cache := NewEgressFeeCache(env, time.Minute)

	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	hash := common.HexToHash("0x01")

	fee, err := cache.EgressFee(ctx, swap.AssetDOT, big.NewInt(1000), hash)
	require.NoError(t, err)
	require.Equal(t, "150", fee.String())
	require.Equal(t, 1, env.calls)

	t.Run("hit within ttl", func(t *testing.T) {
		fee, err := cache.EgressFee(ctx, swap.AssetDOT, big.NewInt(1000), hash)
		require.NoError(t, err)
		require.Equal(t, "150", fee.String())
		require.Equal(t, 1, env.calls)
	})

	t.Run("different key misses", func(t *testing.T) {
		_, err := cache.EgressFee(ctx, swap.AssetDOT, big.NewInt(2000), hash)
		require.NoError(t, err)
		require.Equal(t, 2, env.calls)

		_, err = cache.EgressFee(ctx, swap.AssetDOT, big.NewInt(1000), common.HexToHash("0x02"))
		require.NoError(t, err)
		require.Equal(t, 3, env.calls)
	})

	t.Run("expired entry refetches", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		_, err := cache.EgressFee(ctx, swap.AssetDOT, big.NewInt(1000), hash)
		require.NoError(t, err)
		require.Equal(t, 4, env.calls)
	})
}
