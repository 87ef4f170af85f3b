package swap

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Chain identifies a supported blockchain network.
type Chain string

const (
	ChainEthereum Chain = "Ethereum"
	ChainPolkadot Chain = "Polkadot"
	ChainBitcoin  Chain = "Bitcoin"
)

// AllChains lists every chain the indexer tracks.
var AllChains = []Chain{ChainEthereum, ChainPolkadot, ChainBitcoin}

// Asset identifies a swappable asset.
type Asset string

const (
	AssetETH  Asset = "ETH"
	AssetFLIP Asset = "FLIP"
	AssetUSDC Asset = "USDC"
	AssetDOT  Asset = "DOT"
	AssetBTC  Asset = "BTC"
)

// StableAsset is the asset every multi-hop swap routes through.
const StableAsset = AssetUSDC

// AllAssets lists every supported asset.
var AllAssets = []Asset{AssetETH, AssetFLIP, AssetUSDC, AssetDOT, AssetBTC}

var assetChains = map[Asset]Chain{
	AssetETH:  ChainEthereum,
	AssetFLIP: ChainEthereum,
	AssetUSDC: ChainEthereum,
	AssetDOT:  ChainPolkadot,
	AssetBTC:  ChainBitcoin,
}

// Chain returns the native chain of the asset.
func (a Asset) Chain() (Chain, error) {
	c, ok := assetChains[a]
	if !ok {
		return "", fmt.Errorf("unknown asset: %s", a)
	}
	return c, nil
}

// Valid reports whether the asset is supported.
func (a Asset) Valid() bool {
	_, ok := assetChains[a]
	return ok
}

// SwapType discriminates plain swaps from the two legs of a ccm swap.
type SwapType string

const (
	SwapTypeSwap         SwapType = "SWAP"
	SwapTypeCcmPrincipal SwapType = "CCM_PRINCIPAL"
	SwapTypeCcmGas       SwapType = "CCM_GAS"
)

// OriginType discriminates channel-linked swaps from direct vault calls.
type OriginType string

const (
	OriginDepositChannel OriginType = "DEPOSIT_CHANNEL"
	OriginVault          OriginType = "VAULT"
)

// FeeKind is the pipeline stage a fee was levied at.
type FeeKind string

const (
	FeeKindIngress   FeeKind = "INGRESS"
	FeeKindNetwork   FeeKind = "NETWORK"
	FeeKindLiquidity FeeKind = "LIQUIDITY"
	FeeKindBroker    FeeKind = "BROKER"
	FeeKindEgress    FeeKind = "EGRESS"
	FeeKindCcm       FeeKind = "CCM"
)

// FailureKind distinguishes swaps that failed from deposits that were ignored.
type FailureKind string

const (
	FailureKindFailed  FailureKind = "FAILED"
	FailureKindIgnored FailureKind = "IGNORED"
)

// DepositChannel is a chain address allocated for inbound funds.
// Rows are never mutated; a reissued (chain, address) pair gets a new row
// with a higher issued block.
type DepositChannel struct {
	ID          int64  `meddler:"id,pk"`
	Chain       Chain  `meddler:"chain"`
	Address     string `meddler:"address"`
	ChannelID   uint64 `meddler:"channel_id"`
	IssuedBlock uint64 `meddler:"issued_block"`
	IsSwapping  bool   `meddler:"is_swapping"`
}

// SwapChannel is the swap-specific extension of a deposit channel.
// (IssuedBlock, SrcChain, ChannelID) is unique; the numeric channel id alone
// is recycled across reissuances.
type SwapChannel struct {
	ID                    int64    `meddler:"id,pk"`
	IssuedBlock           uint64   `meddler:"issued_block"`
	SrcChain              Chain    `meddler:"src_chain"`
	ChannelID             uint64   `meddler:"channel_id"`
	SrcAsset              Asset    `meddler:"src_asset"`
	DestAsset             Asset    `meddler:"dest_asset"`
	DestChain             Chain    `meddler:"dest_chain"`
	DepositAddress        string   `meddler:"deposit_address"`
	DestAddress           string   `meddler:"dest_address"`
	ExpectedDepositAmount *big.Int `meddler:"expected_deposit_amount,amount"`
	BrokerCommissionBps   uint32   `meddler:"broker_commission_bps"`
	ExpiryBlock           uint64   `meddler:"expiry_block"`
	EstimatedExpiryAt     int64    `meddler:"estimated_expiry_at,zeroisnull"`
	CcmGasBudget          *big.Int `meddler:"ccm_gas_budget,amount"`
	CcmMessage            string   `meddler:"ccm_message,zeroisnull"`
	IsExpired             bool     `meddler:"is_expired"`
	OpenedAt              int64    `meddler:"opened_at"`
}

// CompositeID renders the channel identifier used by the status API.
func (c *SwapChannel) CompositeID() string {
	return fmt.Sprintf("%d-%s-%d", c.IssuedBlock, c.SrcChain, c.ChannelID)
}

// Swap is one swap attempt.
type Swap struct {
	ID                        int64        `meddler:"id,pk"`
	NativeID                  uint64       `meddler:"native_id"`
	ChannelID                 *int64       `meddler:"channel_id"`
	OriginType                OriginType   `meddler:"origin_type"`
	OriginTxHash              *common.Hash `meddler:"origin_tx_hash,hash"`
	SrcAsset                  Asset        `meddler:"src_asset"`
	DestAsset                 Asset        `meddler:"dest_asset"`
	DepositAmount             *big.Int     `meddler:"deposit_amount,amount"`
	SwapInputAmount           *big.Int     `meddler:"swap_input_amount,amount"`
	SwapOutputAmount          *big.Int     `meddler:"swap_output_amount,amount"`
	IntermediateAmount        *big.Int     `meddler:"intermediate_amount,amount"`
	DepositReceivedAt         int64        `meddler:"deposit_received_at,zeroisnull"`
	DepositReceivedBlockIndex string       `meddler:"deposit_received_block_index,zeroisnull"`
	SwapExecutedAt            int64        `meddler:"swap_executed_at,zeroisnull"`
	SwapExecutedBlockIndex    string       `meddler:"swap_executed_block_index,zeroisnull"`
	EgressID                  *int64       `meddler:"egress_id"`
	CcmGasBudget              *big.Int     `meddler:"ccm_gas_budget,amount"`
	CcmMessage                string       `meddler:"ccm_message,zeroisnull"`
	Type                      SwapType     `meddler:"type"`
}

// SwapFee is one fee row charged against a swap.
type SwapFee struct {
	ID     int64    `meddler:"id,pk"`
	SwapID int64    `meddler:"swap_id"`
	Kind   FeeKind  `meddler:"kind"`
	Asset  Asset    `meddler:"asset"`
	Amount *big.Int `meddler:"amount,amount"`
}

// Egress is a scheduled outbound payment on the destination chain.
type Egress struct {
	ID                  int64    `meddler:"id,pk"`
	Chain               Chain    `meddler:"chain"`
	NativeID            uint64   `meddler:"native_id"`
	Amount              *big.Int `meddler:"amount,amount"`
	ScheduledAt         int64    `meddler:"scheduled_at"`
	ScheduledBlockIndex string   `meddler:"scheduled_block_index"`
	BroadcastID         *int64   `meddler:"broadcast_id"`
}

// Broadcast is a batched outbound transaction on the destination chain.
type Broadcast struct {
	ID                  int64  `meddler:"id,pk"`
	Chain               Chain  `meddler:"chain"`
	NativeID            uint64 `meddler:"native_id"`
	RequestedAt         int64  `meddler:"requested_at"`
	RequestedBlockIndex string `meddler:"requested_block_index"`
	SucceededAt         int64  `meddler:"succeeded_at,zeroisnull"`
	SucceededBlockIndex string `meddler:"succeeded_block_index,zeroisnull"`
	AbortedAt           int64  `meddler:"aborted_at,zeroisnull"`
	AbortedBlockIndex   string `meddler:"aborted_block_index,zeroisnull"`
	ReplacedByID        *int64 `meddler:"replaced_by_id"`
}

// FailedSwap is a terminal failure record, independent of the happy path.
type FailedSwap struct {
	ID               int64       `meddler:"id,pk"`
	Kind             FailureKind `meddler:"kind"`
	Reason           string      `meddler:"reason"`
	ChannelID        *int64      `meddler:"channel_id"`
	SrcChain         Chain       `meddler:"src_chain"`
	SrcAsset         Asset       `meddler:"src_asset,zeroisnull"`
	Amount           *big.Int    `meddler:"amount,amount"`
	DestChain        Chain       `meddler:"dest_chain,zeroisnull"`
	DestAddress      string      `meddler:"dest_address,zeroisnull"`
	FailedAt         int64       `meddler:"failed_at"`
	FailedBlockIndex string      `meddler:"failed_block_index"`
}

// Pool holds AMM pool metadata used for fee rate lookups.
type Pool struct {
	ID                        int64  `meddler:"id,pk"`
	BaseAsset                 Asset  `meddler:"base_asset"`
	QuoteAsset                Asset  `meddler:"quote_asset"`
	LiquidityFeeHundredthPips uint32 `meddler:"liquidity_fee_hundredth_pips"`
}

// ChainTracking records the latest observed external chain height.
type ChainTracking struct {
	ID        int64  `meddler:"id,pk"`
	Chain     Chain  `meddler:"chain"`
	Height    uint64 `meddler:"height"`
	UpdatedAt int64  `meddler:"updated_at"`
}
