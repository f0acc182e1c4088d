package dbtypes

import (
	"github.com/shopspring/decimal"
)

type PoolType string

const (
	PoolTypeStable       PoolType = "STABLE"
	PoolTypeVolatile     PoolType = "VOLATILE"
	PoolTypeConcentrated PoolType = "CONCENTRATED"
)

type IndexerEventStatus struct {
	Id              string `db:"id"`
	EventName       string `db:"event_name"`
	ChainId         uint64 `db:"chain_id"`
	ContractAddress string `db:"contract_address"`
	LastBlockNumber uint64 `db:"last_block_number"`
}

type Token struct {
	Id                string          `db:"id"`
	ChainId           uint64          `db:"chain_id"`
	Address           string          `db:"address"`
	Symbol            string          `db:"symbol"`
	Name              string          `db:"name"`
	Decimals          uint8           `db:"decimals"`
	TradeVolume       decimal.Decimal `db:"trade_volume"`
	TradeVolumeUSD    decimal.Decimal `db:"trade_volume_usd"`
	TxCount           uint64          `db:"tx_count"`
	TotalLiquidity    decimal.Decimal `db:"total_liquidity"`
	TotalLiquidityETH decimal.Decimal `db:"total_liquidity_eth"`
	TotalLiquidityUSD decimal.Decimal `db:"total_liquidity_usd"`
	DerivedETH        decimal.Decimal `db:"derived_eth"`
	DerivedUSD        decimal.Decimal `db:"derived_usd"`
}

type Pool struct {
	Id                   string          `db:"id"`
	ChainId              uint64          `db:"chain_id"`
	Address              string          `db:"address"`
	Name                 string          `db:"name"`
	Token0Id             string          `db:"token0_id"`
	Token1Id             string          `db:"token1_id"`
	PoolType             PoolType        `db:"pool_type"`
	TickSpacing          int64           `db:"tick_spacing"`
	Reserve0             decimal.Decimal `db:"reserve0"`
	Reserve1             decimal.Decimal `db:"reserve1"`
	TotalSupply          decimal.Decimal `db:"total_supply"`
	ReserveETH           decimal.Decimal `db:"reserve_eth"`
	ReserveUSD           decimal.Decimal `db:"reserve_usd"`
	Token0Price          decimal.Decimal `db:"token0_price"`
	Token1Price          decimal.Decimal `db:"token1_price"`
	VolumeToken0         decimal.Decimal `db:"volume_token0"`
	VolumeToken1         decimal.Decimal `db:"volume_token1"`
	VolumeUSD            decimal.Decimal `db:"volume_usd"`
	VolumeETH            decimal.Decimal `db:"volume_eth"`
	TxCount              uint64          `db:"tx_count"`
	TotalFees0           decimal.Decimal `db:"total_fees0"`
	TotalFees1           decimal.Decimal `db:"total_fees1"`
	TotalFeesUSD         decimal.Decimal `db:"total_fees_usd"`
	TotalBribesUSD       decimal.Decimal `db:"total_bribes_usd"`
	TotalEmissions       decimal.Decimal `db:"total_emissions"`
	TotalEmissionsUSD    decimal.Decimal `db:"total_emissions_usd"`
	TotalVotes           decimal.Decimal `db:"total_votes"`
	CreatedAtTimestamp   uint64          `db:"created_at_timestamp"`
	CreatedAtBlockNumber uint64          `db:"created_at_block_number"`
}

type Transaction struct {
	Id        string `db:"id"`
	ChainId   uint64 `db:"chain_id"`
	Hash      string `db:"hash"`
	Block     uint64 `db:"block"`
	Timestamp uint64 `db:"timestamp"`
}

// Mint and Burn share one row layout.
type Mint struct {
	Id            string          `db:"id"`
	ChainId       uint64          `db:"chain_id"`
	TransactionId string          `db:"transaction_id"`
	PoolId        string          `db:"pool_id"`
	Timestamp     uint64          `db:"timestamp"`
	To            string          `db:"to_address"`
	Sender        string          `db:"sender"`
	Liquidity     decimal.Decimal `db:"liquidity"`
	Amount0       decimal.Decimal `db:"amount0"`
	Amount1       decimal.Decimal `db:"amount1"`
	AmountUSD     decimal.Decimal `db:"amount_usd"`
	LogIndex      uint64          `db:"log_index"`
}

type Burn Mint

type Swap struct {
	Id            string          `db:"id"`
	ChainId       uint64          `db:"chain_id"`
	TransactionId string          `db:"transaction_id"`
	PoolId        string          `db:"pool_id"`
	Timestamp     uint64          `db:"timestamp"`
	Sender        string          `db:"sender"`
	From          string          `db:"from_address"`
	To            string          `db:"to_address"`
	Amount0In     decimal.Decimal `db:"amount0_in"`
	Amount1In     decimal.Decimal `db:"amount1_in"`
	Amount0Out    decimal.Decimal `db:"amount0_out"`
	Amount1Out    decimal.Decimal `db:"amount1_out"`
	AmountUSD     decimal.Decimal `db:"amount_usd"`
	LogIndex      uint64          `db:"log_index"`
}

type User struct {
	Id      string `db:"id"`
	Address string `db:"address"`
}

type LiquidityPosition struct {
	Id                  string          `db:"id"`
	ChainId             uint64          `db:"chain_id"`
	PoolId              string          `db:"pool_id"`
	Account             string          `db:"account"`
	Position            decimal.Decimal `db:"position"`
	CreationBlock       uint64          `db:"creation_block"`
	CreationTransaction string          `db:"creation_transaction"`
	ClPositionTokenId   *string         `db:"cl_position_token_id"`
}

type PoolDayData struct {
	Id                string          `db:"id"`
	ChainId           uint64          `db:"chain_id"`
	PoolId            string          `db:"pool_id"`
	Date              uint64          `db:"date"`
	Reserve0          decimal.Decimal `db:"reserve0"`
	Reserve1          decimal.Decimal `db:"reserve1"`
	TotalSupply       decimal.Decimal `db:"total_supply"`
	ReserveUSD        decimal.Decimal `db:"reserve_usd"`
	ReserveETH        decimal.Decimal `db:"reserve_eth"`
	DailyVolumeToken0 decimal.Decimal `db:"daily_volume_token0"`
	DailyVolumeToken1 decimal.Decimal `db:"daily_volume_token1"`
	DailyVolumeUSD    decimal.Decimal `db:"daily_volume_usd"`
	DailyVolumeETH    decimal.Decimal `db:"daily_volume_eth"`
	DailyTxns         uint64          `db:"daily_txns"`
}

type PoolHourData struct {
	Id                 string          `db:"id"`
	ChainId            uint64          `db:"chain_id"`
	PoolId             string          `db:"pool_id"`
	HourStartUnix      uint64          `db:"hour_start_unix"`
	Reserve0           decimal.Decimal `db:"reserve0"`
	Reserve1           decimal.Decimal `db:"reserve1"`
	TotalSupply        decimal.Decimal `db:"total_supply"`
	ReserveUSD         decimal.Decimal `db:"reserve_usd"`
	ReserveETH         decimal.Decimal `db:"reserve_eth"`
	HourlyVolumeToken0 decimal.Decimal `db:"hourly_volume_token0"`
	HourlyVolumeToken1 decimal.Decimal `db:"hourly_volume_token1"`
	HourlyVolumeUSD    decimal.Decimal `db:"hourly_volume_usd"`
	HourlyVolumeETH    decimal.Decimal `db:"hourly_volume_eth"`
	HourlyTxns         uint64          `db:"hourly_txns"`
}

type TokenDayData struct {
	Id                  string          `db:"id"`
	ChainId             uint64          `db:"chain_id"`
	TokenId             string          `db:"token_id"`
	Date                uint64          `db:"date"`
	PriceUSD            decimal.Decimal `db:"price_usd"`
	PriceETH            decimal.Decimal `db:"price_eth"`
	TotalLiquidityToken decimal.Decimal `db:"total_liquidity_token"`
	TotalLiquidityETH   decimal.Decimal `db:"total_liquidity_eth"`
	TotalLiquidityUSD   decimal.Decimal `db:"total_liquidity_usd"`
	DailyVolumeToken    decimal.Decimal `db:"daily_volume_token"`
	DailyVolumeETH      decimal.Decimal `db:"daily_volume_eth"`
	DailyVolumeUSD      decimal.Decimal `db:"daily_volume_usd"`
	DailyTxns           uint64          `db:"daily_txns"`
}

type OverallDayData struct {
	Id                  string          `db:"id"`
	ChainId             uint64          `db:"chain_id"`
	Date                uint64          `db:"date"`
	FeesUSD             decimal.Decimal `db:"fees_usd"`
	TxCount             uint64          `db:"tx_count"`
	VolumeETH           decimal.Decimal `db:"volume_eth"`
	VolumeUSD           decimal.Decimal `db:"volume_usd"`
	LiquidityETH        decimal.Decimal `db:"liquidity_eth"`
	LiquidityUSD        decimal.Decimal `db:"liquidity_usd"`
	TotalTradeVolumeETH decimal.Decimal `db:"total_trade_volume_eth"`
	TotalTradeVolumeUSD decimal.Decimal `db:"total_trade_volume_usd"`
}

type Statistics struct {
	Id                   string          `db:"id"`
	ChainId              uint64          `db:"chain_id"`
	TotalBribesUSD       decimal.Decimal `db:"total_bribes_usd"`
	TotalFeesUSD         decimal.Decimal `db:"total_fees_usd"`
	TotalPairsCreated    uint64          `db:"total_pairs_created"`
	TotalTradeVolumeETH  decimal.Decimal `db:"total_trade_volume_eth"`
	TotalTradeVolumeUSD  decimal.Decimal `db:"total_trade_volume_usd"`
	TotalVolumeLockedETH decimal.Decimal `db:"total_volume_locked_eth"`
	TotalVolumeLockedUSD decimal.Decimal `db:"total_volume_locked_usd"`
	TxCount              uint64          `db:"tx_count"`
}
