package adapters

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/models"
)

// Thales binary-options AMM on Optimism, sUSD-denominated (18 decimals).
const thalesSubgraph = "https://api.thegraph.com/subgraphs/name/thales-markets/thales-optimism"

// NewThales builds the Thales adapter: UP positions map to bull, DOWN to
// bear.
func NewThales(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) Adapter {
	queries := sgQueries{
		BetsForUser: `query ($user: String!, $since: Int!) {
			bets: trades(where: {taker: $user, timestamp_gte: $since}, orderBy: timestamp, first: 500) {
				id
				actor: taker
				amount: takerAmount
				side: optionSide
				market
				timestamp
				txHash: transactionHash
			}
		}`,
		BetsForMarket: `query ($market: String!) {
			bets: trades(where: {market: $market}, orderBy: timestamp, first: 1000) {
				id
				actor: taker
				amount: takerAmount
				side: optionSide
				market
				timestamp
				txHash: transactionHash
			}
		}`,
		RecentBets: `query ($since: Int!, $limit: Int!) {
			bets: trades(where: {timestamp_gte: $since}, orderBy: timestamp, orderDirection: desc, first: $limit) {
				id
				actor: taker
				amount: takerAmount
				side: optionSide
				market
				timestamp
				txHash: transactionHash
			}
		}`,
		BetsInRange: `query ($from: Int!, $to: Int!, $skip: Int!) {
			bets: trades(where: {timestamp_gte: $from, timestamp_lt: $to}, orderBy: timestamp, first: 500, skip: $skip) {
				id
				actor: taker
				amount: takerAmount
				side: optionSide
				market
				timestamp
				txHash: transactionHash
			}
		}`,
		Market: `query ($id: ID!) {
			market(id: $id) {
				id
				title: currencyKey
				yesPrice: upPrice
				volume: poolSize
				resolved: isResolved
				winnerSide: result
				resolvedAt: expiryDate
				active: isOpen
			}
		}`,
		ActiveMarkets: `query ($limit: Int!) {
			markets(where: {isOpen: true}, orderBy: poolSize, orderDirection: desc, first: $limit) {
				id
				title: currencyKey
				yesPrice: upPrice
				volume: poolSize
				resolved: isResolved
				winnerSide: result
				active: isOpen
			}
		}`,
	}

	mapSide := func(side string) (models.Direction, bool) {
		switch side {
		case "long", "up", "UP", "0":
			return models.DirectionBull, true
		case "short", "down", "DOWN", "1":
			return models.DirectionBear, true
		}
		return "", false
	}

	return newSubgraphVenue(models.PlatformThales, "crypto", thalesSubgraph, 18,
		queries, mapSide, retryCfg, pollInterval, log)
}
