package adapters

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/models"
)

// Overtime (Thales sports AMM) on Optimism, sUSD-denominated (18 decimals).
const overtimeSubgraph = "https://api.thegraph.com/subgraphs/name/thales-markets/overtime-optimism"

// NewOvertime builds the Overtime adapter. Positions: home maps to bull,
// away to bear; draws resolve with winner nil.
func NewOvertime(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) Adapter {
	queries := sgQueries{
		BetsForUser: `query ($user: String!, $since: Int!) {
			bets: marketTransactions(where: {account: $user, timestamp_gte: $since}, orderBy: timestamp, first: 500) {
				id
				actor: account
				amount: paid
				side: position
				market: wholeMarket
				timestamp
				txHash: hash
			}
		}`,
		BetsForMarket: `query ($market: String!) {
			bets: marketTransactions(where: {wholeMarket: $market}, orderBy: timestamp, first: 1000) {
				id
				actor: account
				amount: paid
				side: position
				market: wholeMarket
				timestamp
				txHash: hash
			}
		}`,
		RecentBets: `query ($since: Int!, $limit: Int!) {
			bets: marketTransactions(where: {timestamp_gte: $since}, orderBy: timestamp, orderDirection: desc, first: $limit) {
				id
				actor: account
				amount: paid
				side: position
				market: wholeMarket
				timestamp
				txHash: hash
			}
		}`,
		BetsInRange: `query ($from: Int!, $to: Int!, $skip: Int!) {
			bets: marketTransactions(where: {timestamp_gte: $from, timestamp_lt: $to}, orderBy: timestamp, first: 500, skip: $skip) {
				id
				actor: account
				amount: paid
				side: position
				market: wholeMarket
				timestamp
				txHash: hash
			}
		}`,
		Market: `query ($id: ID!) {
			market: sportMarket(id: $id) {
				id
				title: gameId
				yesPrice: homeOdds
				volume: poolSize
				resolved: isResolved
				winnerSide: finalResult
				resolvedAt: resolvedTimestamp
				active: isOpen
			}
		}`,
		ActiveMarkets: `query ($limit: Int!) {
			markets: sportMarkets(where: {isOpen: true}, orderBy: poolSize, orderDirection: desc, first: $limit) {
				id
				title: gameId
				yesPrice: homeOdds
				volume: poolSize
				resolved: isResolved
				winnerSide: finalResult
				active: isOpen
			}
		}`,
	}

	mapSide := func(side string) (models.Direction, bool) {
		switch side {
		case "home", "0", "1":
			return models.DirectionBull, true
		case "away", "2":
			return models.DirectionBear, true
		}
		// "3" is a draw.
		return "", false
	}

	return newSubgraphVenue(models.PlatformOvertime, "sports", overtimeSubgraph, 18,
		queries, mapSide, retryCfg, pollInterval, log)
}
