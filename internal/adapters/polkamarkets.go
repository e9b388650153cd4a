package adapters

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/models"
)

// Polkamarkets forecasting protocol on Moonbeam, USDC-denominated
// (6 decimals).
const polkamarketsSubgraph = "https://api.thegraph.com/subgraphs/name/polkamarkets/polkamarkets-moonbeam"

// NewPolkamarkets builds the Polkamarkets adapter: outcome 0 is YES/bull.
func NewPolkamarkets(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) Adapter {
	queries := sgQueries{
		BetsForUser: `query ($user: String!, $since: Int!) {
			bets: marketActions(where: {user: $user, action: buy, timestamp_gte: $since}, orderBy: timestamp, first: 500) {
				id
				actor: user
				amount: value
				side: outcomeId
				market: marketId
				timestamp
				txHash: transactionHash
			}
		}`,
		BetsForMarket: `query ($market: String!) {
			bets: marketActions(where: {marketId: $market, action: buy}, orderBy: timestamp, first: 1000) {
				id
				actor: user
				amount: value
				side: outcomeId
				market: marketId
				timestamp
				txHash: transactionHash
			}
		}`,
		RecentBets: `query ($since: Int!, $limit: Int!) {
			bets: marketActions(where: {action: buy, timestamp_gte: $since}, orderBy: timestamp, orderDirection: desc, first: $limit) {
				id
				actor: user
				amount: value
				side: outcomeId
				market: marketId
				timestamp
				txHash: transactionHash
			}
		}`,
		BetsInRange: `query ($from: Int!, $to: Int!, $skip: Int!) {
			bets: marketActions(where: {action: buy, timestamp_gte: $from, timestamp_lt: $to}, orderBy: timestamp, first: 500, skip: $skip) {
				id
				actor: user
				amount: value
				side: outcomeId
				market: marketId
				timestamp
				txHash: transactionHash
			}
		}`,
		Market: `query ($id: ID!) {
			market(id: $id) {
				id
				title: question
				yesPrice: outcomePrice
				volume
				resolved: isResolved
				winnerSide: resolvedOutcomeId
				resolvedAt: resolvedAt
				active: isOpen
			}
		}`,
		ActiveMarkets: `query ($limit: Int!) {
			markets(where: {isOpen: true}, orderBy: volume, orderDirection: desc, first: $limit) {
				id
				title: question
				yesPrice: outcomePrice
				volume
				resolved: isResolved
				winnerSide: resolvedOutcomeId
				active: isOpen
			}
		}`,
	}

	mapSide := func(side string) (models.Direction, bool) {
		switch side {
		case "0":
			return models.DirectionBull, true
		case "1":
			return models.DirectionBear, true
		}
		// "-1" marks a voided market.
		return "", false
	}

	return newSubgraphVenue(models.PlatformPolkamarkets, "forecasting", polkamarketsSubgraph, 6,
		queries, mapSide, retryCfg, pollInterval, log)
}
