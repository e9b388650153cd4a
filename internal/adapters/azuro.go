package adapters

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/models"
)

// Azuro sports-betting protocol on Polygon, USDT-denominated (6 decimals).
const azuroSubgraph = "https://thegraph.azuro.org/subgraphs/name/azuro-protocol/azuro-api-polygon-v3"

// NewAzuro builds the Azuro adapter over the shared subgraph venue. Azuro
// encodes the two sides of a condition as outcome ids; odd ids are the
// home/first side.
func NewAzuro(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) Adapter {
	queries := sgQueries{
		BetsForUser: `query ($user: String!, $since: Int!) {
			bets(where: {actor: $user, createdBlockTimestamp_gte: $since}, orderBy: createdBlockTimestamp, first: 500) {
				id actor
				amount: rawAmount
				side: selectedOutcomeId
				market: conditionId
				timestamp: createdBlockTimestamp
				txHash: createdTxHash
			}
		}`,
		BetsForMarket: `query ($market: String!) {
			bets(where: {conditionId: $market}, orderBy: createdBlockTimestamp, first: 1000) {
				id actor
				amount: rawAmount
				side: selectedOutcomeId
				market: conditionId
				timestamp: createdBlockTimestamp
				txHash: createdTxHash
			}
		}`,
		RecentBets: `query ($since: Int!, $limit: Int!) {
			bets(where: {createdBlockTimestamp_gte: $since}, orderBy: createdBlockTimestamp, orderDirection: desc, first: $limit) {
				id actor
				amount: rawAmount
				side: selectedOutcomeId
				market: conditionId
				timestamp: createdBlockTimestamp
				txHash: createdTxHash
			}
		}`,
		BetsInRange: `query ($from: Int!, $to: Int!, $skip: Int!) {
			bets(where: {createdBlockTimestamp_gte: $from, createdBlockTimestamp_lt: $to}, orderBy: createdBlockTimestamp, first: 500, skip: $skip) {
				id actor
				amount: rawAmount
				side: selectedOutcomeId
				market: conditionId
				timestamp: createdBlockTimestamp
				txHash: createdTxHash
			}
		}`,
		Market: `query ($id: ID!) {
			market: condition(id: $id) {
				id
				title: conditionId
				yesPrice: outcomesPrices
				volume: turnover
				resolved: isResolved
				winnerSide: wonOutcomeId
				resolvedAt: resolvedBlockTimestamp
				active: canceled
			}
		}`,
		ActiveMarkets: `query ($limit: Int!) {
			markets: conditions(where: {status: Created}, orderBy: turnover, orderDirection: desc, first: $limit) {
				id
				title: conditionId
				yesPrice: outcomesPrices
				volume: turnover
				resolved: isResolved
				winnerSide: wonOutcomeId
				active: canceled
			}
		}`,
	}

	mapSide := func(side string) (models.Direction, bool) {
		if side == "" {
			return "", false
		}
		// Outcome ids alternate; the first (odd) id is the home side.
		last := side[len(side)-1]
		if (last-'0')%2 == 1 {
			return models.DirectionBull, true
		}
		return models.DirectionBear, true
	}

	return newSubgraphVenue(models.PlatformAzuro, "sports", azuroSubgraph, 6,
		queries, mapSide, retryCfg, pollInterval, log)
}
