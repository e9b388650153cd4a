package adapters

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/truthplane/engine/internal/models"
)

// SX Bet sports exchange on SX Network, USDC-denominated (6 decimals).
const sxbetSubgraph = "https://graph.sx.technology/subgraphs/name/sx-bet/sx-bet"

// NewSXBet builds the SX Bet adapter: the maker-side outcome one maps to
// bull (home), outcome two to bear (away).
func NewSXBet(retryCfg RetryConfig, pollInterval time.Duration, log zerolog.Logger) Adapter {
	queries := sgQueries{
		BetsForUser: `query ($user: String!, $since: Int!) {
			bets: trades(where: {bettor: $user, betTime_gte: $since}, orderBy: betTime, first: 500) {
				id
				actor: bettor
				amount: stake
				side: bettingOutcomeOne
				market: marketHash
				timestamp: betTime
				txHash: transactionHash
			}
		}`,
		BetsForMarket: `query ($market: String!) {
			bets: trades(where: {marketHash: $market}, orderBy: betTime, first: 1000) {
				id
				actor: bettor
				amount: stake
				side: bettingOutcomeOne
				market: marketHash
				timestamp: betTime
				txHash: transactionHash
			}
		}`,
		RecentBets: `query ($since: Int!, $limit: Int!) {
			bets: trades(where: {betTime_gte: $since}, orderBy: betTime, orderDirection: desc, first: $limit) {
				id
				actor: bettor
				amount: stake
				side: bettingOutcomeOne
				market: marketHash
				timestamp: betTime
				txHash: transactionHash
			}
		}`,
		BetsInRange: `query ($from: Int!, $to: Int!, $skip: Int!) {
			bets: trades(where: {betTime_gte: $from, betTime_lt: $to}, orderBy: betTime, first: 500, skip: $skip) {
				id
				actor: bettor
				amount: stake
				side: bettingOutcomeOne
				market: marketHash
				timestamp: betTime
				txHash: transactionHash
			}
		}`,
		Market: `query ($id: ID!) {
			market(id: $id) {
				id
				title: teamOneName
				yesPrice: line
				volume: volume
				resolved: reportedOnchain
				winnerSide: outcome
				resolvedAt: reportTime
				active: status
			}
		}`,
		ActiveMarkets: `query ($limit: Int!) {
			markets(where: {status: "ACTIVE"}, orderBy: volume, orderDirection: desc, first: $limit) {
				id
				title: teamOneName
				yesPrice: line
				volume: volume
				resolved: reportedOnchain
				winnerSide: outcome
				active: status
			}
		}`,
	}

	mapSide := func(side string) (models.Direction, bool) {
		switch side {
		case "true", "1":
			return models.DirectionBull, true
		case "false", "2":
			return models.DirectionBear, true
		}
		// Outcome 0 is void.
		return "", false
	}

	return newSubgraphVenue(models.PlatformSXBet, "sports", sxbetSubgraph, 6,
		queries, mapSide, retryCfg, pollInterval, log)
}
