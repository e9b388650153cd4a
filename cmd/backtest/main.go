// The backtest binary replays a leader's bet history from the command line
// and prints the result as JSON. It hits the same cache as the API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/truthplane/engine/internal/config"
	"github.com/truthplane/engine/internal/db"
	"github.com/truthplane/engine/pkg/backtest"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		leader     = flag.String("leader", "", "leader address to replay (required)")
		start      = flag.String("start", "", "range start, YYYY-MM-DD (default 3 months ago)")
		end        = flag.String("end", "", "range end, YYYY-MM-DD (default now)")
		capital    = flag.Float64("capital", 1.0, "initial capital, native units")
		allocation = flag.Float64("allocation", 100, "allocation percent per trade")
		maxBet     = flag.Float64("max-bet", 0, "max bet size, 0 disables")
		compound   = flag.Bool("compound", false, "size trades from current equity")
		stopLoss   = flag.Float64("stop-loss", 0, "halt at this drawdown percent, 0 disables")
	)
	flag.Parse()

	if *leader == "" {
		fmt.Fprintln(os.Stderr, "usage: backtest -leader 0x... [-start YYYY-MM-DD] [-end YYYY-MM-DD]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	now := time.Now().UTC()
	settings := backtest.Settings{
		Leader:            *leader,
		Start:             now.AddDate(0, -3, 0),
		End:               now,
		InitialCapital:    *capital,
		AllocationPercent: *allocation,
		MaxBetSize:        *maxBet,
		Compounding:       *compound,
		StopLossPercent:   *stopLoss,
	}
	if *start != "" {
		if settings.Start, err = time.Parse("2006-01-02", *start); err != nil {
			log.Fatal().Err(err).Msg("Invalid -start date")
		}
	}
	if *end != "" {
		if settings.End, err = time.Parse("2006-01-02", *end); err != nil {
			log.Fatal().Err(err).Msg("Invalid -end date")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := db.New(ctx, cfg.Database.GetDSN(), cfg.Database.PoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	runner := backtest.NewRunner(store, cfg.Bots.Backtest.CacheTTL, config.NewLogger("backtest"))
	result, err := runner.Run(ctx, settings)
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
	fmt.Println(string(out))
}
