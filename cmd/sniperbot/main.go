// Sniper Engine — an algorithmic order-execution bot for spot
// cryptocurrency markets. It runs any number of independent Sniper
// algorithms, each watching top-of-book for one symbol and firing IOC
// limit orders when price crosses its configured limit.
//
// Architecture:
//
//	main.go                 — entry point: loads config, wires the actor
//	                          mesh, starts everything, waits for SIGINT/SIGTERM
//	internal/feed            — Feed Distributor: multiplexes L1/L2 market
//	                          data websockets across every subscribed algo
//	internal/gateway         — Market Gateway: serializes order submission
//	                          and maps execution reports back by client_order_id
//	internal/container        — Algo Container: creates algorithms on
//	                          demand and routes feed/market events to them
//	internal/algo             — Sniper: the state machine that decides
//	                          when to fire and re-arm
//	internal/report           — per-algo log + terminal summary report
//	internal/api              — read-only HTTP status surface
//	internal/exchange         — REST + WebSocket adapter for the exchange
//	internal/config           — AlgorithmConfig (TOML) + MarketConfig (env)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sniper-engine/internal/algo"
	"sniper-engine/internal/api"
	"sniper-engine/internal/config"
	"sniper-engine/internal/container"
	"sniper-engine/internal/exchange"
	"sniper-engine/internal/feed"
	"sniper-engine/internal/gateway"
	"sniper-engine/internal/report"
	"sniper-engine/pkg/types"
)

func main() {
	algoCfgPath := "configs/algorithms.toml"
	if p := os.Getenv("SNIPER_ALGO_CONFIG"); p != "" {
		algoCfgPath = p
	}

	algoCfg, err := config.LoadAlgorithmConfig(algoCfgPath)
	if err != nil {
		slog.Error("failed to load algorithm config", "error", err, "path", algoCfgPath)
		os.Exit(1)
	}
	if err := algoCfg.Validate(); err != nil {
		slog.Error("invalid algorithm config", "error", err)
		os.Exit(1)
	}

	marketCfg, err := config.LoadMarketConfig()
	if err != nil {
		slog.Error("failed to load market config", "error", err)
		os.Exit(1)
	}

	logger := newLogger()

	auth := exchange.NewAuth(*marketCfg)
	dryRun := os.Getenv("DRY_RUN") == "true"
	restClient := exchange.NewClient(*marketCfg, auth, dryRun, logger)

	gw := gateway.NewGateway(restClient, logger)

	newStream := func(symbol, depth string) feed.Stream {
		url := fmt.Sprintf("%s/ws/%s@%s", marketCfg.WSBaseURL, symbol, depth)
		return exchange.NewMarketStream(url, symbol, depth, logger)
	}
	distributor := feed.NewDistributor(newStream, logger)

	recorder, err := report.Open("logs")
	if err != nil {
		logger.Error("failed to open report directory", "error", err)
		os.Exit(1)
	}

	factory := func(params types.AlgoParameters, feedClient *feed.Client, marketClient *gateway.Client, recorder *report.Recorder) container.Algo {
		return algo.NewSniper(params, feedClient, marketClient, recorder, logger)
	}
	cont := container.New("sniper-engine", distributor, gw, recorder, factory, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go distributor.Run(ctx)
	go gw.Run(ctx)

	userStream := exchange.NewUserStream(marketCfg.WSBaseURL+"/ws/userdata", auth, logger)
	go gw.RunExecutionReports(ctx, userStream)

	go cont.Run(ctx)

	for _, spec := range algoCfg.Algorithms {
		params, err := spec.ToParameters()
		if err != nil {
			logger.Error("skipping malformed algo entry", "algo_id", spec.AlgoID, "error", err)
			continue
		}
		cont.CreateAlgo(ctx, params)
	}

	var apiServer *api.Server
	if addr := os.Getenv("SNIPER_API_ADDR"); addr != "" {
		apiServer = api.NewServer(addr, cont, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		logger.Info("status server started", "addr", addr)
	}

	logger.Info("sniper engine started", "algorithms", len(algoCfg.Algorithms), "dry_run", dryRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop status server", "error", err)
		}
	}

	cancel()
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(os.Getenv("LOG_LEVEL"))}
	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
