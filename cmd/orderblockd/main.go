package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/obdex/orderblock/params"
	"github.com/obdex/orderblock/pkg/api"
	"github.com/obdex/orderblock/pkg/exchange/asset"
	"github.com/obdex/orderblock/pkg/exchange/engine"
	"github.com/obdex/orderblock/pkg/exchange/market"
	"github.com/obdex/orderblock/pkg/exchange/order"
	"github.com/obdex/orderblock/pkg/exchange/store"
	"github.com/obdex/orderblock/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Persistence ----
	st, err := store.Open(cfg.Node.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DataDir, "err", err)
	}
	defer st.Close()

	// ---- Exchange core ----
	ledger := asset.NewLedger(st)
	markets, err := market.NewRegistry(st)
	if err != nil {
		sugar.Fatalw("market_registry_failed", "err", err)
	}
	orders, err := order.NewRegistry(st)
	if err != nil {
		sugar.Fatalw("order_registry_failed", "err", err)
	}
	ex, err := engine.New(markets, orders, ledger, logger)
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}
	sugar.Infow("exchange_ready", "markets", markets.Count(), "next_order_id", ex.FreeOrderID())

	// ---- API ----
	server := api.NewServer(ex, logger, cfg.API.AllowedOrigins)
	go func() {
		if err := server.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_failed", "err", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	sugar.Infow("shutting_down", "signal", sig.String())
}
