package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradevault/config"
	"tradevault/core"
	"tradevault/native/escrow"
	"tradevault/observability/logging"
	"tradevault/rpc"
	"tradevault/state"
	"tradevault/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{
		Service:  cfg.ServiceName,
		Env:      cfg.Environment,
		FilePath: cfg.LogFile,
	})

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("open ledger database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ledger := state.NewLedger(db)
	engine := escrow.NewEngine()
	arbitrator, err := cfg.ArbitratorAddress()
	if err != nil {
		logger.Error("decode arbitrator address", "err", err)
		os.Exit(1)
	}
	fee, err := cfg.Fee()
	if err != nil {
		logger.Error("parse arbitration fee", "err", err)
		os.Exit(1)
	}
	if err := engine.SetArbitrator(arbitrator, fee); err != nil {
		logger.Error("configure arbitrator", "err", err)
		os.Exit(1)
	}

	node := core.NewNode(ledger, engine)
	server := rpc.NewServer(node, cfg.RPCAuthToken(), logger)

	rpcSrv := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("rpc server listening", "addr", cfg.RPCAddress)
		if err := rpcSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server", "err", err)
			os.Exit(1)
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddress)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", "err", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rpcSrv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
}
