// Command filesyncd runs the filesync server: the HTTP file-transfer,
// catalog and heartbeat surface, and the WebSocket collaborative-editing
// endpoint, grounded on Polqt/crdtcollab's main.go signal-handling shape.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cshekharsharma/filesync/internal/catalog"
	"github.com/cshekharsharma/filesync/internal/config"
	"github.com/cshekharsharma/filesync/internal/logging"
	"github.com/cshekharsharma/filesync/internal/server"
	"github.com/cshekharsharma/filesync/internal/transfer"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (optional)")
	flag.Parse()

	cfg, err := config.LoadServer(*configFile)
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		log.Fatal("open catalog", zap.Error(err))
	}
	defer cat.Close()

	store, err := transfer.New(cfg.StorageRoot, cat, log)
	if err != nil {
		log.Fatal("init storage", zap.Error(err))
	}

	srv := server.New(cfg.ListenAddress, cat, store, cfg.SiteID, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("filesync server starting",
		zap.String("listen_address", cfg.ListenAddress),
		zap.String("storage_root", cfg.StorageRoot),
		zap.String("catalog_path", cfg.CatalogPath),
	)
	if err := srv.Run(ctx); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("filesync server stopped")
}
