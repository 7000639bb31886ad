package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/forumd-dev/forumd/internal/config"
	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/ops"
	"github.com/forumd-dev/forumd/internal/setup"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: forumd [flags] <port>")
		os.Exit(2)
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil || !config.ValidPort(port) {
		fmt.Fprintln(os.Stderr, "port must be a number between 1024 and 65535")
		os.Exit(2)
	}

	cfg := config.MustLoad(configPath)
	cfg.Server.Port = port
	logger.Initialize(cfg.Logging.Level, cfg.Logging.JSON)

	deps, err := setup.Build(cfg)
	if err != nil {
		logger.Log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer deps.Acceptor.Close()

	if cfg.Ops.Addr != "" {
		go func() {
			if err := ops.Serve(cfg.Ops.Addr, deps.Store); err != nil {
				logger.Log.Error("ops endpoint failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := deps.Server.Serve(ctx); err != nil {
		logger.Log.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Log.Info("server shut down")
}
