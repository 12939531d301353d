package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/useframi1/CloudP2P/internal/core/config"
	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/internal/injector"
)

func main() {
	configPath := flag.String("config", "configs/server1.yaml", "path to the server config file")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	logger := log.New(log.ParseLevel(cfg.LogLevel))
	srv := injector.ProvideServer(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-stopCh
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server terminated", log.Error(err))
	}
}
