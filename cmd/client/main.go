package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/useframi1/CloudP2P/internal/core/config"
	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/sdk/go/client"
)

func main() {
	configPath := flag.String("config", "configs/client1.yaml", "path to the client config file")
	payloadPath := flag.String("payload", "", "optional image file to use as the task payload")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	logger := log.New(log.ParseLevel(cfg.LogLevel))
	c := client.New(cfg, logger, nil)

	if *payloadPath != "" {
		data, err := os.ReadFile(*payloadPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading payload:", err)
			os.Exit(1)
		}
		c.SetPayload(filepath.Base(*payloadPath), data)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-stopCh
		cancel()
	}()

	if err := c.Run(ctx); err != nil {
		logger.Error("client interrupted", log.Error(err))
	}

	stats := c.Stats()
	logger.Info("request totals",
		log.Uint64("sent", stats.Sent),
		log.Uint64("succeeded", stats.Succeeded),
		log.Uint64("failed", stats.Failed))
}
