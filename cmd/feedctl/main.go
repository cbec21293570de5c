package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/feedctl/internal/engine"
	"github.com/danmuck/feedctl/internal/logging"
	"github.com/danmuck/feedctl/internal/observability"
)

func main() {
	path := flag.String("config", "cmd/feedctl/config.toml", "feedctl service config path")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, feed, err := loadServiceConfig(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
		os.Exit(1)
	}
	sink, closers, err := feed.Consumers(observability.InitLogger(feed.Name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
		os.Exit(1)
	}

	svc := engine.NewService(cfg, sink, closers...)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "feedctl: %v\n", err)
		os.Exit(1)
	}
}
