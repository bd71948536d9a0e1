package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/medguard/medguard-client/internal/buildinfo"
	"github.com/medguard/medguard-client/internal/client/cli"
	"github.com/medguard/medguard-client/internal/client/config"
	"github.com/medguard/medguard-client/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)
}
