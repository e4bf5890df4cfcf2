// Command stockhub-proxy serves the stockhub data access layer to a local UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/stockhub-client/internal/di"
	"github.com/Sternrassler/stockhub-client/pkg/config"
	"github.com/Sternrassler/stockhub-client/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "stockhub-proxy: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	flags := flag.NewFlagSet("stockhub-proxy", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", os.Getenv("STOCKHUB_CONFIG"), "config file path (optional)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logging.Setup(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Pretty,
		Output:  stderr,
		Service: "stockhub-proxy",
	})

	log.Info().
		Str("backend", cfg.Backend.URL).
		Str("cache", cfg.Cache.Backend).
		Int("port", cfg.Server.Port).
		Msg("Starting stockhub proxy")

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	return app.Run(ctx)
}
