package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/goodieshq/bitbridge/cmd/bitbridge/app"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCommand(ctx).Execute(); err != nil {
		log.Error().Err(err).Msg("bitbridge failed")
		cancel()
		os.Exit(1)
	}
}
