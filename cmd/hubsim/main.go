package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goodieshq/bitbridge/internal/hubsim"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
}

func main() {
	host := pflag.String("host", "127.0.0.1", "Address to listen on")
	port := pflag.Uint16("port", 2000, "Port the bridge connects to with --tcp")
	school := pflag.String("school", "sim-school", "School id sent in the HELLO")
	hub := pflag.String("hub", "sim-hub", "Hub id sent in the HELLO")
	queries := pflag.StringSlice("query", []string{"carbon/index"}, "GET queries sent after the HELLO")
	timeout := pflag.Duration("timeout", 10*time.Second, "How long to wait for each response")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sim := hubsim.NewSimulator(hubsim.SimOpts{
		Host:    *host,
		Port:    *port,
		Timeout: *timeout,
		Script:  hubsim.Script(*school, *hub, *queries...),
		Hold:    true,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sim.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Hub simulator failed")
			cancel()
			return
		}
		log.Info().Msg("Hub simulator stopped")
	}()

	<-ctx.Done()
	wg.Wait()
}
