package app

import (
	"context"

	"github.com/goodieshq/bitbridge/internal/config"
	"github.com/goodieshq/bitbridge/internal/handler"
	"github.com/goodieshq/bitbridge/internal/metrics"
	"github.com/goodieshq/bitbridge/internal/session"
	"github.com/goodieshq/bitbridge/internal/status"
	"github.com/goodieshq/bitbridge/internal/translate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Bridge the hub until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	metrics.RegisterMetrics()

	sess := session.New()
	store := translate.NewStore()
	h := handler.NewHandler(handler.HandlerOpts{
		Store:    store,
		Session:  sess,
		Resolver: translate.NewResolver(translate.ResolverOpts{Timeout: cfg.Translations.RequestTimeout.Duration}),
	})
	br := newBridge(cfg, h, sess)
	if err := metrics.RegisterCodecStats(prometheus.DefaultRegisterer, &br.Codec().Stats); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return br.Run(ctx, cfg.Serial.Retry.Duration)
	})

	loader := translate.NewLoader(store, translate.LoaderOpts{URL: cfg.Translations.URL})
	switch {
	case cfg.Translations.URL != "":
		g.Go(func() error {
			return loader.Poll(ctx, cfg.Translations.PollInterval.Duration)
		})
	case cfg.Translations.File != "":
		g.Go(func() error {
			return loader.Watch(ctx, cfg.Translations.File)
		})
	default:
		log.Warn().Msg("No translations source configured, REST requests will be rejected")
	}

	if cfg.Status.Addr != "" {
		srv := status.NewServer(status.ServerOpts{
			Addr:    cfg.Status.Addr,
			Link:    br,
			Session: sess,
			Store:   store,
		})
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info().Bool("tcp", cfg.UseTCP()).Str("status_addr", cfg.Status.Addr).Msg("Bridge starting")
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Bridge stopped")
	return nil
}
