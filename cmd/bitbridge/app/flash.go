package app

import (
	"fmt"

	"github.com/goodieshq/bitbridge/internal/config"
	"github.com/goodieshq/bitbridge/internal/firmware"
	"github.com/goodieshq/bitbridge/internal/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newFlashCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "flash <path | s3://bucket/key>",
		Short: "Write a firmware image to the attached micro:bit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var objects firmware.Source
			if cfg.S3.Endpoint != "" {
				src, err := firmware.NewS3Source(firmware.S3Opts{
					Endpoint:        cfg.S3.Endpoint,
					AccessKeyID:     cfg.S3.AccessKeyID,
					SecretAccessKey: cfg.S3.SecretAccessKey,
					Region:          cfg.S3.Region,
					UseSSL:          cfg.S3.UseSSL,
					SkipVerify:      cfg.S3.SkipVerify,
				})
				if err != nil {
					return err
				}
				objects = src
			}

			image, err := firmware.NewLoader(objects).Load(ctx, args[0])
			if err != nil {
				return err
			}

			br := newBridge(cfg, nil, session.New())
			if err := br.Connect(ctx); err != nil {
				return err
			}
			defer br.Disconnect()

			if err := br.Flash(ctx, image); err != nil {
				return fmt.Errorf("flash %s: %w", args[0], err)
			}
			log.Info().Str("image", args[0]).Msg("Flash complete, the micro:bit will restart")
			return nil
		},
	}
}
