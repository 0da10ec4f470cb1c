package app

import (
	"context"

	"github.com/goodieshq/bitbridge/internal/bridge"
	"github.com/goodieshq/bitbridge/internal/config"
	"github.com/goodieshq/bitbridge/internal/handler"
	"github.com/goodieshq/bitbridge/internal/session"
	"github.com/goodieshq/bitbridge/internal/transport"
	"github.com/goodieshq/bitbridge/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	commandName = "bitbridge"
	commandDesc = `bitbridge connects a micro:bit hub to the internet. It reads SLIP framed
requests from the hub's serial port, answers HELLO bonding and REST queries
through the translation table, and writes the framed responses back.`
)

// NewRootCommand builds the bitbridge command tree. Subcommands share the
// config loaded in the persistent pre-run.
func NewRootCommand(ctx context.Context) *cobra.Command {
	var (
		cfgPath string
		cfg     config.Config
	)

	cmd := &cobra.Command{
		Use:           commandName,
		Short:         "Serial bridge between a micro:bit hub and web services",
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := loaded.ApplyFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg = loaded

			zerolog.SetGlobalLevel(cfg.Level())
			log.Debug().Str("config", cfgPath).Str("level", cfg.LogLevel).Msg("Configuration loaded")
			return nil
		},
	}
	cmd.SetContext(ctx)

	fs := cmd.PersistentFlags()
	fs.StringVarP(&cfgPath, "config", "c", "", "Path to a TOML config file")
	config.AddFlags(fs)

	cmd.AddCommand(
		newRunCommand(&cfg),
		newFlashCommand(&cfg),
		newPortsCommand(),
	)
	return cmd
}

// newTransport picks TCP when an address is configured, USB serial otherwise
func newTransport(cfg *config.Config) transport.Transport {
	if cfg.UseTCP() {
		return transport.NewTCP(transport.TCPOpts{
			Addr:        cfg.TCP.Addr,
			DialTimeout: utils.Ptr(cfg.TCP.DialTimeout.Duration),
		})
	}
	return transport.NewSerial(transport.SerialOpts{
		Port:     cfg.Serial.Port,
		BaudRate: utils.Ptr(cfg.Serial.BaudRate),
		MountDir: cfg.Serial.MountDir,
	})
}

func newBridge(cfg *config.Config, h bridge.Handler, sess *session.State) *bridge.Bridge {
	if h == nil {
		h = handler.NewHandler(handler.HandlerOpts{Session: sess})
	}
	return bridge.NewBridge(bridge.BridgeOpts{
		Transport:   newTransport(cfg),
		Handler:     h,
		Session:     sess,
		ResumeDelay: utils.Ptr(cfg.Serial.ResumeDelay.Duration),
	})
}
