package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/pairchat/internal/server"
)

type flags struct {
	configPath     string
	port           string
	allowedOrigins []string
	maxMessageSize int64
	pingInterval   time.Duration
	logLevel       string
	logFormat      string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return newCommand(&flags{})
}

// newCommand binds the command line onto f.
func newCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pairchat",
		Short:         "Relay chat messages between two clients sharing a room",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			if err := server.ConfigureLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info().Str("port", cfg.Port).Dur("ping_interval", cfg.PingInterval).Msg("starting pairchat")
			return server.Run(ctx, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	fs.StringVarP(&f.port, "port", "p", "", "listen address, e.g. :8080")
	fs.StringSliceVar(&f.allowedOrigins, "allowed-origins", nil, "origins allowed to open websockets (\"*\" allows all)")
	fs.Int64Var(&f.maxMessageSize, "max-message-size", 0, "maximum inbound frame size in bytes")
	fs.DurationVar(&f.pingInterval, "ping-interval", 0, "liveness probe interval, e.g. 30s")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "", "log format (console, json)")

	cmd.SetContext(context.Background())
	return cmd
}

// loadConfig layers defaults, the config file, the environment and finally
// explicitly set flags.
func loadConfig(cmd *cobra.Command, f *flags) (*server.Config, error) {
	cfg := server.NewConfig()

	if f.configPath != "" {
		if err := server.LoadConfigFile(cfg, f.configPath); err != nil {
			return nil, err
		}
	}

	server.ApplyEnv(cfg)

	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Port = f.port
	}
	if changed("allowed-origins") {
		cfg.AllowedOrigins = f.allowedOrigins
	}
	if changed("max-message-size") {
		cfg.MaxMessageSize = f.maxMessageSize
	}
	if changed("ping-interval") {
		cfg.PingInterval = f.pingInterval
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}

	return cfg, nil
}
