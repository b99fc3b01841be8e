// Package cmd provides the CLI commands for mpdoutputs.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/famish99/mpdoutputs/internal/config"
	"github.com/famish99/mpdoutputs/internal/mpd"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

// Flag overrides, applied only when set on the command line
var (
	flagHost     string
	flagPort     int
	flagPassword string
	flagTimeout  time.Duration
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mpdoutputs",
	Short: "List and switch MPD audio outputs",
	Long: `mpdoutputs lists the audio outputs of a Music Player Daemon and turns
them on and off.

Configuration:
  Config is loaded from ./mpdoutputs.yaml, $HOME/.config/mpdoutputs/config.yaml
  or /etc/mpdoutputs/config.yaml.

  Environment variables override config values with the MPDOUTPUTS_ prefix.
  MPD_HOST (optionally password@host) and MPD_PORT are honoured as well.
  Example: MPD_HOST=secret@music.local mpdoutputs list`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./mpdoutputs.yaml)")
	flags.StringVar(&flagHost, "host", "", "daemon host, password@host or socket path")
	flags.IntVar(&flagPort, "port", 0, "daemon port")
	flags.StringVar(&flagPassword, "password", "", "daemon password")
	flags.DurationVar(&flagTimeout, "timeout", 0, "per-command timeout")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		loaded.SetHost(flagHost)
	}
	if flags.Changed("port") {
		loaded.Port = flagPort
	}
	if flags.Changed("password") {
		loaded.Password = flagPassword
	}
	if flags.Changed("timeout") {
		loaded.Timeout = flagTimeout
	}
	if flags.Changed("log-level") {
		loaded.LogLevel = flagLogLevel
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg = loaded
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	return nil
}

// parseLogLevel converts a config log level to slog.Level.
// Returns slog.LevelWarn for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// connect dials the configured daemon
func connect(ctx context.Context) (*mpd.Conn, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	return mpd.Dial(ctx, cfg.Address(),
		mpd.WithTimeout(cfg.Timeout),
		mpd.WithLogger(logger),
		mpd.WithPassword(cfg.Password),
	)
}
