package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/famish99/mpdoutputs/internal/mpd"
)

var watchFormat string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "List outputs every time they change",
	Long: `Print the output list, then print it again every time the daemon
reports an output change. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchFormat, "output", "o", "text", "output format: text, json, yaml")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(watchFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return watchOutputs(ctx, cmd, conn, watchFormat)
}

// watchOutputs prints the list, then waits for output events until ctx ends
func watchOutputs(ctx context.Context, cmd *cobra.Command, conn *mpd.Conn, format string) error {
	w := cmd.OutOrStdout()
	for {
		if err := printOutputs(w, conn, format); err != nil {
			return err
		}

		if _, err := conn.IdleContext(ctx, mpd.SubsystemOutput); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		logger.Debug("outputs changed")
		if format == "text" {
			fmt.Fprintln(w)
		}
	}
}
