package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/famish99/mpdoutputs/internal/mpd"
)

var enableOnly bool

var enableCmd = &cobra.Command{
	Use:   "enable <id|name>...",
	Short: "Enable audio outputs",
	Long: `Enable the given outputs, addressed by id or name.

With --only every other output is disabled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeOutputs(cmd, args, func(o *mpd.Output, selected bool) error {
			switch {
			case selected:
				return o.Enable()
			case enableOnly && o.Enabled():
				return o.Disable()
			}
			return nil
		})
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <id|name>...",
	Short: "Disable audio outputs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeOutputs(cmd, args, func(o *mpd.Output, selected bool) error {
			if selected {
				return o.Disable()
			}
			return nil
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <id|name>...",
	Short: "Toggle audio outputs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeOutputs(cmd, args, func(o *mpd.Output, selected bool) error {
			if selected {
				return o.Toggle()
			}
			return nil
		})
	},
}

func init() {
	enableCmd.Flags().BoolVar(&enableOnly, "only", false, "disable every other output")
	rootCmd.AddCommand(enableCmd, disableCmd, toggleCmd)
}

// changeOutputs lists the outputs, resolves keys against them and applies
// change to every output, telling it whether the output was named. All keys
// are resolved before anything changes.
func changeOutputs(cmd *cobra.Command, keys []string, change func(o *mpd.Output, selected bool) error) error {
	conn, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	outputs, err := conn.ListOutputs()
	if err != nil {
		return err
	}
	defer outputs.Close()

	selected := make(map[uint]bool, len(keys))
	for _, key := range keys {
		o := outputs.Find(key)
		if o == nil {
			return fmt.Errorf("no output matches %q", key)
		}
		selected[o.ID()] = true
	}

	var errs []error
	for _, o := range outputs {
		if err := change(o, selected[o.ID()]); err != nil {
			errs = append(errs, fmt.Errorf("output %d (%s): %w", o.ID(), o.Name(), err))
			continue
		}
		if selected[o.ID()] {
			logger.Info("output changed", "id", o.ID(), "name", o.Name(), "command", cmd.Name())
		}
	}
	return errors.Join(errs...)
}
