package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/famish99/mpdoutputs/internal/mpd"
)

var listFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List audio outputs",
	Long: `List the daemon's audio outputs in daemon order.

Formats:
  text  one line per output (default)
  json  an array of {"name", "id", "enabled"} records
  yaml  a sequence of the same records`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listFormat, "output", "o", "text", "output format: text, json, yaml")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(listFormat); err != nil {
		return err
	}

	conn, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	return printOutputs(cmd.OutOrStdout(), conn, listFormat)
}

func checkFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// printOutputs enumerates the daemon's outputs and writes them in format.
// Each output is released once written.
func printOutputs(w io.Writer, conn *mpd.Conn, format string) error {
	l, err := conn.Outputs()
	if err != nil {
		return err
	}
	defer l.Close()

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return mpd.EncodeOutputs(enc, l)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := mpd.EncodeOutputs(enc, l); err != nil {
			return err
		}
		return enc.Close()
	default:
		for o, err := range l.All() {
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Output %d (%s) is %s\n", o.ID(), o.Name(), stateName(o.Enabled()))
			o.Close()
		}
		return nil
	}
}

func stateName(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
