package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/famish99/mpdoutputs/internal/discovery"
)

var (
	discoverTimeout time.Duration
	discoverFormat  string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find MPD daemons on the local network",
	Long:  `Browse mDNS for _mpd._tcp services and print the daemons that answer.`,
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0, "how long to wait for answers (default: discovery.timeout)")
	discoverCmd.Flags().StringVarP(&discoverFormat, "output", "o", "text", "output format: text, json, yaml")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(discoverFormat); err != nil {
		return err
	}

	timeout := cfg.Discovery.Timeout
	if discoverTimeout > 0 {
		timeout = discoverTimeout
	}

	daemons, err := discovery.NewBrowser(timeout, logger).Browse(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch discoverFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(daemons)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(daemons); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(daemons) == 0 {
		fmt.Fprintln(w, "No daemons found")
		return nil
	}
	for _, d := range daemons {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Host, d.Address())
	}
	return nil
}
