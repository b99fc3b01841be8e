package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/famish99/mpdoutputs/internal/config"
	"github.com/famish99/mpdoutputs/internal/discovery"
	"github.com/famish99/mpdoutputs/internal/mpdserver"
)

var (
	serveAddr    string
	serveEnable  []string
	serveDisable []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a development MPD daemon",
	Long: `Run a small MPD-compatible daemon that serves the outputs listed under
serve.outputs in the config. It answers outputs, enableoutput, disableoutput,
toggleoutput, idle, ping and password, which is enough to try the other
commands without a real daemon.

Prometheus metrics are served on serve.metrics_addr when set, and the daemon
is advertised over mDNS when serve.advertise is true.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: serve.addr)")
	serveCmd.Flags().StringSliceVar(&serveEnable, "enable", nil, "start these outputs enabled")
	serveCmd.Flags().StringSliceVar(&serveDisable, "disable", nil, "start these outputs disabled")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}
	if err := applyServeStates(cfg, serveEnable, serveDisable); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, &cfg.Serve)
}

// serve runs the daemon until ctx ends
func serve(ctx context.Context, sc *config.ServeConfig) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server := mpdserver.NewServer(sc.Addr, serverOutputs(sc.Outputs),
		mpdserver.WithLogger(logger),
		mpdserver.WithMetrics(mpdserver.NewMetrics(reg)),
		mpdserver.WithPassword(sc.Password),
	)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	defer server.Stop()

	logger.Info("daemon running", "addr", server.Addr().String(), "outputs", len(sc.Outputs))

	if sc.MetricsAddr != "" {
		shutdown, err := serveMetrics(sc.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if sc.Advertise {
		port := 0
		if addr, ok := server.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
		withdraw, err := discovery.Advertise(sc.Name, port, logger)
		if err != nil {
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer withdraw()
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// applyServeStates overrides the configured starting state of the named
// outputs. Every name must match a served output.
func applyServeStates(c *config.Config, enable, disable []string) error {
	for _, set := range []struct {
		names   []string
		enabled bool
	}{{enable, true}, {disable, false}} {
		for _, name := range set.names {
			o := c.ServeOutput(name)
			if o == nil {
				return fmt.Errorf("no served output named %q", name)
			}
			o.Enabled = set.enabled
		}
	}
	return nil
}

func serverOutputs(configured []config.OutputConfig) []mpdserver.Output {
	outputs := make([]mpdserver.Output, 0, len(configured))
	for _, o := range configured {
		outputs = append(outputs, mpdserver.Output{
			Name:       o.Name,
			Plugin:     o.Plugin,
			Enabled:    o.Enabled,
			Attributes: o.Attributes,
		})
	}
	return outputs
}

// serveMetrics exposes reg over HTTP and returns a shutdown function
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "url", "http://"+ln.Addr().String()+"/metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
