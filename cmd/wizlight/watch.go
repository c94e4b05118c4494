package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/wizlight/internal/bulb"
	"github.com/muurk/wizlight/internal/logging"
	"github.com/muurk/wizlight/internal/push"
	"github.com/muurk/wizlight/internal/state"
	"github.com/muurk/wizlight/internal/ui"
	"github.com/muurk/wizlight/internal/wiz"
)

// Watch command flags
var (
	watchMetricsAddr  string
	watchPollInterval time.Duration
	watchNoPush       bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	watchCmd.Flags().DurationVar(&watchPollInterval, "poll", 30*time.Second, "Polling interval; bulbs that push recently are not polled")
	watchCmd.Flags().BoolVar(&watchNoPush, "no-push", false, "Do not listen for pushed updates; poll only")
}

// watchCmd follows state changes until interrupted
var watchCmd = &cobra.Command{
	Use:   "watch <bulb>...",
	Short: "Follow state changes of bulbs",
	Long: `Print a line whenever a bulb changes state, until interrupted.

Bulbs are asked to push their state to UDP port 38900 and the registration
is renewed every 20 seconds. When the port is taken, or with --no-push,
bulbs are polled instead. Changes in signal strength alone are not shown.

With --metrics, bulb state and request statistics are exported for
Prometheus at /metrics.`,
	Example: `  wizlight watch desk porch
  wizlight watch 192.168.1.42 --metrics :9100
  wizlight watch desk --no-push --poll 5s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

// eventPrinter prints state changes from the push and poll paths, once each
type eventPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last map[string]map[string]interface{}
}

func newEventPrinter(out io.Writer) *eventPrinter {
	return &eventPrinter{out: out, last: make(map[string]map[string]interface{})}
}

func (p *eventPrinter) report(host string, s *state.PilotState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw := s.Raw()
	if prev, ok := p.last[host]; ok && state.StatesMatch(prev, raw) {
		return
	}
	p.last[host] = raw
	fmt.Fprintln(p.out, ui.RenderEvent(time.Now(), host, s))
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.GetLogger().Named("watch")

	promRegistry := prometheus.NewRegistry()
	var clientOpts []wiz.Option
	if watchMetricsAddr != "" {
		clientOpts = append(clientOpts, wiz.WithMetrics(wiz.NewMetrics(promRegistry)))
	}
	client, err := newClient(clientOpts...)
	if err != nil {
		return err
	}

	hosts := resolveAll(args)
	bulbs := make([]*bulb.Bulb, len(hosts))
	macs := make([]string, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			b := bulb.New(host, client)
			mac, err := b.MAC(gctx)
			if err != nil {
				return &hostError{host: host, err: err}
			}
			bulbs[i], macs[i] = b, mac
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report("Cannot reach bulb", err)
	}

	if watchMetricsAddr != "" {
		for i, b := range bulbs {
			bulb.RegisterMetrics(promRegistry, b, macs[i])
		}
	}

	params := []ui.Detail{{Key: "Bulbs", Value: strings.Join(hosts, ", ")}}
	if watchMetricsAddr != "" {
		params = append(params, ui.Detail{Key: "Metrics", Value: watchMetricsAddr + "/metrics"})
	}

	printer := newEventPrinter(os.Stdout)

	var mgr *push.Manager
	if !watchNoPush {
		cfg := push.DefaultConfig()
		cfg.ListenAddress = registry.PushListenAddress()
		mgr = push.NewManager(cfg, client)
		if err := mgr.Start(); err != nil {
			logger.Warn("Push updates unavailable, polling only", zap.Error(err))
			fmt.Println(ui.NewWarningResult("Push updates unavailable").
				AddDetail("Reason", err.Error()).
				AddDetail("Polling every", watchPollInterval.String()).
				Render())
			mgr = nil
		} else {
			defer mgr.Stop()
			params = append(params, ui.Detail{Key: "Push", Value: cfg.ListenAddress})
		}
	}
	if mgr == nil {
		params = append(params, ui.Detail{Key: "Polling", Value: watchPollInterval.String()})
	}

	fmt.Println(ui.NewHeader("Watching bulbs", "wizlight watch", params...).Render())

	g, gctx = errgroup.WithContext(ctx)

	if mgr != nil {
		for i, b := range bulbs {
			host := hosts[i]
			cancel := mgr.WatchBulb(b, macs[i], func(s *state.PilotState) {
				printer.report(host, s)
			})
			defer cancel()
		}
		g.Go(func() error {
			return mgr.KeepAlive(gctx, hosts)
		})
	}

	for i, b := range bulbs {
		b := b
		host := hosts[i]
		g.Go(func() error {
			pollBulb(gctx, b, watchPollInterval, func(s *state.PilotState) {
				printer.report(host, s)
			}, logger)
			return nil
		})
	}

	if watchMetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, watchMetricsAddr, promRegistry, logger)
		})
	}

	return g.Wait()
}

// pollBulb fetches the state now and then every interval until ctx is done.
// UpdateState answers from a recent push without a round trip.
func pollBulb(ctx context.Context, b *bulb.Bulb, interval time.Duration, onState func(*state.PilotState), logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s, err := b.UpdateState(ctx)
		switch {
		case err == nil:
			onState(s)
		case ctx.Err() != nil:
			return
		default:
			logger.Warn("Poll failed",
				zap.String("host", b.Host()),
				zap.String("error", wiz.GetShortErrorMessage(err)))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// serveMetrics runs the /metrics endpoint until ctx is done
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       1500 * time.Millisecond,
		ReadHeaderTimeout: 500 * time.Millisecond,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
