package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/entrhq/portalkeeper/pkg/browser"
	"github.com/entrhq/portalkeeper/pkg/config"
	"github.com/entrhq/portalkeeper/pkg/console"
	"github.com/entrhq/portalkeeper/pkg/credentials"
	"github.com/entrhq/portalkeeper/pkg/logging"
	"github.com/entrhq/portalkeeper/pkg/portal"
)

const shutdownTimeout = 30 * time.Second

type runOptions struct {
	session       string
	headless      bool
	dir           string
	downloadNow   bool
	downloadEvery time.Duration
	only          []string
	metricsAddr   string
	reportPath    string
	verbose       bool
}

func newRunCmd(s *settings) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log a session in, keep it alive and optionally download the catalog",
		Long: `run logs the named session in and keeps it alive until interrupted.

With --download-now the catalog is downloaded once right after login; with
--download-every it is downloaded periodically. Files already downloaded
today are left alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := s.loadConfig()
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), cmd, cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.session, "session", "s", "", "session name; selects the credentials")
	flags.BoolVar(&opts.headless, "headless", false, "run the browser without a window")
	flags.StringVar(&opts.dir, "dir", "", "download directory (default from config)")
	flags.BoolVar(&opts.downloadNow, "download-now", false, "download the catalog once after login")
	flags.DurationVar(&opts.downloadEvery, "download-every", 0, "download the catalog at this interval")
	flags.StringSliceVar(&opts.only, "only", nil, "only download entries whose label matches these glob patterns")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	flags.StringVar(&opts.reportPath, "report", "", "write each download run as JSON to this file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "show keep-alive ticks")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func runSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *runOptions) error {
	if err := logging.Configure(logging.Options{
		Level:   cfg.Logging.Level,
		Dir:     cfg.Logging.Dir,
		Console: cfg.Logging.Console,
	}); err != nil {
		return err
	}
	defer logging.Shutdown()

	logger := logging.MustLogger("portalkeeper")
	logger.Infof("portalkeeper v%s starting session %s (config %s)", version, opts.session, cfg.FilePath)

	creds, err := credentials.New(cfg.Credentials.Sources, cfg.Credentials.File)
	if err != nil {
		return err
	}

	con := console.New(console.WithWriter(cmd.OutOrStdout()), console.WithReader(cmd.InOrStdin()), console.WithVerbose(opts.verbose))
	broker := portal.NewConfirmationBroker(cfg.Login.ConfirmTimeout, con.Emit)

	confirmCtx, stopConfirm := context.WithCancel(ctx)
	defer stopConfirm()
	go func() {
		if err := con.Confirmations(confirmCtx, broker); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnf("confirmation input stopped: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := portal.NewMetrics(reg)
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	launcher := browser.NewLauncher(cfg.Browser.Install)
	engine := portal.New(cfg, portal.Deps{
		Launcher:    launcher,
		Credentials: creds,
		Broker:      broker,
		Logger:      logger,
		Metrics:     metrics,
		Events:      con.Emit,
	})
	defer func() {
		// ctx is already cancelled on interrupt; teardown gets its own deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}()

	headless := opts.headless || cfg.Browser.Headless
	if _, err := engine.StartSession(ctx, opts.session, headless, opts.dir); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	download := func() error {
		result, err := engine.RunDownload(ctx, opts.session, opts.dir, opts.only)
		if result == nil {
			return err
		}
		con.Printf("%s\n", console.Summary(result))
		if opts.reportPath != "" {
			if werr := console.WriteReport(opts.reportPath, result, err); werr != nil {
				logger.Warnf("%v", werr)
			}
		}
		return err
	}

	if opts.downloadNow {
		if err := download(); err != nil && ctx.Err() == nil {
			return err
		}
	}

	if opts.downloadEvery <= 0 {
		con.Printf("session %s is being kept alive; press Ctrl+C to stop\n", opts.session)
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(opts.downloadEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := download(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// A failed scheduled run is reported and retried on the next tick
				logger.Errorf("scheduled download: %v", err)
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	return srv
}
