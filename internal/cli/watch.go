package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mugisham37/product-management-interview-project/internal/cloudsync"
	"github.com/mugisham37/product-management-interview-project/internal/metrics"
	"github.com/spf13/cobra"
)

type WatchOptions struct {
	*RootOptions
	BaseURL     string
	Strategy    string
	Snapshot    string
	Interval    int
	Interactive bool
	MetricsAddr string
	Once        bool
}

// NewWatchCommand runs the client sync loop against a server.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a local product snapshot in sync with a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.BaseURL, "server", "", "API base URL (overrides config)")
	cmd.Flags().StringVarP(&opts.Strategy, "strategy", "s", "", "conflict strategy: server-wins|client-wins|merge|prompt-user")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "snapshot file kept between runs")
	cmd.Flags().IntVar(&opts.Interval, "interval", 0, "seconds between sync cycles")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "ask on the terminal under prompt-user")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve client metrics on this address (e.g. :9100)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single cycle and exit")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	defer func() { _ = logger.Sync() }()

	cc := cfg.Client
	if opts.BaseURL != "" {
		cc.BaseURL = opts.BaseURL
	}
	if opts.Strategy != "" {
		cc.Strategy = opts.Strategy
	}
	if opts.Snapshot != "" {
		cc.SnapshotFile = opts.Snapshot
	}
	if opts.Interval > 0 {
		cc.IntervalSeconds = opts.Interval
	}

	m := metrics.New()
	mopts := []cloudsync.ManagerOption{cloudsync.WithLogger(logger), cloudsync.WithMetrics(m)}
	if opts.Interactive {
		mopts = append(mopts, cloudsync.WithPrompter(newTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())))
	}
	httpClient := &http.Client{Timeout: time.Duration(cc.RequestTimeoutSec) * time.Second}
	mgr, err := cloudsync.NewSyncManager(cloudsync.NewClient(httpClient, cc.BaseURL), cc, mopts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "sync manager", err)
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.MetricsAddr != "" {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := mgr.InitialSync(ctx); err != nil {
		if opts.Once {
			return WrapExitError(ExitFailure, "sync", err)
		}
		logger.Warnf("initial sync failed: %v", err)
	}
	if opts.Once {
		st := mgr.Status()
		return newFormatter(opts.RootOptions, cmd).Print(st, formatStatus(st))
	}

	logger.Infof("watching %s every %ds with %s", cc.BaseURL, cc.IntervalSeconds, cc.Strategy)
	mgr.Run(ctx)
	return nil
}

func formatStatus(st cloudsync.SyncStatus) string {
	if !st.Connected {
		return "sync failed: " + st.LastError
	}
	return "synced: checksum " + st.LastChecksum
}
