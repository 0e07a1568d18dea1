package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mugisham37/product-management-interview-project/internal/handlers"
	httpapi "github.com/mugisham37/product-management-interview-project/internal/http"
	"github.com/mugisham37/product-management-interview-project/internal/metrics"
	"github.com/mugisham37/product-management-interview-project/internal/services"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type ServeOptions struct {
	*RootOptions
	Port string
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the product HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmdContext(cmd), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Port, "port", "p", "", "listen port (overrides config)")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	defer func() { _ = logger.Sync() }()
	if opts.Port != "" {
		cfg.Port = opts.Port
	}

	store, closeStore, err := openStore(ctx, cfg, logger, cfg.AutoMigrate)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer closeStore()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	m := metrics.New()
	h := handlers.NewProductHandler(services.NewProductService(store), m, logger)
	router := httpapi.NewRouter(h, m, logger)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on :%s (driver=%s)", cfg.Port, cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
