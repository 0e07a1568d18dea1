package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mugisham37/product-management-interview-project/internal/cloudsync"
	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/spf13/cobra"
)

type CheckOptions struct {
	*RootOptions
	BaseURL  string
	Snapshot string
}

type checkResult struct {
	Server        *models.ConsistencySnapshot `json:"server"`
	LocalChecksum string                      `json:"localChecksum,omitempty"`
	InSync        *bool                       `json:"inSync,omitempty"`
}

// NewCheckCommand fetches the server's consistency snapshot and, when a
// client snapshot file is given, compares it with the local checksum.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare a client snapshot with the server's consistency checksum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer func() { _ = logger.Sync() }()
			if opts.BaseURL != "" {
				cfg.Client.BaseURL = opts.BaseURL
			}
			if opts.Snapshot == "" {
				opts.Snapshot = cfg.Client.SnapshotFile
			}

			ctx, cancel := context.WithTimeout(cmdContext(cmd), time.Duration(cfg.Client.RequestTimeoutSec)*time.Second)
			defer cancel()
			client := cloudsync.NewClient(&http.Client{}, cfg.Client.BaseURL)
			snap, err := client.ConsistencyCheck(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "consistency check", err)
			}
			res := checkResult{Server: snap}
			text := fmt.Sprintf("server: %d records, checksum %s", snap.TotalRecords, snap.Checksum)

			if opts.Snapshot != "" {
				mgr, err := cloudsync.NewSyncManager(client, cfg.Client, cloudsync.WithLogger(logger))
				if err != nil {
					return WrapExitError(ExitCommandError, "sync manager", err)
				}
				if err := mgr.LoadSnapshot(opts.Snapshot); err != nil {
					return WrapExitError(ExitCommandError, "load snapshot", err)
				}
				local := mgr.Checksum()
				inSync := local == snap.Checksum
				res.LocalChecksum = local
				res.InSync = &inSync
				text += fmt.Sprintf("\nlocal:  %d records, checksum %s, pending edits %d\nin sync: %t", len(mgr.Records()), local, mgr.Pending(), inSync)
			}
			return newFormatter(opts.RootOptions, cmd).Print(res, text)
		},
	}
	cmd.Flags().StringVar(&opts.BaseURL, "server", "", "API base URL (overrides config)")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "client snapshot file to compare (default from config)")
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
