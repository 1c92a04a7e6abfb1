package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ledgersync "github.com/alfredjeanlab/bizledger/internal/sync"
)

// storedLedger exports whatever is currently persisted. Each export opens
// the ledger afresh so changes made by other ledger commands are included.
type storedLedger struct {
	ctx context.Context
}

func (s storedLedger) Export() ([]byte, error) {
	c, err := openLedger(s.ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Export()
}

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run scheduled backups to S3 and/or git",
	GroupID:     "system",
	Annotations: map[string]string{noLedger: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.SyncInterval <= 0 {
			return errors.New("backups disabled (LEDGER_SYNC_INTERVAL is 0)")
		}
		publisher = newPublisher()

		var dests []ledgersync.Destination
		if cfg.SyncS3Bucket != "" {
			s3Dest, err := ledgersync.NewS3Destination(cmd.Context(), ledgersync.S3Options{
				Bucket:   cfg.SyncS3Bucket,
				Key:      cfg.SyncS3Key,
				Region:   cfg.SyncS3Region,
				Endpoint: cfg.SyncS3Endpoint,
				History:  cfg.SyncS3History,
			})
			if err != nil {
				logger.Error("failed to create S3 backup destination", "err", err)
			} else {
				dests = append(dests, s3Dest)
				logger.Info("backup S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key, "history", cfg.SyncS3History)
			}
		}
		if cfg.SyncGitRepo != "" {
			dests = append(dests, ledgersync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
			logger.Info("backup git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
		}
		if len(dests) == 0 {
			return errors.New("no backup destination configured (set LEDGER_SYNC_S3_BUCKET or LEDGER_SYNC_GIT_REPO)")
		}

		scheduler := ledgersync.NewScheduler(storedLedger{ctx: cmd.Context()}, dests, cfg.SyncInterval, logger)
		scheduler.Start()
		logger.Info("backup scheduler started", "interval", cfg.SyncInterval)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		scheduler.Stop()
		logger.Info("backup scheduler stopped")
		return nil
	},
}
