package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/api"
	"github.com/JakeFAU/listing-crawler/internal/app"
	"github.com/JakeFAU/listing-crawler/internal/batch"
	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/ledger"
	"github.com/JakeFAU/listing-crawler/internal/progress"
)

const hubCloseTimeout = 5 * time.Second

// newBatchCmd creates the 'batch' subcommand. cfgFile is forwarded to child
// crawl processes.
func newBatchCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <input-csv> <progress-csv>",
		Short: "Crawls every URL of an input file with retries and resume",
		Long: `Reads start URLs from the url column of the input CSV and crawls them in
order. Progress is saved to the progress CSV after every URL, so an interrupted
batch resumes where it stopped: completed URLs are skipped and failed ones
continue from the page after the last one reported.`,
		Args: cobra.ExactArgs(2),
		RunE: runWithApp(func(cmd *cobra.Command, appInstance *app.App, args []string) error {
			return runBatch(cmd, appInstance, args[0], args[1], *cfgFile)
		}),
	}
}

func runBatch(cmd *cobra.Command, a *app.App, inputPath, ledgerPath, cfgFile string) error {
	ctx := cmd.Context()
	cfg := a.Config()
	logger := a.Logger()

	urls, err := batch.ReadInputFile(inputPath)
	if err != nil {
		return err
	}
	store, err := ledger.NewFileStore(ledgerPath)
	if err != nil {
		return err
	}

	hub, err := a.NewHub()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hubCloseTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("Failed to flush progress events", zap.Error(err))
		}
	}()

	runner, err := newRunner(cmd, a, hub, cfgFile)
	if err != nil {
		return err
	}

	if cfg.Server.Enabled {
		srvCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()
		srv := api.NewServer(store, a.Registry(), cfg.Server.Config, logger)
		go func() {
			if err := srv.ListenAndServe(srvCtx); err != nil {
				logger.Error("Progress server stopped", zap.Error(err))
			}
		}()
	}

	runID, err := a.NewRunID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	orch := batch.NewOrchestrator(store, runner, batch.Options{
		Retry:     cfg.Batch.Retry,
		Events:    hub,
		Publisher: a.Publisher(),
		Topic:     cfg.PubSub.Topic,
		RunID:     runID,
		Logger:    logger.With(zap.String("run_id", runID)),
	})
	summary, err := orch.Run(ctx, urls)
	fmt.Fprintf(cmd.OutOrStdout(), "Batch finished: %d completed, %d failed, %d skipped, %d interrupted.\n",
		summary.Completed, summary.Failed, summary.Skipped, summary.Interrupted)
	return err
}

func newRunner(cmd *cobra.Command, a *app.App, events progress.Emitter, cfgFile string) (batch.AttemptRunner, error) {
	cfg := a.Config()
	if cfg.Batch.Isolation == config.IsolationInProcess {
		return batch.NewInProcessRunner(a.Sessions(cfg.Batch.OutputDir, cmd.OutOrStdout(), events), a.Logger()), nil
	}
	var extra []string
	if cfgFile != "" {
		extra = []string{"--config", cfgFile}
	}
	return batch.NewProcessRunner(batch.ProcessConfig{
		OutputDir:   cfg.Batch.OutputDir,
		ExtraArgs:   extra,
		Stderr:      cmd.ErrOrStderr(),
		Echo:        cmd.OutOrStdout(),
		GracePeriod: cfg.Batch.GracePeriod,
	}, a.Logger())
}
