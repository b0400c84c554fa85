package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/metrics"
)

const pushTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the pipeline once and exits",
		Long: `Loads the history, visits every configured source and category with
politeness pauses, saves the history when something changed, and notifies.
Exits non-zero when the history cannot be loaded or saved.`,
		RunE: runOnce,
	}
	cmd.Flags().Bool("dry-run", false, "do not persist history; log the delta instead of notifying")
	return cmd
}

func runOnce(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	logger := appInstance.Logger()

	sum, runErr := appInstance.Runner().Run(cmd.Context())
	logger.Info("Run complete",
		zap.String("run_id", sum.RunID),
		zap.String("status", sum.Status),
		zap.Int("fetched", sum.Fetched),
		zap.Int("failed", sum.Failed),
		zap.Int("accepted", sum.Accepted),
		zap.Bool("saved", sum.Saved),
		zap.Bool("notified", sum.Notified),
	)

	mc := appInstance.Config().Metrics
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), pushTimeout)
	defer cancel()
	if err := metrics.Push(pushCtx, mc.PushgatewayURL, mc.Job); err != nil {
		logger.Warn("Failed to push metrics", zap.Error(err))
	}

	return runErr
}
