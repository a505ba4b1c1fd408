package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/embedded-launcher/internal/apperr"
	"github.com/JakeFAU/embedded-launcher/internal/lifecycle"
)

func newStartCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Starts the server and blocks until it is stopped",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd, o)
		},
	}
}

func runStart(cmd *cobra.Command, o *rootOptions) error {
	a, err := newApp(o, o.fileLog)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := o.engine
	engine.Fs = o.fs
	controller := lifecycle.NewController(logger.Named("lifecycle"), engine)

	err = controller.Run(ctx, a.Config())
	if err != nil && !apperr.IsFatal(err) {
		logger.Warn("server stopped with errors", zap.Error(err))
		return nil
	}
	if err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	logger.Info("Start command finished.")
	return nil
}
