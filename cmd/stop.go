package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/embedded-launcher/internal/apperr"
	"github.com/JakeFAU/embedded-launcher/internal/config"
	"github.com/JakeFAU/embedded-launcher/internal/shutdown"
)

func newStopCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Asks the server running on the configured port to shut down",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd, o)
		},
	}
}

func runStop(cmd *cobra.Command, o *rootOptions) error {
	a, err := newApp(o, false)
	if err != nil {
		return err
	}
	defer a.Close()

	raw, err := a.Config().Require(config.KeyPort)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return apperr.New(apperr.KindConfiguration, "stop server", fmt.Errorf("invalid %s %q: %w", config.KeyPort, raw, err))
	}

	text, err := shutdown.NewClient(port, a.Config().Get(config.KeySecret, "")).Shutdown(cmd.Context())
	if text != "" {
		fmt.Fprintln(cmd.OutOrStdout(), text)
	}
	return err
}
