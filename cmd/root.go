// Package cmd defines and implements the CLI commands for the launcher.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/embedded-launcher/internal/app"
	"github.com/JakeFAU/embedded-launcher/internal/config"
	"github.com/JakeFAU/embedded-launcher/internal/lifecycle"
)

// rootOptions carries what the commands share. Tests swap the filesystem,
// hostname lookup and engine options.
type rootOptions struct {
	viper       *viper.Viper
	fs          afero.Fs
	resolveHost config.HostResolver
	engine      lifecycle.Options
	fileLog     bool
}

func defaultOptions() *rootOptions {
	return &rootOptions{
		viper:   config.NewViper(),
		fs:      afero.NewOsFs(),
		fileLog: true,
	}
}

// usageError marks a bad invocation; run prints the usage text for it.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

// noArgs accepts only subcommand names, which cobra consumes before
// validating arguments.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &usageError{err: fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())}
	}
	return nil
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand starts the server. Only start and stop are accepted; cobra's
// help and completion commands are turned off.
func newRootCmd(o *rootOptions) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "launcher [start|stop]",
		Short: "Runs a packaged web application on an embedded HTTP server.",
		Long: `launcher resolves its settings from the environment, flags and a
properties file, deploys the single web application archive found under the
base directory and serves it until a local stop request or signal arrives.`,
		Args:              noArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd, o)
		},
	}
	cmd.SetHelpCommand(&cobra.Command{
		Use:    "help",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return &usageError{err: fmt.Errorf("unknown command %q for %q", cmd.Name(), cmd.Root().CommandPath())}
		},
	})
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	cmd.PersistentFlags().String(config.KeyConfig, "", "path to the properties file (env LAUNCHER_CONFIG)")
	if err := o.viper.BindPFlag(config.KeyConfig, cmd.PersistentFlags().Lookup(config.KeyConfig)); err != nil {
		return nil, fmt.Errorf("bind --%s: %w", config.KeyConfig, err)
	}

	cmd.AddCommand(newStartCmd(o), newStopCmd(o))
	return cmd, nil
}

// newApp builds the service container for one command invocation.
func newApp(o *rootOptions, fileLog bool) (*app.App, error) {
	a, err := app.New(app.Options{
		Viper:        o.viper,
		Fs:           o.fs,
		FileLog:      fileLog,
		HostResolver: o.resolveHost,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return a, nil
}

func run(ctx context.Context, o *rootOptions, args []string, stdout, stderr io.Writer) int {
	root, err := newRootCmd(o)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprint(stdout, root.UsageString())
		}
		return 1
	}
	return 0
}

// Execute is the main entry point.
func Execute() {
	os.Exit(run(context.Background(), defaultOptions(), os.Args[1:], os.Stdout, os.Stderr))
}
