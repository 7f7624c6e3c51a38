// Package cli implements the titon command line for inspecting an
// application's depository and event emitter.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/titon/framework/app"
	"github.com/titon/framework/config"
	"github.com/titon/framework/depository"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFiles   []string
	Format     string // "text" | "json" | "yaml"

	providers []depository.ServiceProvider
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command. The providers are registered on
// every application the subcommands bootstrap.
func NewRootCommand(providers ...depository.ServiceProvider) *cobra.Command {
	opts := &RootOptions{providers: providers}

	cmd := &cobra.Command{
		Use:           "titon",
		Short:         "Inspect a titon application",
		Long:          "Inspect the bindings, dependency graph and event observers of a titon application.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flag",
					fmt.Errorf("format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", []string{".env"}, "dotenv files to load (missing files are skipped)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewBindingsCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewEmitCommand(opts))

	return cmd
}

// bootstrap loads the configuration, builds the application, registers the
// root providers and boots it. Callers shut the application down.
func (o *RootOptions) bootstrap(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := config.Load(o.ConfigPath, o.EnvFiles...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	a, err := app.New(cfg, app.WithLogOutput(cmd.ErrOrStderr()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "create application", err)
	}

	for _, p := range o.providers {
		if err := a.Register(p); err != nil {
			return nil, WrapExitError(ExitCommandError, "register provider", err)
		}
	}

	if err := a.Boot(commandContext(cmd)); err != nil {
		return nil, WrapExitError(ExitCommandError, "boot application", err)
	}

	return a, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withApp bootstraps the application, runs fn and shuts it down.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(*app.Application, *OutputFormatter) error) error {
	f := o.formatter(cmd)

	a, err := o.bootstrap(cmd)
	if err != nil {
		_ = f.Error(ErrCodeBootstrap, err.Error())
		return err
	}

	runErr := fn(a, f)
	if err := a.Shutdown(commandContext(cmd)); err != nil && runErr == nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}

	return runErr
}
