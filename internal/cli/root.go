// Package cli implements the healthprobe command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/logging"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailures    = 1
	ExitConfigError = 2
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func configError(format string, args ...any) error {
	return &ExitError{Code: ExitConfigError, Err: fmt.Errorf(format, args...)}
}

// app is the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	out     io.Writer
	cfg     *config.Config
}

// load binds the running command's flags and reads the configuration.
// Flags are bound per invocation because several subcommands expose a flag
// for the same key.
func (a *app) load(cmd *cobra.Command, flags map[string]string) error {
	for key, name := range flags {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return configError("bind --%s: %w", name, err)
		}
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return configError("%w", err)
	}
	if err := logging.Init(cfg.App.Environment, cfg.Logger.Level); err != nil {
		return configError("%w", err)
	}
	a.cfg = cfg
	return nil
}

// NewRootCommand builds the command tree writing reports to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:           "healthprobe",
		Short:         "Verify the health contract across a catalog of services",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ExitError{Code: ExitConfigError, Err: err}
	})

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./vitals.yaml or ./config/vitals.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("env", "", "environment (production logs less)")

	root.AddCommand(newRunCommand(a))
	root.AddCommand(newWatchCommand(a))
	root.AddCommand(newListCommand(a))
	root.AddCommand(newVersionCommand(a))
	return root
}

// globalFlags maps the persistent flags onto config keys.
var globalFlags = map[string]string{
	"logger.level":    "log-level",
	"app.environment": "env",
}

func withGlobal(flags map[string]string) map[string]string {
	out := make(map[string]string, len(flags)+len(globalFlags))
	for k, v := range globalFlags {
		out[k] = v
	}
	for k, v := range flags {
		out[k] = v
	}
	return out
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := NewRootCommand(out)
	root.SetErr(errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	defer logging.Close()
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(errOut, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}
	// Cobra reports unknown commands and bad arguments without a flag error.
	fmt.Fprintln(errOut, "Error:", err)
	return ExitConfigError
}
