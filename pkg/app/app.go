package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"

	"github.com/autopeer-io/robofleet/pkg/log"
)

// RunFunc is the application's entry point once options are loaded and valid.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// App is the main structure of a cli application built on cobra.
type App struct {
	name        string
	shortDesc   string
	description string
	options     CliOptions
	runFunc     RunFunc
	silence     bool
	watch       bool
	onReload    func()
	args        cobra.PositionalArgs
	commands    []*cobra.Command
	cmd         *cobra.Command
}

// WithOptions sets the options the application reads from flags and config.
func WithOptions(opts CliOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the application startup callback.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDescription sets the long description of the command.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithSilence suppresses the startup banner and config echo.
func WithSilence() Option {
	return func(a *App) { a.silence = true }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithWatchConfig reloads hot-reloadable settings when the config file
// changes and then calls onReload, which may be nil.
func WithWatchConfig(onReload func()) Option {
	return func(a *App) {
		a.watch = true
		a.onReload = onReload
	}
}

// WithCommands adds sub commands to the root command.
func WithCommands(cmds ...*cobra.Command) Option {
	return func(a *App) { a.commands = append(a.commands, cmds...) }
}

// NewApp creates a new application instance based on the given options.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
	}

	for _, o := range opts {
		o(a)
	}

	a.buildCommand()

	return a
}

// Command returns the cobra command backing the application.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:   a.name,
		Short: a.shortDesc,
		Long:  a.description,
		// Errors are printed once by Run.
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true
	cmd.AddCommand(a.commands...)

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
		fs := cmd.Flags()
		for _, f := range namedFlagSets.FlagSets {
			fs.AddFlagSet(f)
		}
	}

	globalflag.AddGlobalFlags(namedFlagSets.FlagSet("global"), cmd.Name())
	addConfigFlags(a.name, namedFlagSets.FlagSet("global"))
	cmd.Flags().AddFlagSet(namedFlagSets.FlagSet("global"))

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, namedFlagSets, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	if err := loadConfig(a.name); err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}

	if a.options != nil {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := viper.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to unmarshal configuration: %w", err)
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if !a.silence {
		log.Info("Starting application", "name", a.name)
		if cfg := viper.ConfigFileUsed(); cfg != "" {
			log.Info("Loaded configuration", "file", cfg)
		}
	}

	if a.watch {
		watchConfig(a.onReload)
	}

	return a.runFunc()
}
