// Package cmd implements the CLI for the buildsys package
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Zakki0925224/kombu/build-tools/pkg/buildsys"
	"github.com/Zakki0925224/kombu/build-tools/pkg/config"
	"github.com/Zakki0925224/kombu/build-tools/pkg/pipeline"
)

// NewRootCmd builds the task command. The resulting exit code is stored in code.
func NewRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "task <name>",
		Short: "Build orchestrator for kombu",
		Long: `This command registers the kombu build tasks, loads the project's tasks.star
file if there is one and runs the task passed as the only argument.
Without exactly one argument it lists the available tasks.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, err := cmd.Flags().GetBool("dry")
			if err != nil {
				return err
			}

			root, err := cmd.Flags().GetString("dir")
			if err != nil {
				return err
			}

			configFile, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			cfg, err := config.Load(root, configFile)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("strict-exit") {
				cfg.StrictExit, err = cmd.Flags().GetBool("strict-exit")
				if err != nil {
					return err
				}
			}

			var logger zerolog.Logger
			if cfg.Log.JSON {
				logger = zerolog.New(stderr)
			} else {
				logger = zerolog.New(NewConsoleWriter(stderr))
			}
			logger = logger.Level(cfg.LogLevel())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx = buildsys.WithLogger(ctx, &logger)

			runner := buildsys.NewRunner(root)
			runner.DryRun = dryRun
			runner.Stdout = stdout
			runner.Stderr = stderr

			reg := buildsys.NewRegistry()
			_, err = pipeline.Register(reg, runner, cfg)
			if err != nil {
				return err
			}

			taskFile := filepath.Join(root, cfg.TaskFile)
			_, err = os.Stat(taskFile)
			if err == nil {
				err = buildsys.LoadScript(ctx, taskFile, reg, runner)
				if err != nil {
					return err
				}
			} else if !eris.Is(err, os.ErrNotExist) {
				return eris.Wrapf(err, "failed to check %s", taskFile)
			}

			*code = Dispatch(ctx, reg, args, stdout, cfg.StrictExit)
			return nil
		},
	}

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	rootCmd.Flags().StringP("dir", "C", ".", "project root; commands and paths are relative to it")
	rootCmd.Flags().String("config", "", "config file (default: kombu.toml in the project root)")
	rootCmd.Flags().Bool("strict-exit", false, "exit with the failing command's status instead of 0")
	return rootCmd
}

// Run executes the CLI with the given arguments and returns the exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := 0
	rootCmd := NewRootCmd(stdout, stderr, &code)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger := zerolog.New(NewConsoleWriter(stderr))
		logger.Error().Err(err).Msg("Failed to set up tasks")
		return 1
	}

	return code
}

// Execute runs the CLI with the process arguments.
func Execute() int {
	return Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}
