package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/klajdicaushi/lajournal-deploy/pkg"
	"github.com/klajdicaushi/lajournal-deploy/pkg/deploy"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tool",
		Short: "Deployment tools for LaJournal",
		Long: `This command bundles the steps that prepare a LaJournal backend release:
syncing dependencies, collecting static assets and migrating the database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newStepsCmd())
	return rootCmd
}

// exitCode propagates the status of a failed step; everything else exits with 1
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var stepErr *deploy.StepError
	if errors.As(err, &stepErr) {
		return stepErr.ExitCode()
	}

	return 1
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		var stepErr *deploy.StepError
		// step failures have already been logged by the runner
		if !errors.As(err, &stepErr) {
			pkg.PrintError(stderr, eris.ToString(err, os.Getenv("DEPLOY_DEBUG") != ""))
		}
	}

	return exitCode(err)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	os.Exit(code)
}
