package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"respawn/internal/cli"
	"respawn/internal/version"

	"github.com/spf13/cobra"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const usageLine = "usage: respawn [flags] <path>... -- <command> [<argument>...]"

type ioStreams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// runtimeError marks a failure after watching started. Everything else
// returned from the command is a startup problem.
type runtimeError struct {
	err error
}

func (err *runtimeError) Error() string { return err.err.Error() }
func (err *runtimeError) Unwrap() error { return err.err }

func run(ctx context.Context, args []string, streams ioStreams) int {
	cmd := newRootCommand(streams)
	cmd.SetArgs(args)
	return exitCode(cmd.ExecuteContext(ctx), streams.stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	var runErr *runtimeError
	if errors.As(err, &runErr) {
		fmt.Fprintf(stderr, "respawn: %v\n", runErr.err)
		return exitFailure
	}
	fmt.Fprintf(stderr, "respawn: %v\n", err)
	fmt.Fprintln(stderr, usageLine)
	return exitUsage
}

func newRootCommand(streams ioStreams) *cobra.Command {
	var flags *cli.Flags

	rootCmd := &cobra.Command{
		Use:   "respawn [flags] <path>... -- <command> [<argument>...]",
		Short: "Restart a command whenever watched files change",
		Long: "respawn runs a command, watches the given files and directories, and restarts\n" +
			"the command after every burst of changes. Directories are watched recursively.\n" +
			"Everything after \"--\" is the command, run directly without a shell.",
		Version:       version.GetVersionInfo().String(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.Validate(); err != nil {
				return err
			}
			invocation, err := cli.ParseInvocation(args, cmd.ArgsLenAtDash())
			if err != nil {
				return err
			}
			return watch(cmd.Context(), flags, invocation, streams)
		},
	}
	rootCmd.SetVersionTemplate("respawn {{.Version}}\n")
	rootCmd.SetIn(streams.stdin)
	rootCmd.SetOut(streams.stdout)
	rootCmd.SetErr(streams.stderr)
	rootCmd.Flags().SortFlags = false
	flags = cli.AddFlags(rootCmd.Flags())

	return rootCmd
}
