package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"respawn/internal/cli"
	"respawn/internal/logging"
	"respawn/internal/metrics"
	"respawn/internal/orchestrator"
	"respawn/internal/process"
	"respawn/internal/watcher"

	"github.com/mattn/go-isatty"
)

const clearSequence = "\x1b[2J\x1b[3J\x1b[H"

func watch(ctx context.Context, flags *cli.Flags, invocation cli.Invocation, streams ioStreams) error {
	logger := logging.NewLoggerWithOutput(nil, flags.Level(), streams.stderr)

	stopSignal, err := process.ParseSignal(flags.Signal)
	if err != nil {
		return err
	}
	filter, err := buildFilter(flags, invocation.Roots, logger)
	if err != nil {
		return err
	}
	registry := metrics.NewRegistry()
	source, err := watcher.NewFSSource(invocation.Roots, watcher.SourceOptions{
		Logger:  logger,
		Filter:  filter,
		Metrics: registry,
	})
	if err != nil {
		return err
	}

	supervisor := process.NewSupervisor(invocation.Command, process.SupervisorOptions{
		Logger:      logger.With(map[string]string{"component": "supervisor"}),
		GracePeriod: flags.Grace,
		Signal:      stopSignal,
		Stdin:       streams.stdin,
		Stdout:      streams.stdout,
		Stderr:      streams.stderr,
	})
	runner, err := orchestrator.New(orchestrator.Options{
		Source: source,
		Debounce: watcher.DebounceOptions{
			Quiet:   flags.Debounce,
			MaxWait: flags.MaxWait,
		},
		Supervisor:       supervisor,
		Logger:           logger.With(map[string]string{"component": "orchestrator"}),
		WatchErrorPolicy: orchestrator.WatchErrorPolicy(flags.WatchErrorPolicy()),
		BeforeRun:        screenClearer(flags.Clear, streams.stdout, logger),
		Metrics:          registry,
	})
	if err != nil {
		_ = source.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, shutdownSignals...)
	defer signal.Stop(signalCh)
	stopSignals := watchShutdownSignals(logger, cancel, signalCh)
	defer stopSignals()

	logger.Info("watching", map[string]string{
		"roots":   strconv.Itoa(len(invocation.Roots)),
		"command": invocation.Command.String(),
	})
	for _, root := range invocation.Roots {
		logger.Debug("watch root", map[string]string{"path": root.Path, "dir": strconv.FormatBool(root.IsDir)})
	}

	if err := runner.Run(ctx); err != nil {
		return &runtimeError{err: err}
	}
	return nil
}

func buildFilter(flags *cli.Flags, roots []watcher.Root, logger *logging.Logger) (*watcher.Filter, error) {
	var gitignore *watcher.Gitignore
	if !flags.NoProjectIgnore {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		gitignore, err = watcher.FindProjectGitignore(cwd)
		if err != nil {
			return nil, fmt.Errorf("load .gitignore: %w", err)
		}
		if gitignore != nil {
			logger.Debug("using project ignore file", map[string]string{"root": gitignore.Root()})
		}
	}
	return watcher.NewFilter(watcher.FilterOptions{
		Roots:           roots,
		Ignore:          flags.Ignore,
		Extensions:      flags.NormalizedExtensions(),
		NoDefaultIgnore: flags.NoDefaultIgnore,
		Gitignore:       gitignore,
	})
}

// screenClearer returns nil unless clearing was requested and out is a
// terminal.
func screenClearer(enabled bool, out io.Writer, logger *logging.Logger) func() {
	if !enabled {
		return nil
	}
	if !isTerminal(out) {
		logger.Debug("output is not a terminal; not clearing the screen", nil)
		return nil
	}
	return func() {
		_, _ = io.WriteString(out, clearSequence)
	}
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
