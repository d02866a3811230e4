// Command collectord tails host log files, batches and annotates
// their lines, and ships them to a backend over HTTP, spooling to
// disk whenever the backend is unreachable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cynexa/collectord/internal/collector"
	"github.com/cynexa/collectord/internal/collectorlog"
	"github.com/cynexa/collectord/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logFile string

	root := &cobra.Command{
		Use:           "collectord [config-path]",
		Short:         "Tail, batch, and ship host log files to a collection backend",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if len(args) == 1 {
				configPath = args[0]
			}
			return run(configPath, logFile)
		},
	}

	root.Flags().StringVar(&logFile, "log-file", "", "write collectord's own operational log here instead of stderr")

	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the collectord version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

// version is overridden at build time with -ldflags.
var version = "dev"

func run(configPath, logFileOverride string) error {
	bootLogger, _, _ := collectorlog.New("")
	cfg := config.Load(configPath, bootLogger)

	logPath := cfg.LogFile
	if logFileOverride != "" {
		logPath = logFileOverride
	}
	logger, closer, err := collectorlog.New(logPath)
	if err != nil {
		logger.Printf("failed to open log file %s: %v; logging to stderr only", logPath, err)
	}
	defer closer.Close()

	c, err := collector.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("starting collectord: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("starting, watching %d log path(s)", len(cfg.LogPaths))
	c.Run(ctx)
	logger.Printf("stopped")

	return nil
}
