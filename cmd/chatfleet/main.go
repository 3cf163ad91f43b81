package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/chatfleet"
	"github.com/loykin/chatfleet/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "chatfleet",
		Short: "Development supervisor for the chat server fleet",
		Long: `chatfleet starts, stops, and monitors the fixed fleet of chat servers
used for protocol development and testing.

Examples:
  chatfleet status              Show server status
  chatfleet build               Build the server binary
  chatfleet start 1             Start server 1 in the foreground
  chatfleet start 1 -b          Start server 1 in the background
  chatfleet start-all           Reset and start the whole fleet in order
  chatfleet stop 2              Stop server 2
  chatfleet logs 1 --follow     Follow server 1 logs
  chatfleet demo                Run the bootstrap demonstration
  chatfleet generate-keys       Generate new server keys`,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML fleet config (optional)")
	root.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		createStatusCommand(globalFlags),
		createBuildCommand(globalFlags),
		createStartCommand(globalFlags),
		createStartAllCommand(globalFlags),
		createStopCommand(globalFlags),
		createStopAllCommand(globalFlags),
		createLogsCommand(globalFlags),
		createDemoCommand(globalFlags),
		createGenerateKeysCommand(globalFlags),
		createHistoryCommand(globalFlags),
	)
	return root
}

// newSupervisor assembles the supervisor from flags: fleet config (file
// overlay or compiled-in defaults), diagnostic logger, and the lifecycle
// journal under the logs directory.
func newSupervisor(flags *GlobalFlags) (*chatfleet.Supervisor, chatfleet.Config, error) {
	cfg := chatfleet.DefaultConfig()
	if flags.ConfigPath != "" {
		var err error
		cfg, err = chatfleet.LoadConfig(flags.ConfigPath)
		if err != nil {
			return nil, chatfleet.Config{}, err
		}
	}
	level := slog.LevelInfo
	if flags.Verbose {
		level = slog.LevelDebug
	}
	log := logger.New(os.Stderr, level)

	sup := chatfleet.New(cfg, chatfleet.Options{}, log)
	if err := sup.AttachJournal(filepath.Join(cfg.LogsDir(), "journal.db")); err != nil {
		log.Debug("journal unavailable", "error", err)
	}
	return sup, cfg, nil
}
