package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/internal/daemon"
	"github.com/harun/toolgate/internal/logger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the toolgate gateway",
	Long: `Start the toolgate gateway in the foreground.
The gateway serves the HTTP and WebSocket API until it receives SIGINT or SIGTERM,
then drains in-flight requests and background syncs before exiting.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("gateway is already running (PID file: %s)", pidFile)
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "toolgate listening on %s\n", d.Status().Addr)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d.Wait(ctx)
	return nil
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}
