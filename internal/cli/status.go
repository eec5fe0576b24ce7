package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/internal/daemon"
	"github.com/harun/toolgate/pkg/gateway"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long: `Show the status of the local gateway process and the health report of the
gateway at --server: active provider, backends and circuit breakers.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if cfg, err := loadConfig(); err == nil {
		printProcessStatus(out, daemon.PIDFilePath(cfg.DataDir))
	}

	var health gateway.HealthResponse
	err := newAPIClient().do(cmd.Context(), http.MethodGet, "/api/health", nil, &health)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		// an unhealthy report is still a report
		err = json.Unmarshal(apiErr.Raw, &health)
	}
	if err != nil {
		fmt.Fprintf(out, "Gateway: unreachable (%v)\n", err)
		return nil
	}

	printHealth(out, health)
	return nil
}

func printProcessStatus(out io.Writer, pidFile string) {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil || !daemon.ProcessAlive(pid) {
		fmt.Fprintln(out, "Process: stopped")
		return
	}

	fmt.Fprintln(out, "Process: running")
	fmt.Fprintf(out, "PID: %d\n", pid)
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}
}

func printHealth(out io.Writer, h gateway.HealthResponse) {
	fmt.Fprintf(out, "Gateway: %s\n", h.Status)
	if h.Provider != "" {
		fmt.Fprintf(out, "Provider: %s\n", h.Provider)
	} else {
		fmt.Fprintln(out, "Provider: none")
	}
	fmt.Fprintf(out, "Sessions: %d\n", h.Sessions)
	fmt.Fprintf(out, "Connections: %d\n", h.Connections)

	names := make([]string, 0, len(h.Backends))
	for name := range h.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b := h.Backends[name]
		if b.Healthy {
			fmt.Fprintf(out, "Backend %s: healthy\n", name)
		} else {
			fmt.Fprintf(out, "Backend %s: down (%s)\n", name, b.Error)
		}
	}
	for _, c := range h.Circuits {
		fmt.Fprintf(out, "Circuit %s: %s\n", c.Dependency, c.State)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
