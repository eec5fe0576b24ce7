package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/pkg/datasync"
	"github.com/harun/toolgate/pkg/gateway"
)

var (
	syncScope string
	syncForce bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy identity data into the graph",
	Long: `Trigger a synchronization of identity data into the graph database.
Without --force a scope that is still fresh is skipped.`,
	RunE: runSync,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the freshness of a scope",
	RunE:  runSyncStatus,
}

var syncIntegrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Compare identity and graph record counts",
	RunE:  runSyncIntegrity,
}

var syncJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List scheduled background syncs",
	RunE:  runSyncJobs,
}

func init() {
	syncCmd.PersistentFlags().StringVar(&syncScope, "scope", "", "realm to synchronize (server default when empty)")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "sync even when the scope is fresh")
	syncCmd.AddCommand(syncStatusCmd, syncIntegrityCmd, syncJobsCmd)
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	var result datasync.SyncResult
	req := gateway.SyncRequest{Scope: syncScope, Force: syncForce}
	if err := newAPIClient().do(cmd.Context(), http.MethodPost, "/api/sync", req, &result); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case result.Skipped:
		fmt.Fprintf(out, "Sync of %s skipped: %s\n", result.Scope, result.Reason)
	case result.Success:
		fmt.Fprintf(out, "Synced %d records for %s in %s\n", result.RecordsSynced, result.Scope, result.Duration)
	default:
		return fmt.Errorf("sync of %s failed: %s", result.Scope, result.Error)
	}
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	var status datasync.Status
	if err := newAPIClient().do(cmd.Context(), http.MethodGet, "/api/sync/status"+scopeQuery(), nil, &status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scope: %s\n", status.Scope)
	if status.Metadata != nil {
		fmt.Fprintf(out, "Last synced: %s (%d records from %s)\n",
			status.Metadata.LastSyncedAt.Format("2006-01-02 15:04:05"), status.Metadata.RecordCount, status.Metadata.Source)
	} else {
		fmt.Fprintln(out, "Last synced: never")
	}
	if status.Freshness != nil && status.Freshness.NeedsRefresh {
		fmt.Fprintln(out, "Needs refresh: yes")
	} else {
		fmt.Fprintln(out, "Needs refresh: no")
	}
	return nil
}

func runSyncIntegrity(cmd *cobra.Command, args []string) error {
	var report datasync.IntegrityReport
	if err := newAPIClient().do(cmd.Context(), http.MethodGet, "/api/sync/integrity"+scopeQuery(), nil, &report); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scope: %s\n", report.Scope)
	fmt.Fprintf(out, "Identity: %d  Graph: %d  Discrepancy: %d\n", report.SourceCount, report.TargetCount, report.Discrepancy)
	for _, issue := range report.Issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
	if !report.IsValid {
		return fmt.Errorf("integrity check failed for %s", report.Scope)
	}
	fmt.Fprintln(out, "Integrity: ok")
	return nil
}

func runSyncJobs(cmd *cobra.Command, args []string) error {
	var resp gateway.JobsResponse
	if err := newAPIClient().do(cmd.Context(), http.MethodGet, "/api/sync/jobs", nil, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !resp.Scheduled {
		fmt.Fprintln(out, "No sync schedule configured")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSCHEDULE\tLAST\tRUNS\tNEXT")
	for _, job := range resp.Jobs {
		last := job.State.LastStatus
		if last == "" {
			last = "-"
		}
		if job.State.LastError != "" {
			last += " (" + job.State.LastError + ")"
		}
		next := "-"
		if job.State.NextRunAt != nil {
			next = job.State.NextRunAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", job.Name, job.Schedule, last, job.State.Runs, next)
	}
	return tw.Flush()
}

func scopeQuery() string {
	if syncScope == "" {
		return ""
	}
	return "?scope=" + url.QueryEscape(syncScope)
}
