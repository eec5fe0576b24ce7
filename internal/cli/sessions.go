package cli

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/pkg/gateway"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List conversation sessions of the active provider",
	RunE:  runSessions,
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Forget the history of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClear,
}

func init() {
	sessionsCmd.AddCommand(sessionsClearCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	var resp gateway.SessionsResponse
	if err := newAPIClient().do(cmd.Context(), http.MethodGet, "/api/sessions", nil, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d session(s) on %s\n", resp.Count, resp.Provider)
	for _, id := range resp.Sessions {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	path := "/api/sessions/" + url.PathEscape(args[0])
	if err := newAPIClient().do(cmd.Context(), http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s cleared\n", args[0])
	return nil
}
