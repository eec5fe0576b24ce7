package cli

import (
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/pkg/gateway"
)

const maxDescriptionWidth = 72

var (
	toolsRefresh bool
	toolsJSON    bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	Long: `List the tools the gateway discovered on the identity and graph backends.
Use --refresh to bypass the catalog cache.`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsRefresh, "refresh", false, "rediscover tools before listing")
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print the raw catalog")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	method, path := http.MethodGet, "/api/tools"
	if toolsRefresh {
		method, path = http.MethodPost, "/api/tools/refresh"
	}

	var resp gateway.ToolsResponse
	if err := newAPIClient().do(cmd.Context(), method, path, nil, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if toolsJSON {
		return printJSON(out, resp)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, t := range resp.Tools {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, truncate(firstLine(t.Description), maxDescriptionWidth))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d identity, %d graph tools (fetched %s)\n", resp.Identity, resp.Graph, resp.FetchedAt.Format("15:04:05"))
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
