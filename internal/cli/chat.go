package cli

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/pkg/orchestrator"
	"github.com/harun/toolgate/pkg/provider"
	"github.com/harun/toolgate/pkg/routing"
)

var (
	chatSession  string
	chatRealm    string
	chatUser     string
	chatStrategy string
	chatJSON     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a chat message to the gateway",
	Long: `Send one chat message to the gateway at --server and print the answer.
Pass --session to continue a conversation and --realm to scope identity tools.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id (generated when empty)")
	chatCmd.Flags().StringVar(&chatRealm, "realm", "", "identity realm")
	chatCmd.Flags().StringVar(&chatUser, "user", "", "user id")
	chatCmd.Flags().StringVar(&chatStrategy, "strategy", "", "strategy override ("+strategyNames()+")")
	chatCmd.Flags().BoolVar(&chatJSON, "json", false, "print the raw response")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	req := orchestrator.Request{
		Message:   strings.Join(args, " "),
		SessionID: chatSession,
	}
	if chatStrategy != "" {
		strategy, err := routing.ParseStrategy(chatStrategy)
		if err != nil {
			return err
		}
		req.Strategy = strategy
	}
	if chatRealm != "" || chatUser != "" {
		req.Context = &provider.RequestContext{Realm: chatRealm, UserID: chatUser}
	}

	var resp orchestrator.Response
	if err := newAPIClient().do(cmd.Context(), http.MethodPost, "/api/chat", req, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if chatJSON {
		return printJSON(out, resp)
	}
	printChat(out, resp)
	return nil
}

func printChat(out io.Writer, resp orchestrator.Response) {
	fmt.Fprintln(out, resp.Response)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "session: %s  strategy: %s  duration: %.2fs\n", resp.SessionID, resp.Strategy, resp.Duration)
	for _, call := range resp.ToolsCalled {
		mark := "ok"
		if !call.Success {
			mark = "failed: " + call.Error
		}
		fmt.Fprintf(out, "  %s_%s (%dms) %s\n", call.Backend, call.Tool, call.DurationMs, mark)
	}
}

func strategyNames() string {
	all := routing.AllStrategies()
	names := make([]string, 0, len(all))
	for _, s := range all {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}
