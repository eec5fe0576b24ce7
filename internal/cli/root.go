package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/internal/config"
)

const version = "0.1.0"

const (
	defaultServerURL      = "http://localhost:8000"
	defaultRequestTimeout = 2 * time.Minute
)

var (
	cfgFile        string
	logLevel       string
	envFiles       []string
	serverURL      string
	requestTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Toolgate - AI orchestration gateway",
	Long: `Toolgate is an AI orchestration gateway. It routes chat requests to an LLM
provider, executes the tool calls the model makes against the identity and graph
backends, and keeps the graph copy of identity data in sync.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.toolgate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files loaded before the environment (default .env)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TOOLGATE_SERVER", defaultServerURL), "gateway URL used by client commands")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", defaultRequestTimeout, "timeout for client requests")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the configuration and applies the log level flag when it was set.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile, envFiles...).Load()
	if err != nil {
		return nil, err
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
