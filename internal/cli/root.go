// Package cli implements the monbanctl command tree. Every command talks to
// a running Monban server over the ops API; nothing here touches the
// database directly.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
)

var rootCmd = &cobra.Command{
	Use:   "monbanctl",
	Short: "Operator CLI for the Monban admission server",
	Long: "Inspects and manages a running Monban server: whitelist, cooldowns,\n" +
		"live interviews, the hash-chained audit log, and ops API keys.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("MONBANCTL_SERVER", "http://localhost:8787"), "Base URL of the Monban server")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key",
		os.Getenv("MONBANCTL_API_KEY"), "Ops API key (env MONBANCTL_API_KEY)")
}

// Execute runs the root command.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
