package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/monban/internal/model"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine counters",
	Long:  "Shows live interviews, locked players, cooldowns, and the whitelist size.",
	RunE:  runStatus,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Long:  "Probes GET /health. Works without an API key.",
	RunE:  runHealth,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var st model.StatusResponse
	if err := client.get(cmd.Context(), "/v1/status", &st); err != nil {
		return err
	}

	fmt.Printf("status:            %s\n", st.Status)
	fmt.Printf("version:           %s\n", st.Version)
	fmt.Printf("uptime:            %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	fmt.Printf("active interviews: %d\n", st.ActiveInterviews)
	fmt.Printf("locked players:    %d\n", st.LockedPlayers)
	fmt.Printf("active cooldowns:  %d\n", st.ActiveCooldowns)
	fmt.Printf("whitelist size:    %d\n", st.WhitelistSize)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := newProbeClient()

	var h model.HealthResponse
	if err := client.get(cmd.Context(), "/health", &h); err != nil {
		return err
	}

	fmt.Printf("%s (version %s, store %s, up %s)\n",
		h.Status, h.Version, h.Store, time.Duration(h.UptimeSeconds)*time.Second)
	return nil
}
