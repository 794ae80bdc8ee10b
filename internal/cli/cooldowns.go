package cli

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/monban/internal/model"
)

func init() {
	rootCmd.AddCommand(cooldownsCmd)
	cooldownsCmd.AddCommand(cooldownsListCmd)
	cooldownsCmd.AddCommand(cooldownsClearCmd)
}

var cooldownsCmd = &cobra.Command{
	Use:   "cooldowns",
	Short: "Manage retry lockouts",
}

var cooldownsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active cooldowns",
	RunE:  runCooldownsList,
}

var cooldownsClearCmd = &cobra.Command{
	Use:   "clear <requester> <player>",
	Short: "Lift a cooldown so the requester may apply again immediately",
	Args:  cobra.ExactArgs(2),
	RunE:  runCooldownsClear,
}

func runCooldownsList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var out struct {
		Cooldowns []model.CooldownEntry `json:"cooldowns"`
		Total     int                   `json:"total"`
	}
	if err := client.get(cmd.Context(), "/v1/cooldowns", &out); err != nil {
		return err
	}

	if out.Total == 0 {
		fmt.Println("No active cooldowns.")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-18s %-18s %-10s %s\n", "REQUESTER", "PLAYER", "REASON", "EXPIRES IN")
	for _, c := range out.Cooldowns {
		fmt.Printf("%-18s %-18s %-10s %s\n",
			truncate(c.Requester, 18),
			c.Player,
			c.Reason,
			c.ExpiresAt.Sub(now).Round(time.Second),
		)
	}
	return nil
}

func runCooldownsClear(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	path := "/v1/cooldowns/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1])
	if err := client.del(cmd.Context(), path, nil); err != nil {
		return err
	}

	fmt.Printf("Cooldown cleared; %s may apply for %s again.\n", args[0], args[1])
	return nil
}
