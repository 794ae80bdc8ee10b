package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/monban/internal/model"
)

var whitelistRequester string

func init() {
	rootCmd.AddCommand(whitelistCmd)
	whitelistCmd.AddCommand(whitelistListCmd)
	whitelistCmd.AddCommand(whitelistAddCmd)
	whitelistCmd.AddCommand(whitelistRemoveCmd)
	whitelistAddCmd.Flags().StringVar(&whitelistRequester, "requester", "",
		"Attribute the entry to this requester (counts toward their quota)")
}

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Manage the whitelist",
	Long:  "Lists, adds, and removes whitelist entries. Adds and removes also hit the game server.",
}

var whitelistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all whitelist entries",
	RunE:  runWhitelistList,
}

var whitelistAddCmd = &cobra.Command{
	Use:   "add <player>",
	Short: "Add a player directly, bypassing the interview",
	Args:  cobra.ExactArgs(1),
	RunE:  runWhitelistAdd,
}

var whitelistRemoveCmd = &cobra.Command{
	Use:   "remove <player>",
	Short: "Remove a player from the whitelist and the game server",
	Args:  cobra.ExactArgs(1),
	RunE:  runWhitelistRemove,
}

func runWhitelistList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var out struct {
		Entries []model.WhitelistEntry `json:"entries"`
		Total   int                    `json:"total"`
	}
	if err := client.get(cmd.Context(), "/v1/whitelist", &out); err != nil {
		return err
	}

	if out.Total == 0 {
		fmt.Println("The whitelist is empty.")
		return nil
	}

	fmt.Printf("%-18s %-18s %-10s %-6s %s\n", "PLAYER", "REQUESTER", "SOURCE", "SCORE", "ADDED")
	for _, e := range out.Entries {
		score := "-"
		if e.Score != nil {
			score = fmt.Sprintf("%d", *e.Score)
		}
		fmt.Printf("%-18s %-18s %-10s %-6s %s\n",
			e.Player,
			truncate(e.Requester, 18),
			e.Source,
			score,
			e.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	fmt.Printf("%d entries\n", out.Total)
	return nil
}

func runWhitelistAdd(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	body := model.WhitelistAddRequest{Player: args[0], Requester: whitelistRequester}
	var out struct {
		Entry    model.WhitelistEntry `json:"entry"`
		RemoteOK bool                 `json:"remote_ok"`
	}
	if err := client.post(cmd.Context(), "/v1/whitelist", body, &out); err != nil {
		return err
	}

	if out.RemoteOK {
		fmt.Printf("Added %s.\n", out.Entry.Player)
	} else {
		fmt.Printf("Added %s locally; the game server did not confirm. Re-run once it is reachable.\n", out.Entry.Player)
	}
	return nil
}

func runWhitelistRemove(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var out struct {
		Player   string `json:"player"`
		RemoteOK bool   `json:"remote_ok"`
	}
	if err := client.del(cmd.Context(), "/v1/whitelist/"+url.PathEscape(args[0]), &out); err != nil {
		return err
	}

	if out.RemoteOK {
		fmt.Printf("Removed %s.\n", out.Player)
	} else {
		fmt.Printf("Removed %s locally; the game server did not confirm.\n", out.Player)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
