package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/monban/internal/model"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <requester> <channel> <text>...",
	Short: "Submit one chat line, exactly as a bridge would",
	Long: "Feeds a line into the command gateway. Useful for running an interview from\n" +
		"the terminal: replies, questions, and verdicts for the channel are printed by\n" +
		"the server's deliverer, while the synchronous reply is printed here.\n\n" +
		"Requires an agent or admin key.",
	Example: `  monbanctl send alice cli:alice "wl apply Steve"
  monbanctl send alice cli:alice "Because my friends play on this server."`,
	Args: cobra.MinimumNArgs(3),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	body := model.CommandRequest{
		Requester: args[0],
		Channel:   args[1],
		Text:      strings.Join(args[2:], " "),
	}
	var out model.CommandResponse
	if err := client.post(cmd.Context(), "/v1/commands", body, &out); err != nil {
		return err
	}

	if out.Reply == "" {
		fmt.Println("(no reply)")
		return nil
	}
	fmt.Println(out.Reply)
	return nil
}
