package cli

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/monban/internal/model"
)

func init() {
	rootCmd.AddCommand(interviewsCmd)
	interviewsCmd.AddCommand(interviewsListCmd)
	interviewsCmd.AddCommand(interviewsCancelCmd)
}

var interviewsCmd = &cobra.Command{
	Use:   "interviews",
	Short: "Inspect and cancel live interviews",
}

var interviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live interviews",
	Long:  "Shows every interview in progress. Questions are never shown for live interviews.",
	RunE:  runInterviewsList,
}

var interviewsCancelCmd = &cobra.Command{
	Use:   "cancel <requester> <channel>",
	Short: "Cancel a live interview without penalty",
	Long:  "Ends the interview with no cooldown. The requester may start over at once.",
	Args:  cobra.ExactArgs(2),
	RunE:  runInterviewsCancel,
}

func runInterviewsList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var out struct {
		Interviews []model.InterviewSnapshot `json:"interviews"`
		Total      int                       `json:"total"`
	}
	if err := client.get(cmd.Context(), "/v1/interviews", &out); err != nil {
		return err
	}

	if out.Total == 0 {
		fmt.Println("No interviews in progress.")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-18s %-18s %-18s %-10s %s\n", "REQUESTER", "CHANNEL", "PLAYER", "QUESTION", "DEADLINE IN")
	for _, iv := range out.Interviews {
		fmt.Printf("%-18s %-18s %-18s %-10s %s\n",
			truncate(iv.Requester, 18),
			truncate(iv.Channel, 18),
			iv.Player,
			fmt.Sprintf("%d/%d", iv.Index+1, iv.QuestionCount),
			iv.Deadline.Sub(now).Round(time.Second),
		)
	}
	return nil
}

func runInterviewsCancel(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	path := "/v1/interviews/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1])
	if err := client.del(cmd.Context(), path, nil); err != nil {
		return err
	}

	fmt.Println("Interview cancelled; no cooldown recorded.")
	return nil
}
