package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/monban/internal/model"
)

func init() {
	rootCmd.AddCommand(genkeyCmd)
}

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a raw API key locally",
	Long: "Generates a key without contacting a server, for seeding a fresh install:\n" +
		"put it in MONBAN_BOOTSTRAP_API_KEY and the server will store its hash as an\n" +
		"admin key on first start.",
	RunE: runGenkey,
}

func runGenkey(cmd *cobra.Command, args []string) error {
	rawKey, prefix, err := model.GenerateRawKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	fmt.Printf("%s\n", rawKey)
	fmt.Fprintf(cmd.ErrOrStderr(), "prefix: %s\n", prefix)
	return nil
}
