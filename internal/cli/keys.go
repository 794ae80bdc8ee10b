package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/monban/internal/model"
)

var (
	keysCreateName string
	keysCreateRole string
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRevokeCmd)

	keysCreateCmd.Flags().StringVar(&keysCreateName, "name", "", "Human-readable key name (required)")
	keysCreateCmd.Flags().StringVar(&keysCreateRole, "role", "reader", "Key role (reader|agent|admin)")
	_ = keysCreateCmd.MarkFlagRequired("name")
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage ops API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	Long:  "Creates a key and prints the raw secret. The secret is shown exactly once.",
	RunE:  runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all API keys, revoked ones included",
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	body := model.CreateKeyRequest{Name: keysCreateName, Role: model.KeyRole(keysCreateRole)}
	var out model.APIKeyWithRawKey
	if err := client.post(cmd.Context(), "/v1/keys", body, &out); err != nil {
		return err
	}

	fmt.Printf("Created key %q (%s), id %s.\n", out.Name, out.Role, out.ID)
	fmt.Printf("Raw key (shown once, store it now):\n\n  %s\n", out.RawKey)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var out struct {
		Keys  []model.APIKey `json:"keys"`
		Total int            `json:"total"`
	}
	if err := client.get(cmd.Context(), "/v1/keys", &out); err != nil {
		return err
	}

	if out.Total == 0 {
		fmt.Println("No API keys.")
		return nil
	}

	fmt.Printf("%-36s %-10s %-20s %-7s %-17s %s\n", "ID", "PREFIX", "NAME", "ROLE", "LAST USED", "REVOKED")
	for _, k := range out.Keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format("2006-01-02 15:04")
		}
		revoked := "-"
		if k.RevokedAt != nil {
			revoked = k.RevokedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-36s %-10s %-20s %-7s %-17s %s\n",
			k.ID, k.Prefix, truncate(k.Name, 20), k.Role, lastUsed, revoked)
	}
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid key id: %w", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	if err := client.del(cmd.Context(), "/v1/keys/"+id.String(), nil); err != nil {
		return err
	}

	fmt.Println("Key revoked.")
	return nil
}
