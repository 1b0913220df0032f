package admin

import (
	"fmt"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/repository"
	"github.com/cloo-solutions/draftdesk/internal/service"
	"github.com/spf13/cobra"
)

type apiKeyOutput struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	OwnerID   string     `json:"owner_id"`
	Token     string     `json:"token,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create, list, and revoke API keys",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyListCmd())
	cmd.AddCommand(APIKeyRevokeCmd())

	return cmd
}

func APIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Create a new API key bound to an owner. The token is printed once.",
		RunE:  runAPIKeyCreate,
	}

	cmd.Flags().String("owner", "", "Owner ID or name (required)")
	cmd.Flags().StringP("name", "n", "", "API key name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ownerRef, _ := cmd.Flags().GetString("owner")
	name, _ := cmd.Flags().GetString("name")
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	ownerRepo := repository.NewOwnerRepository(pool)
	authSvc := service.NewAuthService(ownerRepo, repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{})

	ownerID, err := resolveOwnerID(ctx, ownerRepo, ownerRef)
	if err != nil {
		return err
	}

	token, err := authSvc.CreateAPIKey(ctx, ownerID, name)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	key, err := authSvc.GetAPIKeyByHash(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to read back created key: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, apiKeyOutput{
			ID:        key.ID,
			Name:      key.Name,
			OwnerID:   ownerID,
			Token:     token,
			CreatedAt: key.CreatedAt,
		})
	}

	fmt.Fprintf(out, "API key created for owner %s\n", ownerID)
	fmt.Fprintf(out, "Key ID: %s\n", key.ID)
	fmt.Fprintf(out, "Key Name: %s\n", key.Name)
	fmt.Fprintf(out, "Token: %s\n", token)
	fmt.Fprintln(out, "\nSave this token now. It cannot be shown again.")
	return nil
}

func APIKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for an owner",
		RunE:  runAPIKeyList,
	}

	cmd.Flags().String("owner", "", "Owner ID or name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ownerRef, _ := cmd.Flags().GetString("owner")
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	ownerRepo := repository.NewOwnerRepository(pool)
	authSvc := service.NewAuthService(ownerRepo, repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{})

	ownerID, err := resolveOwnerID(ctx, ownerRepo, ownerRef)
	if err != nil {
		return err
	}

	keys, err := authSvc.ListAPIKeys(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		items := make([]apiKeyOutput, len(keys))
		for i, k := range keys {
			items[i] = apiKeyOutput{ID: k.ID, Name: k.Name, OwnerID: k.OwnerID, CreatedAt: k.CreatedAt, RevokedAt: k.RevokedAt}
		}
		return writeJSON(out, items)
	}

	if len(keys) == 0 {
		fmt.Fprintf(out, "No API keys found for owner %s\n", ownerID)
		return nil
	}
	fmt.Fprintf(out, "API keys for owner %s:\n", ownerID)
	for _, k := range keys {
		status := "active"
		if k.IsRevoked() {
			status = "revoked"
		}
		fmt.Fprintf(out, "  %s: %s (%s, created: %s)\n", k.ID, k.Name, status, k.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func APIKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyRevoke,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	keyID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	authSvc := service.NewAuthService(repository.NewOwnerRepository(pool), repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{})
	if err := authSvc.RevokeAPIKey(ctx, keyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"id": keyID, "revoked": true})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "API key %s revoked\n", keyID)
	return nil
}
