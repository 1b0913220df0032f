package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/repository"
	"github.com/cloo-solutions/draftdesk/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type ownerOutput struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func OwnerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Manage owners",
		Long:  "Create and list owners. Every document, section and draft belongs to one owner.",
	}

	cmd.AddCommand(OwnerCreateCmd())
	cmd.AddCommand(OwnerListCmd())

	return cmd
}

func OwnerCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new owner",
		Args:  cobra.ExactArgs(1),
		RunE:  runOwnerCreate,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runOwnerCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	authSvc := service.NewAuthService(repository.NewOwnerRepository(pool), nil, &service.DefaultUUIDGenerator{})

	owner, err := authSvc.CreateOwner(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to create owner: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), ownerOutput{ID: owner.ID, Name: owner.Name, CreatedAt: owner.CreatedAt})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Owner created: %s (%s)\n", owner.Name, owner.ID)
	return nil
}

func OwnerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all owners",
		RunE:  runOwnerList,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runOwnerList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, _, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	authSvc := service.NewAuthService(repository.NewOwnerRepository(pool), nil, &service.DefaultUUIDGenerator{})
	owners, err := authSvc.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("failed to list owners: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		items := make([]ownerOutput, len(owners))
		for i, o := range owners {
			items[i] = ownerOutput{ID: o.ID, Name: o.Name, CreatedAt: o.CreatedAt}
		}
		return writeJSON(out, items)
	}

	if len(owners) == 0 {
		fmt.Fprintln(out, "No owners found")
		return nil
	}
	fmt.Fprintln(out, "Owners:")
	for _, o := range owners {
		fmt.Fprintf(out, "  %s: %s (created: %s)\n", o.ID, o.Name, o.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// resolveOwnerID accepts an owner id or name.
func resolveOwnerID(ctx context.Context, owners service.OwnerRepository, ref string) (string, error) {
	if _, err := uuid.Parse(ref); err == nil {
		owner, err := owners.GetByID(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("owner not found: %s", ref)
		}
		return owner.ID, nil
	}

	owner, err := owners.GetByName(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrOwnerNotFound) {
			return "", fmt.Errorf("owner not found: %s", ref)
		}
		return "", err
	}
	return owner.ID, nil
}
