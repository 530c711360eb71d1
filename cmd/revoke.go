package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/store"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <code-or-id>",
	Short: "Remove an identity's face template",
	Long: `Remove the identity's stored face template. The identity stays
registered but can no longer be recognized until re-enrolled.`,
	Args: cobra.ExactArgs(1),
	RunE: runRevoke,
}

func init() {
	rootCmd.AddCommand(revokeCmd)
}

func runRevoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.resolveIdentity(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.controller.Revoke(ctx, identity.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s has no template enrolled", identity.Code)
		}
		return fmt.Errorf("revoking template: %w", err)
	}
	fmt.Printf("Revoked template for %s (%s)\n", identity.Name, identity.Code)
	return nil
}
