package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/store"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage enrolled identities",
}

var identityAddCmd = &cobra.Command{
	Use:   "add <code> <name>",
	Short: "Register a new identity",
	Args:  cobra.ExactArgs(2),
	RunE:  runIdentityAdd,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities",
	RunE:  runIdentityList,
}

var identityRemoveCmd = &cobra.Command{
	Use:   "rm <code-or-id>",
	Short: "Remove an identity and its template and attendance records",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityRemove,
}

var identityAssignCmd = &cobra.Command{
	Use:   "assign <code-or-id> <group>",
	Short: "Assign an identity to a group",
	Args:  cobra.ExactArgs(2),
	RunE:  runIdentityAssign,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityAddCmd)
	identityCmd.AddCommand(identityListCmd)
	identityCmd.AddCommand(identityRemoveCmd)
	identityCmd.AddCommand(identityAssignCmd)

	identityAddCmd.Flags().String("email", "", "Contact email")
	identityAddCmd.Flags().String("department", "", "Department name")
	identityAddCmd.Flags().String("group", "", "Group name or ID to assign")
	identityListCmd.Flags().String("group", "", "Only list members of this group")
}

func runIdentityAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	code, name := args[0], args[1]
	if existing, err := a.identities.GetByCode(ctx, code); err != nil {
		return fmt.Errorf("checking code: %w", err)
	} else if existing != nil {
		return fmt.Errorf("identity with code %q already exists", code)
	}

	identity := &store.Identity{
		ID:         uuid.New(),
		Code:       code,
		Name:       name,
		Email:      mustGetString(cmd, "email"),
		Department: mustGetString(cmd, "department"),
	}

	if groupRef := mustGetString(cmd, "group"); groupRef != "" {
		group, err := a.resolveGroup(ctx, groupRef)
		if err != nil {
			return err
		}
		identity.GroupID = &group.ID
	}

	if err := a.identities.Create(ctx, identity); err != nil {
		return fmt.Errorf("creating identity: %w", err)
	}
	fmt.Printf("Created identity %s (%s)\n", identity.Name, identity.ID)
	return nil
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	var identities []store.Identity
	if groupRef := mustGetString(cmd, "group"); groupRef != "" {
		group, err := a.resolveGroup(ctx, groupRef)
		if err != nil {
			return err
		}
		identities, err = a.identities.ListByGroup(ctx, group.ID)
		if err != nil {
			return fmt.Errorf("listing group members: %w", err)
		}
	} else {
		identities, err = a.identities.List(ctx)
		if err != nil {
			return fmt.Errorf("listing identities: %w", err)
		}
	}

	if len(identities) == 0 {
		fmt.Println("No identities found")
		return nil
	}
	for _, id := range identities {
		enrolled := " "
		if _, ok := a.templates.Get(id.ID); ok {
			enrolled = "*"
		}
		fmt.Printf("%s %-12s %-30s %s\n", enrolled, id.Code, id.Name, id.ID)
	}
	fmt.Printf("\n%d identities (* = template enrolled)\n", len(identities))
	return nil
}

func runIdentityRemove(cmd *cobra.Command, args []string) error {
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
	if err := a.identities.Delete(ctx, identity.ID); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	fmt.Printf("Deleted identity %s (%s)\n", identity.Name, identity.Code)
	return nil
}

func runIdentityAssign(cmd *cobra.Command, args []string) error {
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
	group, err := a.resolveGroup(ctx, args[1])
	if err != nil {
		return err
	}
	if err := a.identities.AssignGroup(ctx, identity.ID, &group.ID); err != nil {
		return fmt.Errorf("assigning group: %w", err)
	}
	fmt.Printf("Assigned %s to %s\n", identity.Name, group.Name)
	return nil
}
