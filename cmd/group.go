package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/store"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups",
}

var groupAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a new group",
	Long: `Create a new group.

The --schedule flag accepts a human-readable schedule whose first time
range determines the lateness cutoff, for example "MWF 8:00-9:00" or
"TR 2:00pm-3:30pm". Identities recognized after the start time plus the
grace period are marked late.`,
	Args: cobra.ExactArgs(1),
	RunE: runGroupAdd,
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	RunE:  runGroupList,
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupAddCmd)
	groupCmd.AddCommand(groupListCmd)

	groupAddCmd.Flags().String("owner", "", "Group owner")
	groupAddCmd.Flags().String("department", "", "Department name")
	groupAddCmd.Flags().String("schedule", "", "Schedule, e.g. \"MWF 8:00-9:00\"")
}

func runGroupAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	group := &store.Group{
		ID:         uuid.New(),
		Name:       args[0],
		Owner:      mustGetString(cmd, "owner"),
		Department: mustGetString(cmd, "department"),
		Schedule:   mustGetString(cmd, "schedule"),
	}
	if err := a.groups.Create(ctx, group); err != nil {
		return fmt.Errorf("creating group: %w", err)
	}
	fmt.Printf("Created group %s (%s)\n", group.Name, group.ID)
	return nil
}

func runGroupList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	groups, err := a.groups.List(ctx)
	if err != nil {
		return fmt.Errorf("listing groups: %w", err)
	}
	if len(groups) == 0 {
		fmt.Println("No groups found")
		return nil
	}
	for _, g := range groups {
		members, err := a.identities.ListByGroup(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("counting members: %w", err)
		}
		schedule := g.Schedule
		if schedule == "" {
			schedule = "-"
		}
		fmt.Printf("%-25s %-20s %3d members  %s\n", g.Name, schedule, len(members), g.ID)
	}
	return nil
}
