package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkratky/rollcall/internal/metrics"
)

var finalizeCmd = &cobra.Command{
	Use:   "finalize <group>",
	Short: "End a session and mark unrecorded members absent",
	Long: `Finalize the group's session for a date. Every member without an
attendance record for that date gets an absent record. Members already
marked keep their records; running finalize twice is harmless.`,
	Args: cobra.ExactArgs(1),
	RunE: runFinalize,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <group>",
	Short: "Show a group's attendance for a date",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(summaryCmd)

	finalizeCmd.Flags().String("date", "", "Date to finalize (YYYY-MM-DD, default today)")
	summaryCmd.Flags().String("date", "", "Date to summarize (YYYY-MM-DD, default today)")
}

func runFinalize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	date, err := parseDateFlag(mustGetString(cmd, "date"))
	if err != nil {
		return fmt.Errorf("invalid date, expected YYYY-MM-DD: %w", err)
	}

	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	group, err := a.resolveGroup(ctx, args[0])
	if err != nil {
		return err
	}

	marked, err := a.controller.EndSession(ctx, group.ID, date)
	if err != nil {
		return fmt.Errorf("finalizing session: %w", err)
	}
	fmt.Printf("Finalized %s for %s: %d marked absent\n",
		group.Name, date.Format("2006-01-02"), marked)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	date, err := parseDateFlag(mustGetString(cmd, "date"))
	if err != nil {
		return fmt.Errorf("invalid date, expected YYYY-MM-DD: %w", err)
	}

	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	group, err := a.resolveGroup(ctx, args[0])
	if err != nil {
		return err
	}

	summary, records, err := a.ledger.Summarize(ctx, group.ID, date)
	if err != nil {
		return fmt.Errorf("summarizing attendance: %w", err)
	}

	fmt.Printf("%s on %s: %d present, %d late, %d absent\n\n",
		group.Name, date.Format("2006-01-02"), summary.Present, summary.Late, summary.Absent)

	for _, rec := range records {
		identity, err := a.identities.Get(ctx, rec.IdentityID)
		if err != nil {
			return fmt.Errorf("loading identity: %w", err)
		}
		name := rec.IdentityID.String()
		if identity != nil {
			name = fmt.Sprintf("%-12s %s", identity.Code, identity.Name)
		}
		timeIn := "-"
		if rec.TimeIn != nil {
			timeIn = rec.TimeIn.Format("15:04")
		}
		fmt.Printf("  %-8s %-6s %s\n", rec.Status, timeIn, name)
	}
	return nil
}
