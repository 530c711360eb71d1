package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/store"
)

var markCmd = &cobra.Command{
	Use:   "mark <code-or-id> <group> <status>",
	Short: "Record or correct attendance manually",
	Long: `Record attendance directly, bypassing face recognition. Manual marks
overwrite existing records, so this is also how corrections work.

Status is one of: present, late, absent.`,
	Args: cobra.ExactArgs(3),
	RunE: runMark,
}

func init() {
	rootCmd.AddCommand(markCmd)

	markCmd.Flags().String("date", "", "Date to mark (YYYY-MM-DD, default today)")
}

func runMark(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	status, err := store.ParseStatus(args[2])
	if err != nil {
		return err
	}
	date, err := parseDateFlag(mustGetString(cmd, "date"))
	if err != nil {
		return fmt.Errorf("invalid date, expected YYYY-MM-DD: %w", err)
	}

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

	rec, err := a.controller.MarkManual(ctx, identity.ID, group.ID, date, status)
	if err != nil {
		return fmt.Errorf("marking attendance: %w", err)
	}
	fmt.Printf("Marked %s as %s in %s on %s\n",
		identity.Name, rec.Status, group.Name, rec.Date.Format("2006-01-02"))
	return nil
}
