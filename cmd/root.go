package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Face-recognition attendance from the command line",
	Long: `Rollcall records attendance by matching face templates against enrolled
identities. It manages identities and groups, enrolls face templates,
recognizes captured frames, and keeps a daily attendance ledger with
at-most-once marking per identity, group, and day.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
