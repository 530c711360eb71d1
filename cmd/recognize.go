package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/session"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <group> <image>",
	Short: "Recognize a captured frame and record attendance",
	Long: `Match the face in the image against the group's enrolled members and
record attendance for the best match. Recognizing the same identity
again on the same day reports the existing record instead of creating
a duplicate.`,
	Args: cobra.ExactArgs(2),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	group, err := a.resolveGroup(ctx, args[0])
	if err != nil {
		return err
	}
	image, err := loadImage(args[1])
	if err != nil {
		return err
	}

	result := a.controller.AttemptRecognition(ctx, image, group.ID)
	if result.MultipleFaces {
		fmt.Println("Warning: multiple faces in frame, used the first one")
	}

	switch result.Kind {
	case session.ResultMarked:
		fmt.Printf("%s (confidence %.2f)\n", result.Message, result.Confidence)
	case session.ResultAlreadyRecorded:
		fmt.Printf("%s (status %s)\n", result.Message, result.Record.Status)
	case session.ResultNoMatch, session.ResultNoFace:
		fmt.Println(result.Message)
	case session.ResultFailure:
		return fmt.Errorf("recognition failed: %s", result.Message)
	}
	return nil
}
