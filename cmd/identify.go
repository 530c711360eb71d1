package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/session"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify the face in an image against all enrolled templates",
	Long: `Match the face in the image against the full enrolled population and
print who it is. Nothing is recorded; use recognize to mark attendance
within a group.`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	image, err := loadImage(args[0])
	if err != nil {
		return err
	}

	result := a.controller.Identify(ctx, image)
	if result.MultipleFaces {
		fmt.Println("Warning: multiple faces in frame, used the first one")
	}

	switch result.Kind {
	case session.ResultRecognized:
		fmt.Printf("%s (%s, confidence %.2f)\n", result.Identity.Name, result.Identity.Code, result.Confidence)
	case session.ResultNoMatch, session.ResultNoFace:
		fmt.Println(result.Message)
	case session.ResultFailure:
		return fmt.Errorf("identification failed: %s", result.Message)
	}
	return nil
}
