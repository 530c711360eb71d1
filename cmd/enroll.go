package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mkratky/rollcall/internal/detector"
	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/templates"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <code-or-id> <image>",
	Short: "Enroll a face template from an image",
	Long: `Extract a face template from the image and store it for the identity,
replacing any previous template. Images with several faces use the first
detected face and print a warning.

Examples:
  # Enroll one identity from a photo
  rollcall enroll s123 photos/s123.jpg

  # Bulk-enroll a directory of photos named <code>.jpg
  rollcall enroll --dir photos/`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Bulk-enroll a directory of images named <code>.<ext>")
	enrollCmd.Flags().Int("concurrency", 4, "Number of parallel workers for bulk enrollment")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if dir := mustGetString(cmd, "dir"); dir != "" {
		return runEnrollDir(ctx, cmd, dir)
	}

	if len(args) != 2 {
		return errors.New("expected <code-or-id> <image>, or --dir for bulk enrollment")
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

	image, err := loadImage(args[1])
	if err != nil {
		return err
	}

	outcome, err := a.controller.Enroll(ctx, image, identity.ID)
	if err != nil {
		if errors.Is(err, templates.ErrNoFaceDetected) {
			return fmt.Errorf("no face detected in %s", args[1])
		}
		return fmt.Errorf("enrolling %s: %w", identity.Code, err)
	}
	if outcome.Warning != "" {
		fmt.Printf("Warning: %s\n", outcome.Warning)
	}
	fmt.Printf("Enrolled template for %s (%s, model %s, dim %d)\n",
		identity.Name, identity.Code, outcome.Template.Model, outcome.Template.Dim)
	return nil
}

// loadImage reads an image file and downscales oversized frames.
func loadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	prepared, err := detector.PrepareImage(data, detector.MaxUploadDimension)
	if err != nil {
		return nil, fmt.Errorf("preparing image %s: %w", path, err)
	}
	return prepared, nil
}

// runEnrollDir bulk-enrolls every image in a directory. File names
// (minus extension) are treated as identity codes.
func runEnrollDir(ctx context.Context, cmd *cobra.Command, dir string) error {
	concurrency := mustGetInt(cmd, "concurrency")

	a, err := newApp(ctx, metrics.Nop{})
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			images = append(images, e.Name())
		}
	}
	if len(images) == 0 {
		fmt.Println("No images found")
		return nil
	}

	fmt.Printf("Images to process: %d\n\n", len(images))

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Enrolling templates"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var successCount, errorCount int
	var failures []string
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, name := range images {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fail := func(reason string) {
				mu.Lock()
				errorCount++
				failures = append(failures, fmt.Sprintf("%s: %s", name, reason))
				mu.Unlock()
				bar.Add(1)
			}

			code := strings.TrimSuffix(name, filepath.Ext(name))
			identity, err := a.identities.GetByCode(ctx, code)
			if err != nil {
				fail(err.Error())
				return
			}
			if identity == nil {
				fail("no identity with this code")
				return
			}

			image, err := loadImage(filepath.Join(dir, name))
			if err != nil {
				fail(err.Error())
				return
			}

			if _, err := a.controller.Enroll(ctx, image, identity.ID); err != nil {
				fail(err.Error())
				return
			}

			mu.Lock()
			successCount++
			mu.Unlock()
			bar.Add(1)
		}(name)
	}

	wg.Wait()
	fmt.Println()

	fmt.Printf("\nCompleted: %d enrolled, %d errors\n", successCount, errorCount)
	for _, f := range failures {
		fmt.Printf("  %s\n", f)
	}
	fmt.Printf("Templates in store: %d\n", a.templates.Count())
	return nil
}
