package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/watchnode/internal/camera"
	"github.com/smazurov/watchnode/internal/logging"
)

// CreateSnapshotCmd creates the snapshot command.
func CreateSnapshotCmd() *cobra.Command {
	var (
		output     string
		backend    string
		ffmpegPath string
		resolution string
		timeout    time.Duration
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot [source]",
		Short: "Capture a single frame from a camera source",
		Long: `Opens the source with ffmpeg the same way the server does and writes the first frame as JPEG. ` +
			`Use it to check a device path or RTSP URL before adding the camera.`,
		Args:             cobra.ExactArgs(1),
		PersistentPreRun: skipServerSetup,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			level := "warn"
			if verbose {
				level = "debug"
			}
			logging.Initialize(logging.Config{Level: level, Format: "text"})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			opener := &camera.FFmpegOpener{
				Binary:      ffmpegPath,
				OpenTimeout: timeout,
				Resolution:  resolution,
				Logger:      logging.GetLogger("camera"),
			}
			desc := camera.Descriptor{URI: args[0], Backend: backend}

			started := time.Now()
			dev, err := opener.Open(ctx, desc)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer dev.Close()

			if err := dev.Grab(ctx); err != nil {
				return fmt.Errorf("failed to grab frame: %w", err)
			}
			frame, err := dev.Retrieve()
			if err != nil {
				return fmt.Errorf("failed to retrieve frame: %w", err)
			}

			if err := os.WriteFile(output, frame.JPEG, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes from %s (%s) in %s\n",
				output, len(frame.JPEG), args[0], desc.ResolveBackend(), time.Since(started).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "snapshot.jpg", "Output JPEG file")
	cmd.Flags().StringVarP(&backend, "backend", "b", camera.BackendAuto, "Capture backend (auto, v4l2, rtsp, http)")
	cmd.Flags().StringVar(&ffmpegPath, "ffmpeg", "ffmpeg", "Path to the ffmpeg binary")
	cmd.Flags().StringVar(&resolution, "resolution", "", "Requested v4l2 resolution, e.g. 1280x720")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 20*time.Second, "Give up after this long")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log ffmpeg output")
	return cmd
}
