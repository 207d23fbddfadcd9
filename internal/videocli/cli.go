package videocli

import (
	"os"

	"github.com/okian/pitchvision/pkg/logger"
)

// SetupLogging initializes the global logger on stderr so stdout can carry the analysis.
func SetupLogging(format string, verbose bool) error {
	if err := logger.Init(logger.WithWriter(os.Stderr), logger.WithFormat(format)); err != nil {
		return err
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the process-video tool.
func ShowHelp() {
	os.Stdout.WriteString(`pitchvision video analysis
==========================

Runs the detection pipeline over one video file and writes the analysis as JSON.
Detector settings come from the same configuration as the server
(PITCHVISION_* environment variables or the file named by PITCHVISION_CONFIG).

Usage:
  go run ./cmd/process-video -video match.mp4 [options]

Options:
  -video string
        Input video file (required)
  -output-video string
        Write an annotated copy of the video to this file
  -output string
        Analysis JSON file, "-" for stdout (default: <video>_analysis.json)
  -threshold float
        Player confidence threshold (default: configured confidence_threshold)
  -progress int
        Frames between progress log lines (default 100)
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  # Analyze and print to stdout
  go run ./cmd/process-video -video match.mp4 -output -

  # Render annotations with a stricter threshold
  go run ./cmd/process-video -video match.mp4 -output-video annotated.mp4 -threshold 0.7
`)
}
