package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/pitchvision/internal/adapters/video"
	app "github.com/okian/pitchvision/internal/app"
	"github.com/okian/pitchvision/internal/config"
	"github.com/okian/pitchvision/internal/videocli"
	"github.com/okian/pitchvision/pkg/logger"
)

func main() {
	var (
		videoPath   = flag.String("video", "", "Input video file")
		outputVideo = flag.String("output-video", "", "Annotated output video file")
		output      = flag.String("output", "", "Analysis JSON file, - for stdout (default: <video>_analysis.json)")
		threshold   = flag.Float64("threshold", -1, "Player confidence threshold (default: configured)")
		progress    = flag.Int("progress", videocli.DefaultProgressLog, "Frames between progress log lines")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		videocli.ShowHelp()
		return
	}

	// Cancelling stops the session; completed frames are still written.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := videocli.SetupLogging(cfg.LogFormat, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if !*verbose {
		_ = logger.SetLevelString(cfg.LogLevel)
	}

	opts, err := app.FromConfig(cfg, logger.Named("service"))
	if err != nil {
		os.Stderr.WriteString("Invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("Failed to start service: " + err.Error() + "\n")
		os.Exit(1)
	}

	_, err = videocli.Run(ctx, &videocli.Config{
		VideoPath:   *videoPath,
		OutputVideo: *outputVideo,
		OutputJSON:  *output,
		Threshold:   *threshold,
		ProgressLog: *progress,
		Verbose:     *verbose,
	}, svc, video.OpenSource, video.CreateSink)
	svc.Stop()
	if err != nil {
		os.Stderr.WriteString("Analysis failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
