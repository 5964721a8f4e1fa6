// Command replay sends CRM CSV exports as conversion events to a webhook or
// the Conversions API.
//
// Usage:
//
//	replay [-channel webhook|capi] [-timestamp-column name] [-no-upload] <file-or-directory>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/conversion-replay/internal/config"
	"github.com/JonMunkholm/conversion-replay/internal/core"
	"github.com/JonMunkholm/conversion-replay/internal/logging"
	"github.com/JonMunkholm/conversion-replay/internal/replay"
	"github.com/JonMunkholm/conversion-replay/internal/report"
)

func main() {
	os.Exit(run())
}

func run() int {
	channelFlag := flag.String("channel", "", "delivery channel: webhook or capi (overrides REPLAY_CHANNEL)")
	tsColumn := flag.String("timestamp-column", core.FieldConversionTime, "column holding the conversion timestamp")
	noUpload := flag.Bool("no-upload", false, "skip the S3 upload even when OUTPUT_S3_BUCKET is set")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <file-or-directory>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fatal("failed to load configuration", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	name := cfg.Channel
	if *channelFlag != "" {
		name = *channelFlag
	}
	ch, err := config.ParseChannel(name)
	if err != nil {
		return fatal("invalid channel", err)
	}
	runCfg, err := cfg.RunConfiguration(ch)
	if err != nil {
		return fatal("invalid channel configuration", err)
	}

	files, err := replay.DiscoverFiles(flag.Arg(0))
	if err != nil {
		return fatal("no input", err)
	}

	slog.Info("configuration loaded",
		"channel", ch,
		"endpoint", runCfg.EndpointURL,
		"requests_per_minute", runCfg.RequestsPerMinute,
		"batch_size", runCfg.BatchSize,
		"files", len(files),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher *report.S3Publisher
	if cfg.Output.S3Enabled() && !*noUpload {
		publisher, err = report.NewS3Publisher(ctx, cfg.Output.S3Bucket, cfg.Output.S3Region, cfg.Output.S3Prefix)
		if err != nil {
			return fatal("failed to configure artifact upload", err)
		}
	}

	failures := 0
	for _, path := range files {
		if ctx.Err() != nil {
			slog.Warn("stopped, remaining files not processed", "file", filepath.Base(path))
			failures++
			continue
		}
		if err := replayFile(ctx, cfg, runCfg, path, *tsColumn, publisher); err != nil {
			slog.Error("file failed", "file", filepath.Base(path), "error", err)
			fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(path), core.FormatUserError(err))
			failures++
		}
	}

	if failures > 0 {
		return 1
	}
	return 0
}

// replayFile runs one file and writes its artifacts.
func replayFile(ctx context.Context, cfg *config.Config, runCfg core.RunConfiguration, path, tsColumn string, publisher *report.S3Publisher) error {
	base := filepath.Base(path)
	runner, err := replay.NewRunner(runCfg, replay.WithProgress(progressPrinter(base)))
	if err != nil {
		return err
	}

	// Stop before the next call once a signal arrives; calls on the wire finish.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			runner.Stop()
		case <-done:
		}
	}()

	res, err := runner.RunFile(ctx, path, core.ParseOptions{TimestampColumn: tsColumn})
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr)

	artifacts, err := report.WriteAll(cfg.Output.Dir, res)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	fmt.Print(report.Summary(res))

	if publisher != nil {
		// The run may have been interrupted; the upload still goes out.
		keys, err := publisher.Publish(context.WithoutCancel(ctx), res.RunID, artifacts.Paths()...)
		if err != nil {
			return fmt.Errorf("uploading report: %w", err)
		}
		slog.Info("report uploaded", "file", base, "objects", len(keys))
	}

	if res.Stopped {
		return errors.New(core.ReasonCancelled)
	}
	return nil
}

// progressPrinter writes a one-line progress indicator to stderr.
func progressPrinter(name string) core.ProgressCallback {
	return func(_ core.DispatchOutcome, s core.Snapshot) {
		fmt.Fprintf(os.Stderr, "\r%s: %d/%d processed (%s), sent %d, failed %d, skipped %d",
			name, s.Processed(), s.Total, core.FormatPercent(s.Progress()), s.Sent, s.Failed, s.Skipped)
	}
}

func fatal(msg string, err error) int {
	slog.Error(msg, "error", err)
	fmt.Fprintln(os.Stderr, core.FormatUserError(err))
	return 1
}
