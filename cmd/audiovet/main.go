// Command audiovet validates the decodability of audio files. Given
// files or directories it streams every supported file (FLAC, MP3,
// WavPack, Ogg-Vorbis) through the matching decoder and reports which
// files decode cleanly and which fail, with structured error details.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiovet/audiovet/internal/config"
	"github.com/audiovet/audiovet/internal/decoder"
	"github.com/audiovet/audiovet/internal/scan"
	"github.com/audiovet/audiovet/internal/ui"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

var (
	configPath string
	workers    int
	bufferMode string
	logLevel   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "audiovet PATH...",
	Short: "Validate that audio files decode cleanly",
	Long: `audiovet opens every supported audio file (flac, fla, mp3, mp2, m2a,
wv, ogg) under the given paths, streams it end-to-end through the
matching decoder, and reports per-file results: passed files sorted by
path and failed files with structured error details (lost sync, CRC or
MD5 mismatches, truncation, sample-count divergence).

Directories are scanned recursively on a background dispatcher while a
pool of workers drains the queue in parallel. WavPack files are checked
together with their .wvc correction file when one sits alongside.`,
	Args:          cobra.MinimumNArgs(1),
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "audiovet.yaml", "path to config file")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "decode workers (0 = logical CPUs, 1 = single-threaded)")
	rootCmd.Flags().StringVar(&bufferMode, "buffer-mode", "", "stream mode: auto, buffered or streaming")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "echo per-file progress")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}
	if bufferMode != "" {
		cfg.BufferMode = bufferMode
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("audiovet starting", "version", version, "workers", cfg.Workers,
		"buffer_mode", cfg.BufferMode, "paths", args)

	factory := decoder.NewFactory()
	console := ui.NewConsole(verbose)
	coord := scan.New(factory, cfg.Workers, console)
	defer coord.Close()

	// The coordinator picks buffered streams for multi-worker pools;
	// the config can force either mode.
	switch cfg.BufferMode {
	case "buffered":
		factory.SetBuffered(true)
	case "streaming":
		factory.SetBuffered(false)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		coord.Cancel()
	}()

	sawDir := false
	for _, path := range args {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			sawDir = true
		}
		coord.AddPath(path)
	}

	// Directories always drive a run through the dispatcher; plain file
	// arguments only do when at least one was supported.
	if !sawDir && coord.Progress().Total() == 0 {
		empty := &scan.Report{Failed: map[string][]string{}}
		fmt.Println(empty.String())
		return nil
	}

	// Ingestion can split across runs (direct files drain while a
	// directory is still scanning); collect every report once the
	// pipeline settles.
	coord.WaitIdle()
	report := &scan.Report{Failed: map[string][]string{}}
	for {
		next, ok := console.NextReport()
		if !ok {
			break
		}
		report.Passed = append(report.Passed, next.Passed...)
		for path, details := range next.Failed {
			report.Failed[path] = append(report.Failed[path], details...)
		}
		report.Processed += next.Processed
	}

	if n := len(report.Failed); n > 0 {
		word := "files"
		if n == 1 {
			word = "file"
		}
		return fmt.Errorf("%d %s failed validation", n, word)
	}
	return nil
}

// parseLogLevel converts a config string ("debug", "info", "warn",
// "error") to its slog.Level equivalent. Unknown values default to Warn.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
