package main

import (
	"log/slog"
	"os"

	"github.com/tehasdf/pbcr/internal"
	"github.com/tehasdf/pbcr/internal/cli"
	"github.com/tehasdf/pbcr/internal/container"
)

// The entry point for the pbcr container runtime.
//
// Initializes logging, displays startup information, and executes the root
// command. Pipeline failures exit with a runtime-specific nonzero code; when
// a container runs to completion its exit status becomes the process exit
// status.
func main() {
	// A child re-exec of this binary inside fresh namespaces runs the
	// container init path instead of the CLI. See internal/container.
	if container.IsInit() {
		container.RunInit()
		return
	}

	slog.SetDefault(logger())

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("pbcr is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	os.Exit(cli.Execute())
}

// Creates a logger seeded from build-time linker flags.
//
// The logger is reconfigured after flag parsing via cli.Execute.
func logger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	})
	return slog.New(handler).WithGroup(internal.Name)
}

// Returns the log level derived from build-time linker flags.
func logLevel() slog.Level {
	if internal.IsDebug() {
		return slog.LevelDebug
	}
	if internal.IsQuiet() {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
