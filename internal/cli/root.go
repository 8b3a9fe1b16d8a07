package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/tehasdf/pbcr/internal"
	"github.com/tehasdf/pbcr/internal/paths"
	"github.com/tehasdf/pbcr/internal/store"
)

// Represents the root command for the pbcr runtime.
var RootCmd struct {
	Quiet   bool   `short:"q" help:"Suppress informational output."`
	Verbose bool   `help:"Enable verbose output."`
	Debug   bool   `short:"d" help:"Enable debug output."`
	Root    string `help:"Override the default state directory." placeholder:"PATH"`

	Pull    PullCmd    `cmd:"" help:"Pull an image from a registry."`
	Run     RunCmd     `cmd:"" help:"Run a container from an image."`
	Images  ImagesCmd  `cmd:"" help:"List pulled images."`
	Ps      PsCmd      `cmd:"" help:"List containers."`
	Rm      RmCmd      `cmd:"" help:"Remove a container."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Carries a container's exit status out of the run command, so the pbcr
// process can exit with the same code.
type exitStatusError struct {
	code int
}

func (e *exitStatusError) Error() string {
	return "container exited with nonzero status"
}

// Parses arguments, configures logging, runs the selected subcommand, and
// returns the process exit code.
//
// A pipeline failure exits 1; a container that ran to completion propagates
// its own exit status.
func Execute() int {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("A small container runtime.\n\nPulls OCI images from a registry and runs them in isolated processes."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	if err := kongCtx.Run(); err != nil {
		var status *exitStatusError
		if errors.As(err, &status) {
			return status.code
		}
		slog.Error(err.Error())
		return 1
	}
	return 0
}

// Opens the state store at the configured or default location.
func openStore() (*store.Store, error) {
	root := RootCmd.Root
	if root == "" {
		root = paths.State()
	}
	return store.New(root)
}

// Configures the global logger based on CLI flags.
//
// Flags are folded into the build-time mode variables so later code can
// consult a single source of truth.
func configureLogger() {
	if RootCmd.Debug {
		internal.SetDebug(true)
	}
	if RootCmd.Quiet {
		internal.SetQuiet(true)
	}
	if RootCmd.Verbose {
		internal.SetVerbose(true)
	}

	level := slog.LevelInfo
	if internal.IsDebug() {
		level = slog.LevelDebug
	} else if internal.IsQuiet() {
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: internal.IsVerbose(),
	})
	slog.SetDefault(slog.New(handler).WithGroup(internal.Name))
}
