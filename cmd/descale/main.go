package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"descale-qc/internal/logging"
	"descale-qc/internal/scenes"
	"descale-qc/internal/startup"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

type command struct {
	name    string
	summary string
	decodes bool
	run     func(ctx context.Context, e *env, args []string) error
}

func commands() []command {
	return []command{
		{"stats", "compute per-frame statistics and store them in the cache", true, runStats},
		{"scenes", "classify scenes against one descale target", true, runScenes},
		{"kernels", "pick the best of several targets per scene", true, runKernels},
		{"choose", "pick the better of two sources per scene", true, runChoose},
		{"inspect", "print complexity and errors of a frame range", true, runInspect},
		{"offset", "find the frame offset between clips", true, runOffset},
		{"desync", "find where the offset between two clips changes", true, runDesync},
		{"runs", "list, show or delete recorded runs", false, runRuns},
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitError
	}
	name := args[0]
	switch name {
	case "-h", "--help", "help":
		printUsage(stdout)
		return exitOK
	case "version", "--version":
		info := startup.GetBuildInfo()
		fmt.Fprintf(stdout, "descale %s (%s, built %s, %s)\n", info.Version, info.Commit, info.BuildTime, info.GoVersion)
		return exitOK
	}

	var cmd *command
	for _, c := range commands() {
		if c.name == name {
			cmd = &c
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "Unknown command: %s\n", sanitizeCommand(name))
		printUsage(stderr)
		return exitError
	}

	e, err := setup(ctx, stdout, stderr)
	if err != nil {
		logging.Error("%v", err)
		return exitConfig
	}
	defer e.close()
	if cmd.decodes {
		e.initDecoders()
	}

	err = cmd.run(ctx, e, args[1:])
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, scenes.ErrConfig):
		logging.Error("%s: %v", name, err)
		return exitConfig
	default:
		logging.Error("%s: %v", name, err)
		return exitError
	}
}

// sanitizeCommand keeps [a-zA-Z0-9_-] and replaces everything else with
// '_' before echoing user input.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Descale quality control")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: descale <command> [flags] ARGS")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'descale <command> --help' for the flags of a command.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  OUTPUT_DIR       catalogue directory (default .)")
	fmt.Fprintln(w, "  CACHE_DIR        framestats cache (default the user cache directory)")
	fmt.Fprintln(w, "  DATABASE_DIR     run history (default CACHE_DIR)")
	fmt.Fprintln(w, "  DESCALE_WORKERS  candidate workers per frame")
	fmt.Fprintln(w, "  VIPS_ENABLED     load image sequences through libvips (default true)")
	fmt.Fprintln(w, "  LOG_LEVEL        debug, info, warn or error")
}
