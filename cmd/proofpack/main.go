// Command proofpack exports tamper-evident decision bundles and verifies
// them offline.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chainbridge-oss/proofpack/pkg/config"
	"github.com/chainbridge-oss/proofpack/pkg/observability"
	"github.com/chainbridge-oss/proofpack/pkg/proofpack"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches to a subcommand and returns the process exit code:
// 0 on success, 1 when an export or verification fails on its own terms,
// 2 on usage or runtime errors.
func Run(args []string, stdout, stderr io.Writer) int {
	configureLogging(stderr, config.Load().LogLevel)

	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "proofpack %s\n", proofpack.ProofPackVersion)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func configureLogging(w io.Writer, level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

// newTelemetry builds the telemetry provider from process config. A broken
// telemetry setup must never block an export or verification, so failures
// degrade to the disabled provider.
func newTelemetry(ctx context.Context, cfg *config.Config) *observability.Provider {
	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.TelemetryEnabled
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.ServiceVersion = proofpack.ProofPackVersion

	p, err := observability.New(ctx, obsCfg)
	if err != nil {
		slog.Warn("telemetry unavailable", "error", err)
		p, _ = observability.New(ctx, &observability.Config{})
	}
	return p
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "proofpack - portable, offline-verifiable decision evidence")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  proofpack <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  export    Export a decision record and its evidence as a bundle")
	fmt.Fprintln(w, "  verify    Verify a bundle without contacting the source system")
	fmt.Fprintln(w, "  version   Print the bundle format version")
	fmt.Fprintln(w, "  help      Show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'proofpack <command> -h' for command flags.")
}
