package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chainbridge-oss/proofpack/pkg/config"
	"github.com/chainbridge-oss/proofpack/pkg/verifier"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(stderr)
	return cmd
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := newFlagSet("verify", stderr)
	var (
		bundleFlag   = cmd.String("bundle", "", "bundle directory or tar.gz archive (required)")
		allFlag      = cmd.Bool("all", false, "run every check instead of stopping at the first failure")
		metadataFlag = cmd.Bool("include-metadata", false, "records were sealed over metadata and tags")
		jsonFlag     = cmd.Bool("json", false, "print the report as JSON")
		jsonOutFlag  = cmd.String("json-out", "", "also write the JSON report to this file")
	)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if *bundleFlag == "" {
		fmt.Fprintln(stderr, "error: --bundle is required")
		cmd.Usage()
		return 2
	}

	ctx := context.Background()
	obs := newTelemetry(ctx, config.Load())
	defer func() { _ = obs.Shutdown(ctx) }()

	files, err := loadBundle(*bundleFlag)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	v := verifier.New()
	v.CollectAll = *allFlag
	v.IncludeMetadata = *metadataFlag

	started := time.Now()
	report, err := v.Verify(files)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	obs.RecordVerification(ctx, string(report.Outcome), time.Since(started))

	if *jsonOutFlag != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
		if err := os.WriteFile(*jsonOutFlag, append(data, '\n'), 0o644); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
	}

	if *jsonFlag {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
		fmt.Fprintln(stdout, string(data))
	} else {
		printReport(stdout, report)
	}

	if report.Valid() {
		return 0
	}
	return 1
}

// loadBundle accepts either a bundle directory or a tar.gz archive.
func loadBundle(path string) (map[string][]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	if info.IsDir() {
		return verifier.LoadDir(path)
	}
	if strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz") {
		return verifier.LoadArchiveFile(path)
	}
	return nil, fmt.Errorf("bundle %s: expected a directory or a .tar.gz archive", path)
}

func printReport(w io.Writer, report *verifier.Report) {
	if report.PDOID != "" {
		fmt.Fprintf(w, "bundle:  proofpack-%s (format %s)\n", report.PDOID, report.ProofPackVersion)
	}
	for _, check := range report.Checks {
		if check.Passed {
			fmt.Fprintf(w, "  ✅ %s\n", check.Name)
			continue
		}
		fmt.Fprintf(w, "  ❌ %s: %s\n", check.Name, check.Detail)
	}
	if report.Valid() {
		fmt.Fprintf(w, "✅ %s\n", report.Outcome)
		return
	}
	fmt.Fprintf(w, "❌ %s\n", report.Outcome)
}
