// canary-gate evaluates a sampled canary report against release thresholds
// and exits 0 on pass, 1 on fail, mirroring the reference canary_gate.py
// CLI's flags and JSON payload shape.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ezchain/validator-core/pkg/canary"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("canary-gate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	reportPath := fs.String("report", "dist/canary_report.json", "path to the sampled canary report JSON file")
	maxCrashRate := fs.Float64("max-crash-rate", canary.DefaultThresholds.MaxCrashRate, "maximum acceptable crash rate")
	minTxSuccessRate := fs.Float64("min-tx-success-rate", canary.DefaultThresholds.MinTxSuccessRate, "minimum acceptable transaction success rate")
	maxSyncLatency := fs.Float64("max-sync-latency-ms-p95", canary.DefaultThresholds.MaxSyncLatencyMsP95, "maximum acceptable p95 sync latency in milliseconds")
	minNodeOnlineRate := fs.Float64("min-node-online-rate", canary.DefaultThresholds.MinNodeOnlineRate, "minimum acceptable node online rate")
	allowMissingLatency := fs.Bool("allow-missing-latency", canary.DefaultThresholds.AllowMissingLatency, "treat a missing sync_latency_ms_p95 field as non-fatal")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	data, err := os.ReadFile(*reportPath)
	if err != nil {
		fmt.Fprintf(stderr, "[canary-gate] failed to read report %s: %v\n", *reportPath, err)
		return 2
	}
	var report canary.Report
	if err := json.Unmarshal(data, &report); err != nil {
		fmt.Fprintf(stderr, "[canary-gate] failed to parse report %s: %v\n", *reportPath, err)
		return 2
	}

	thresholds := canary.Thresholds{
		MaxCrashRate:        *maxCrashRate,
		MinTxSuccessRate:    *minTxSuccessRate,
		MaxSyncLatencyMsP95: *maxSyncLatency,
		MinNodeOnlineRate:   *minNodeOnlineRate,
		AllowMissingLatency: *allowMissingLatency,
	}
	result := canary.Gate(report, thresholds)

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "[canary-gate] failed to encode result: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, string(encoded))

	if !result.OK {
		fmt.Fprintln(stdout, "[canary-gate] FAILED")
		return 1
	}
	fmt.Fprintln(stdout, "[canary-gate] PASSED")
	return 0
}
