// Package canary implements the release gate evaluated against a sampled
// metrics report (§6): a pure threshold check with no I/O, so the CLI
// wrapper in cmd/canary-gate stays a thin read-json/call/exit-code shell.
package canary

import "fmt"

// Report is the JSON shape a canary-monitor probe emits after sampling a
// running node's metrics endpoint. Fields are pointers so "missing from the
// sampled report" is distinguishable from "sampled as zero".
type Report struct {
	CrashRate                 *float64 `json:"crash_rate"`
	TransactionSuccessRateAvg *float64 `json:"transaction_success_rate_avg"`
	SyncLatencyMsP95          *float64 `json:"sync_latency_ms_p95"`
	NodeOnlineRateAvg         *float64 `json:"node_online_rate_avg"`
}

// Thresholds are the release gate's pass/fail limits.
type Thresholds struct {
	MaxCrashRate        float64 `json:"max_crash_rate"`
	MinTxSuccessRate    float64 `json:"min_tx_success_rate"`
	MaxSyncLatencyMsP95 float64 `json:"max_sync_latency_ms_p95"`
	MinNodeOnlineRate   float64 `json:"min_node_online_rate"`
	AllowMissingLatency bool    `json:"allow_missing_latency"`
}

// DefaultThresholds mirrors the reference gate's argument defaults.
var DefaultThresholds = Thresholds{
	MaxCrashRate:        0.05,
	MinTxSuccessRate:    0.95,
	MaxSyncLatencyMsP95: 30000.0,
	MinNodeOnlineRate:   0.95,
	AllowMissingLatency: false,
}

// Evaluate checks report against t, returning every failing condition (not
// just the first) so a single gate run reports everything wrong at once.
func Evaluate(report Report, t Thresholds) []string {
	var failures []string

	if report.CrashRate == nil || *report.CrashRate > t.MaxCrashRate {
		failures = append(failures, fmt.Sprintf("crash_rate exceeds threshold: got=%s limit=%v", formatPtr(report.CrashRate), t.MaxCrashRate))
	}

	if report.TransactionSuccessRateAvg == nil || *report.TransactionSuccessRateAvg < t.MinTxSuccessRate {
		failures = append(failures, fmt.Sprintf("transaction_success_rate_avg below threshold: got=%s limit=%v", formatPtr(report.TransactionSuccessRateAvg), t.MinTxSuccessRate))
	}

	switch {
	case report.SyncLatencyMsP95 == nil && !t.AllowMissingLatency:
		failures = append(failures, "sync_latency_ms_p95 missing")
	case report.SyncLatencyMsP95 != nil && *report.SyncLatencyMsP95 > t.MaxSyncLatencyMsP95:
		failures = append(failures, fmt.Sprintf("sync_latency_ms_p95 exceeds threshold: got=%v limit=%v", *report.SyncLatencyMsP95, t.MaxSyncLatencyMsP95))
	}

	if report.NodeOnlineRateAvg == nil || *report.NodeOnlineRateAvg < t.MinNodeOnlineRate {
		failures = append(failures, fmt.Sprintf("node_online_rate_avg below threshold: got=%s limit=%v", formatPtr(report.NodeOnlineRateAvg), t.MinNodeOnlineRate))
	}

	return failures
}

func formatPtr(v *float64) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", *v)
}

// Result is the gate's structured verdict, suitable for json.Marshal as the
// CLI's stdout payload.
type Result struct {
	OK         bool       `json:"ok"`
	Thresholds Thresholds `json:"thresholds"`
	Failures   []string   `json:"failures"`
}

// Gate runs Evaluate and wraps the outcome in a Result.
func Gate(report Report, t Thresholds) Result {
	failures := Evaluate(report, t)
	return Result{OK: len(failures) == 0, Thresholds: t, Failures: failures}
}
