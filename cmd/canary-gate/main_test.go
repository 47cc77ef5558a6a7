package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeReport(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}
	return path
}

func TestRun_HealthyReportExitsZero(t *testing.T) {
	dir := t.TempDir()
	path := writeReport(t, dir, `{
		"crash_rate": 0.01,
		"transaction_success_rate_avg": 0.99,
		"sync_latency_ms_p95": 500,
		"node_online_rate_avg": 0.98
	}`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--report", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stdout=%s stderr=%s", code, stdout.String(), stderr.String())
	}
	if !strings.Contains(stdout.String(), "PASSED") {
		t.Errorf("expected PASSED in stdout, got: %s", stdout.String())
	}
}

func TestRun_UnhealthyReportExitsOne(t *testing.T) {
	dir := t.TempDir()
	path := writeReport(t, dir, `{"crash_rate": 0.9}`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--report", path}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1; stdout=%s", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), "FAILED") {
		t.Errorf("expected FAILED in stdout, got: %s", stdout.String())
	}
}

func TestRun_MissingReportFileExitsTwo(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--report", "/nonexistent/report.json"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRun_AllowMissingLatencyFlagIsRespected(t *testing.T) {
	dir := t.TempDir()
	path := writeReport(t, dir, `{
		"crash_rate": 0.01,
		"transaction_success_rate_avg": 0.99,
		"node_online_rate_avg": 0.98
	}`)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--report", path}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected missing latency to fail by default, got exit code %d", code)
	}

	stdout.Reset()
	stderr.Reset()
	code = run([]string{"--report", path, "--allow-missing-latency"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected --allow-missing-latency to pass, got exit code %d; stdout=%s", code, stdout.String())
	}
}
