package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"sniper-engine/pkg/types"
)

func TestAppendLineCreatesAndAppends(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := r.AppendLine(types.AlgoSniper, "algo-1", "first line"); err != nil {
		t.Fatalf("AppendLine: %v", err)
	}
	if err := r.AppendLine(types.AlgoSniper, "algo-1", "second line"); err != nil {
		t.Fatalf("AppendLine: %v", err)
	}

	data, err := os.ReadFile(r.logPath(types.AlgoSniper, "algo-1"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "first line") || !strings.Contains(string(data), "second line") {
		t.Errorf("log file missing expected lines, got %q", data)
	}
}

func TestLogPathNaming(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := filepath.Join(dir, "sniper_algo-42_.log")
	if got := r.logPath(types.AlgoSniper, "algo-42"); got != want {
		t.Errorf("logPath = %q, want %q", got, want)
	}
}

func TestFinalizeWritesSummaryTable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	summary := Summary{
		AlgoID:    "algo-1",
		AlgoType:  types.AlgoSniper,
		Symbol:    "BTCUSDT",
		Side:      types.Buy,
		Requested: decimal.RequireFromString("1.0"),
		Executed:  decimal.RequireFromString("1.0"),
		Remaining: decimal.Zero,
		State:     "Done",
	}

	if err := r.Finalize(summary); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	path := filepath.Join(dir, "sniper_algo-1_summary.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	body := string(data)
	for _, want := range []string{"algo-1", "BTCUSDT", "BUY", "Done"} {
		if !strings.Contains(body, want) {
			t.Errorf("summary body missing %q, got:\n%s", want, body)
		}
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected .tmp file to be renamed away, stat err = %v", err)
	}
}

func TestFinalizeOverwritesPreviousSummary(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	first := Summary{AlgoID: "algo-1", AlgoType: types.AlgoSniper, State: "Working"}
	second := Summary{AlgoID: "algo-1", AlgoType: types.AlgoSniper, State: "Done"}

	if err := r.Finalize(first); err != nil {
		t.Fatalf("Finalize first: %v", err)
	}
	if err := r.Finalize(second); err != nil {
		t.Fatalf("Finalize second: %v", err)
	}

	path := filepath.Join(dir, "sniper_algo-1_summary.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "Working") {
		t.Errorf("expected final summary to reflect only the second write, got:\n%s", data)
	}
}
