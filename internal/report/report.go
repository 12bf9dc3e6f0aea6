// Package report writes a per-algo log file and, once the algo reaches
// Done, a finalized plain-text summary report.
//
// Grounded on the teacher's internal/store.Store: same directory-backed,
// mutex-serialized, atomic-file-replacement discipline, repurposed from
// JSON position snapshots to a per-algo write-once artifact — this is
// not the cross-restart position persistence the spec's Non-goals
// exclude, it is a terminal record produced once per finished algo and
// never read back in. The summary table itself is grounded on
// ninjabot's order/controller.go trade-summary table.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"sniper-engine/pkg/types"
)

// Recorder owns the per-algo log files living under dir.
type Recorder struct {
	dir string
	mu  sync.Mutex
}

// Open creates a Recorder backed by dir, creating it if necessary.
func Open(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

// logPath matches the teacher's pos_<marketID>.json naming convention,
// generalized to <algo_type>_<algo_id>_.log.
func (r *Recorder) logPath(algoType types.AlgoType, algoID string) string {
	name := fmt.Sprintf("%s_%s_.log", strings.ToLower(string(algoType)), algoID)
	return filepath.Join(r.dir, name)
}

// AppendLine appends one timestamped line to the algo's log file,
// creating it on first use.
func (r *Recorder) AppendLine(algoType types.AlgoType, algoID, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.logPath(algoType, algoID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open algo log: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), line)
	return err
}

// Summary is the terminal record for one completed algo.
type Summary struct {
	AlgoID    string
	AlgoType  types.AlgoType
	Symbol    string
	Side      types.Side
	Requested decimal.Decimal
	Executed  decimal.Decimal
	Remaining decimal.Decimal
	State     string
}

// Finalize atomically writes the algo's finished-run summary as a
// plain-text table, using the same write-to-.tmp-then-rename sequence
// as the teacher's SavePosition so a crash mid-write never leaves a
// truncated report on disk.
func (r *Recorder) Finalize(summary Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	body := renderSummaryTable(summary)

	path := filepath.Join(r.dir, fmt.Sprintf("%s_%s_summary.txt", strings.ToLower(string(summary.AlgoType)), summary.AlgoID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return os.Rename(tmp, path)
}

func renderSummaryTable(s Summary) string {
	var out strings.Builder
	table := tablewriter.NewWriter(&out)

	data := [][]string{
		{"Algo ID", s.AlgoID},
		{"Type", string(s.AlgoType)},
		{"Symbol", s.Symbol},
		{"Side", string(s.Side)},
		{"Requested", s.Requested.String()},
		{"Executed", s.Executed.String()},
		{"Remaining", s.Remaining.String()},
		{"State", s.State},
	}
	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()
	return out.String()
}
