package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/conversion-replay/internal/replay"
)

// Artifacts lists the files written for one run. Empty paths were not written.
type Artifacts struct {
	SentPath    string
	FailedPath  string
	SummaryPath string
	SentRows    int
	FailedRows  int
}

// Paths returns the written files.
func (a Artifacts) Paths() []string {
	var out []string
	for _, p := range []string{a.SentPath, a.FailedPath, a.SummaryPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BaseName returns the artifact prefix for a run: the source file name
// without .csv, or replay-<run id> for in-memory runs.
func BaseName(res *replay.Result) string {
	if res.Source == "" {
		return "replay-" + res.RunID
	}
	name := filepath.Base(res.Source)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// WriteAll writes "<name> - sent.csv", "<name> - failed.csv" and
// "<name> - summary.txt" into dir. Dumps without rows are not written.
func WriteAll(dir string, res *replay.Result) (Artifacts, error) {
	var a Artifacts

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return a, fmt.Errorf("create output directory: %w", err)
	}
	base := BaseName(res)

	sentPath := filepath.Join(dir, base+" - sent.csv")
	n, err := writeFile(sentPath, func(f *os.File) (int, error) { return WriteSent(f, res) })
	if err != nil {
		return a, err
	}
	if n > 0 {
		a.SentPath, a.SentRows = sentPath, n
	}

	failedPath := filepath.Join(dir, base+" - failed.csv")
	n, err = writeFile(failedPath, func(f *os.File) (int, error) { return WriteFailed(f, res) })
	if err != nil {
		return a, err
	}
	if n > 0 {
		a.FailedPath, a.FailedRows = failedPath, n
	}

	summaryPath := filepath.Join(dir, base+" - summary.txt")
	if _, err := writeFile(summaryPath, func(f *os.File) (int, error) { return 1, WriteSummary(f, res) }); err != nil {
		return a, err
	}
	a.SummaryPath = summaryPath

	return a, nil
}

// writeFile creates path and fills it with write. A file that ends up with
// no data rows is removed.
func writeFile(path string, write func(*os.File) (int, error)) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}

	n, werr := write(f)
	cerr := f.Close()
	if werr != nil {
		return 0, fmt.Errorf("write %s: %w", filepath.Base(path), werr)
	}
	if cerr != nil {
		return 0, fmt.Errorf("close %s: %w", filepath.Base(path), cerr)
	}

	if n == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("remove empty %s: %w", filepath.Base(path), err)
		}
	}
	return n, nil
}
