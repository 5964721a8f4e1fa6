package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Suffixes of files this tool writes; they are never picked up as input.
var outputSuffixes = []string{" - sent.csv", " - failed.csv"}

// DiscoverFiles returns the CSV files to replay. A file path is returned as
// is; a directory yields its *.csv entries sorted by name, excluding
// subdirectories and previous run output.
func DiscoverFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", path, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".csv") || isOutputFile(name) {
			continue
		}
		files = append(files, filepath.Join(path, name))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no .csv files found in %s", path)
	}
	return files, nil
}

func isOutputFile(name string) bool {
	for _, s := range outputSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
