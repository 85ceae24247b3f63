// Package universe loads index membership lists from CSV files.
package universe

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader reads index constituent files from one directory. Each index is a
// CSV file named <index>.csv with a header row and the symbol in the first
// column.
type Loader struct {
	Dir string
}

// NewLoader creates a Loader over the given directory.
func NewLoader(dir string) *Loader { return &Loader{Dir: dir} }

// Load returns the symbols of one index, upper-cased, in file order.
func (l *Loader) Load(index string) ([]string, error) {
	path := filepath.Join(l.Dir, strings.ToLower(index)+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading index file %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	symbols := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[0]))
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

// LoadAll returns the deduplicated union of several indices. The union is
// sorted so that seeded sampling over it does not depend on the order the
// indices were listed in.
func (l *Loader) LoadAll(indices []string) ([]string, error) {
	seen := make(map[string]struct{})
	var all []string
	for _, index := range indices {
		symbols, err := l.Load(index)
		if err != nil {
			return nil, err
		}
		for _, sym := range symbols {
			if _, dup := seen[sym]; dup {
				continue
			}
			seen[sym] = struct{}{}
			all = append(all, sym)
		}
	}
	sort.Strings(all)
	return all, nil
}
