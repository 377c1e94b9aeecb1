// Package csvmeta joins decoded dump metadata with rows of an external
// acquisition-log CSV, keyed by acquisition timestamp.
package csvmeta

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/samcharles93/fibarc/internal/dat"
)

const (
	timeColumnFormat = "15:04:05"

	// DatetimeISOKey carries the join timestamp in the merged row,
	// formatted as an unambiguous ISO-8601 datetime.
	DatetimeISOKey = "Datetime__iso"
)

// MetadataNotFoundError reports a timestamp that matched any number of CSV
// rows other than exactly one.
type MetadataNotFoundError struct {
	Timestamp time.Time
	Matches   int
}

func (e *MetadataNotFoundError) Error() string {
	return fmt.Sprintf("%d csv rows match acquisition time %s, want exactly 1",
		e.Matches, e.Timestamp.Format("2006-01-02 15:04:05"))
}

// Table is a loaded metadata CSV. It must have string "Date" and "Time"
// columns in day/month/year and HH:MM:SS formats respectively.
type Table struct {
	columns []string
	rows    [][]string
	dateCol int
	timeCol int
}

// Load reads a metadata CSV. All rows are held in memory; acquisition logs
// are small.
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read metadata csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("metadata csv has no header row")
	}

	t := &Table{columns: records[0], rows: records[1:], dateCol: -1, timeCol: -1}
	for i, col := range t.columns {
		switch col {
		case "Date":
			t.dateCol = i
		case "Time":
			t.timeCol = i
		}
	}
	if t.dateCol < 0 || t.timeCol < 0 {
		return nil, fmt.Errorf("metadata csv missing Date/Time columns: %v", t.columns)
	}
	return t, nil
}

// Columns returns the CSV header row.
func (t *Table) Columns() []string { return t.columns }

// Lookup finds the single row whose Date and Time columns match the given
// acquisition timestamp and returns it as a column→value map, with an extra
// DatetimeISOKey entry carrying the ISO form of the timestamp.
func (t *Table) Lookup(ts time.Time) (map[string]string, error) {
	dateStr := ts.Format(dat.DateFormat())
	timeStr := ts.Format(timeColumnFormat)

	var match []string
	matches := 0
	for _, row := range t.rows {
		if t.dateCol >= len(row) || t.timeCol >= len(row) {
			continue
		}
		if row[t.dateCol] == dateStr && row[t.timeCol] == timeStr {
			match = row
			matches++
		}
	}
	if matches != 1 {
		return nil, &MetadataNotFoundError{Timestamp: ts, Matches: matches}
	}

	out := make(map[string]string, len(t.columns)+1)
	for i, col := range t.columns {
		if i < len(match) {
			out[col] = match[i]
		}
	}
	out[DatetimeISOKey] = ts.Format("2006-01-02 15:04:05")
	return out, nil
}

// TimestampFromPath infers a file's acquisition timestamp from its path
// using a Go time layout that appears somewhere in the path, e.g.
// "2006-01-02_150405". The layout must format to a fixed width. Exactly one
// distinct timestamp must be present in the path.
func TimestampFromPath(path, layout string) (time.Time, error) {
	width := len(time.Time{}.Format(layout))
	if width == 0 || len(path) < width {
		return time.Time{}, fmt.Errorf("no timestamp matching layout %q in path %q", layout, path)
	}

	seen := make(map[time.Time]struct{})
	var found time.Time
	for i := 0; i+width <= len(path); i++ {
		ts, err := time.Parse(layout, path[i:i+width])
		if err != nil {
			continue
		}
		if _, ok := seen[ts]; !ok {
			seen[ts] = struct{}{}
			found = ts
		}
	}
	if len(seen) != 1 {
		return time.Time{}, fmt.Errorf("cannot match timestamp, %d options found for layout %q in path %q",
			len(seen), layout, path)
	}
	return found, nil
}
