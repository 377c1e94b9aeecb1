package csvmeta

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const sampleCSV = `Date,Time,Operator,Dose
03/11/2019,14:22:05,kh,1.2
03/11/2019,16:01:33,kh,1.3
04/11/2019,09:15:00,jd,0.9
04/11/2019,09:15:00,jd,0.9
`

func TestLookup(t *testing.T) {
	t.Parallel()

	table, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ts := time.Date(2019, 11, 3, 14, 22, 5, 0, time.UTC)
	row, err := table.Lookup(ts)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if row["Operator"] != "kh" || row["Dose"] != "1.2" {
		t.Fatalf("wrong row: %+v", row)
	}
	if row[DatetimeISOKey] != "2019-11-03 14:22:05" {
		t.Fatalf("iso companion mismatch: %q", row[DatetimeISOKey])
	}
}

func TestLookupNoMatch(t *testing.T) {
	t.Parallel()

	table, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err = table.Lookup(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	var nfe *MetadataNotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("got %v, want MetadataNotFoundError", err)
	}
	if nfe.Matches != 0 {
		t.Fatalf("matches = %d, want 0", nfe.Matches)
	}
}

func TestLookupAmbiguous(t *testing.T) {
	t.Parallel()

	table, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err = table.Lookup(time.Date(2019, 11, 4, 9, 15, 0, 0, time.UTC))
	var nfe *MetadataNotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("got %v, want MetadataNotFoundError", err)
	}
	if nfe.Matches != 2 {
		t.Fatalf("matches = %d, want 2", nfe.Matches)
	}
}

func TestLoadMissingColumns(t *testing.T) {
	t.Parallel()

	if _, err := Load(strings.NewReader("When,What\nnow,this\n")); err == nil {
		t.Fatalf("csv without Date/Time columns accepted")
	}
}

func TestTimestampFromPath(t *testing.T) {
	t.Parallel()

	ts, err := TimestampFromPath("/data/W05/stack_2019-11-03_142205_0.dat", "2006-01-02_150405")
	if err != nil {
		t.Fatalf("infer timestamp: %v", err)
	}
	want := time.Date(2019, 11, 3, 14, 22, 5, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %s, want %s", ts, want)
	}
}

func TestTimestampFromPathAmbiguous(t *testing.T) {
	t.Parallel()

	_, err := TimestampFromPath("/a/2019-11-03_142205/b/2020-01-01_000000.dat", "2006-01-02_150405")
	if err == nil {
		t.Fatalf("ambiguous path accepted")
	}
}

func TestTimestampFromPathMissing(t *testing.T) {
	t.Parallel()

	if _, err := TimestampFromPath("/data/stack_0.dat", "2006-01-02_150405"); err == nil {
		t.Fatalf("path without timestamp accepted")
	}
}
