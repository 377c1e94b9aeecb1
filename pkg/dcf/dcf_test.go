package dcf

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stack.dcf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.WriteSection(SectionAttributes, 1, []byte(`{"ChanNum":2}`)); err != nil {
		t.Fatalf("write attributes: %v", err)
	}
	if err := w.WriteSection(SectionRawHeader, 1, bytes.Repeat([]byte{0xAB}, 1024)); err != nil {
		t.Fatalf("write raw header: %v", err)
	}
	if err := w.WriteSection(SectionDatasetData, 1, []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("write dataset data: %v", err)
	}
	if err := w.Finalise(); err != nil {
		t.Fatalf("finalise: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close writer file: %v", err)
	}

	df, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		if cerr := df.Close(); cerr != nil {
			t.Fatalf("close dcf file: %v", cerr)
		}
	}()

	if df.Header == nil {
		t.Fatalf("missing header")
	}
	if df.Header.HeaderSize != headerSize {
		t.Fatalf("header size mismatch: got %d want %d", df.Header.HeaderSize, headerSize)
	}
	if df.Header.SectionCount != 3 {
		t.Fatalf("section count mismatch: got %d", df.Header.SectionCount)
	}

	attrsSec := df.Section(SectionAttributes)
	if attrsSec == nil {
		t.Fatalf("missing attributes section")
	}
	if got := df.SectionData(attrsSec); !bytes.Equal(got, []byte(`{"ChanNum":2}`)) {
		t.Fatalf("attributes mismatch: got %q", string(got))
	}

	hdrSec := df.Section(SectionRawHeader)
	if hdrSec == nil {
		t.Fatalf("missing raw header section")
	}
	if got := df.SectionData(hdrSec); len(got) != 1024 || got[0] != 0xAB {
		t.Fatalf("raw header payload mismatch: len=%d", len(got))
	}

	if df.Section(SectionRawFooter) != nil {
		t.Fatalf("unexpected raw footer section")
	}
}

func TestStreamedSectionAligned(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stream.dcf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.WriteSection(SectionAttributes, 1, []byte("{}")); err != nil {
		t.Fatalf("write attributes: %v", err)
	}

	sw, err := w.BeginSection(SectionDatasetData, 1)
	if err != nil {
		t.Fatalf("begin section: %v", err)
	}
	if _, err := sw.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sw.Align(8); err != nil {
		t.Fatalf("align: %v", err)
	}
	off, err := sw.Offset()
	if err != nil {
		t.Fatalf("offset: %v", err)
	}
	if off%8 != 0 {
		t.Fatalf("offset not aligned: %d", off)
	}
	if _, err := sw.Write([]byte{4, 5}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sw.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := w.Finalise(); err != nil {
		t.Fatalf("finalise: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	df, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = df.Close() }()

	sec := df.Section(SectionDatasetData)
	if sec == nil {
		t.Fatalf("missing dataset data section")
	}
	if sec.Offset%sectionAlign != 0 {
		t.Fatalf("section offset not aligned: %d", sec.Offset)
	}
	data := df.SectionData(sec)
	if len(data) < 5 || data[0] != 1 || data[len(data)-1] != 5 {
		t.Fatalf("streamed payload mismatch: %v", data)
	}
}

func TestDuplicateSectionRejected(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "dup.dcf"))
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer func() { _ = f.Close() }()

	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.WriteSection(SectionAttributes, 1, []byte("{}")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.WriteSection(SectionAttributes, 1, []byte("{}")); err == nil {
		t.Fatalf("duplicate section accepted")
	}
}

func TestHeaderAndSectionEncodingLittleEndian(t *testing.T) {
	t.Parallel()

	h := Header{
		Magic:            [4]byte{'D', 'C', 'F', 0},
		Major:            0x1122,
		Minor:            0x3344,
		HeaderSize:       headerSize,
		SectionCount:     5,
		SectionDirOffset: 0x0102030405060708,
		FileSize:         0x1112131415161718,
		Flags:            0x2122232425262728,
	}
	var hdrRaw [headerSize]byte
	if !encodeHeader(hdrRaw[:], h) {
		t.Fatalf("encode header failed")
	}
	if hdrRaw[4] != 0x22 || hdrRaw[5] != 0x11 {
		t.Fatalf("major is not little-endian: %x", hdrRaw[4:6])
	}
	if hdrRaw[16] != 0x08 || hdrRaw[23] != 0x01 {
		t.Fatalf("section dir offset is not little-endian: %x", hdrRaw[16:24])
	}
	decodedH, ok := decodeHeader(hdrRaw[:])
	if !ok {
		t.Fatalf("decode header failed")
	}
	if decodedH != h {
		t.Fatalf("header round-trip mismatch: got %+v want %+v", decodedH, h)
	}

	s := Section{
		Type:    0x11223344,
		Version: 0x55667788,
		Offset:  0x0102030405060708,
		Size:    0x1112131415161718,
	}
	var secRaw [sectionSize]byte
	if !encodeSection(secRaw[:], s) {
		t.Fatalf("encode section failed")
	}
	if secRaw[0] != 0x44 || secRaw[3] != 0x11 {
		t.Fatalf("section type is not little-endian: %x", secRaw[0:4])
	}
	decodedS, ok := decodeSection(secRaw[:])
	if !ok {
		t.Fatalf("decode section failed")
	}
	if decodedS != s {
		t.Fatalf("section round-trip mismatch: got %+v want %+v", decodedS, s)
	}
}

func TestOpenRejectsCorruptFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	build := func(name string, mutate func([]byte) []byte) string {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		w, err := NewWriter(f)
		if err != nil {
			t.Fatalf("new writer: %v", err)
		}
		if err := w.WriteSection(SectionAttributes, 1, []byte("{}")); err != nil {
			t.Fatalf("write section: %v", err)
		}
		if err := w.Finalise(); err != nil {
			t.Fatalf("finalise: %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if mutate != nil {
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read back: %v", err)
			}
			if err := os.WriteFile(path, mutate(data), 0o644); err != nil {
				t.Fatalf("rewrite: %v", err)
			}
		}
		return path
	}

	cases := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{
			name: "bad magic",
			mutate: func(b []byte) []byte {
				b[0] = 'X'
				return b
			},
			want: ErrInvalidMagic,
		},
		{
			name: "future major",
			mutate: func(b []byte) []byte {
				b[4] = 0xFF
				return b
			},
			want: ErrUnsupportedMajor,
		},
		{
			name: "truncated tail",
			mutate: func(b []byte) []byte {
				return b[:len(b)-1]
			},
			want: ErrCorruptFile,
		},
		{
			name: "section out of bounds",
			mutate: func(b []byte) []byte {
				// Section size lives at dirStart+16; blow it up.
				dirStart := int(uint64(b[16]) | uint64(b[17])<<8 | uint64(b[18])<<16 | uint64(b[19])<<24)
				for i := range 8 {
					b[dirStart+16+i] = 0xFF
				}
				return b
			},
			want: ErrCorruptFile,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := build(tc.name+".dcf", tc.mutate)
			_, err := Open(path)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDatasetIndexRoundTrip(t *testing.T) {
	t.Parallel()

	entries := []DatasetEntry{
		{Input: 0, DType: DTypeI16BE, Width: 512, Height: 512, Offset: 64, Size: 512 * 512 * 2},
		{Input: 2, DType: DTypeU8, Width: 16, Height: 8, Offset: 524352, Size: 128},
	}
	payload := EncodeDatasetIndex(entries)
	got, err := ParseDatasetIndex(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("entry count mismatch: %d", len(got))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Fatalf("entry %d mismatch: got %+v want %+v", i, got[i], entries[i])
		}
	}

	if _, err := ParseDatasetIndex(payload[:len(payload)-1]); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("truncated index accepted: %v", err)
	}

	bad := EncodeDatasetIndex([]DatasetEntry{{Input: 0, DType: 9, Width: 4, Height: 4, Size: 16}})
	if _, err := ParseDatasetIndex(bad); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("unknown dtype accepted: %v", err)
	}

	short := EncodeDatasetIndex([]DatasetEntry{{Input: 0, DType: DTypeU8, Width: 4, Height: 4, Size: 15}})
	if _, err := ParseDatasetIndex(short); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("shape mismatch accepted: %v", err)
	}
}

func TestAttributesRoundTrip(t *testing.T) {
	t.Parallel()

	attrs := map[string]any{
		"FileVersion": uint64(8),
		"FileLength":  int64(1)<<53 + 1, // beyond float64's exact range
		"SampleID":    "W05_S2",
		"_truncated":  false,
	}
	data, err := EncodeAttributes(attrs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := ParseAttributes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["SampleID"] != "W05_S2" || got["FileVersion"] != json.Number("8") {
		t.Fatalf("attribute mismatch: %+v", got)
	}
	n, ok := got["FileLength"].(json.Number)
	if !ok {
		t.Fatalf("FileLength decoded as %T", got["FileLength"])
	}
	if v, err := n.Int64(); err != nil || v != int64(1)<<53+1 {
		t.Fatalf("FileLength lost precision: %v %v", v, err)
	}
	if _, err := ParseAttributes([]byte("{not json")); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("bad json accepted: %v", err)
	}
}
