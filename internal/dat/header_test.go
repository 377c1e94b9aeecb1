package dat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestDecodeHeaderFields(t *testing.T) {
	t.Parallel()

	b := buildDat(t, fixture{version: 1, flags: [4]bool{true, false, true, false}, x: 8, y: 4})
	md, err := DecodeHeader(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if md.Version != 1 {
		t.Errorf("version: got %d", md.Version)
	}
	if got := md.Uint("XResolution"); got != 8 {
		t.Errorf("XResolution: got %d", got)
	}
	if got := md.Str("Notes"); got != "synthetic capture" {
		t.Errorf("Notes: got %q", got)
	}
	if got := md.Fields["FileType"+EnumNameSuffix]; got != "Image" {
		t.Errorf("FileType__name: got %v", got)
	}
	if got := md.Fields["SWdate"]; got != "21/08/2014" {
		t.Errorf("SWdate raw: got %v", got)
	}
	if got := md.Fields["SWdate"+ISODateSuffix]; got != "2014-08-21" {
		t.Errorf("SWdate__iso: got %v", got)
	}
	if got := md.ActiveChannels(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("active channels: got %v", got)
	}
	if md.DatNBytes != uint64(len(b)) {
		t.Errorf("DatNBytes: got %d want %d", md.DatNBytes, len(b))
	}
}

func TestDecodeHeaderISOCompanionMatchesDay(t *testing.T) {
	t.Parallel()

	b := buildDat(t, fixture{version: 2, flags: [4]bool{true}, x: 2, y: 2})
	md, err := DecodeHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"SWdate", "FileDate"} {
		raw := md.Str(name)
		iso, ok := md.Fields[name+ISODateSuffix].(string)
		if !ok {
			t.Fatalf("%s: missing iso companion", name)
		}
		rawDay, err := time.Parse(DateFormat(), raw)
		if err != nil {
			t.Fatalf("%s: raw unparseable: %v", name, err)
		}
		isoDay, err := time.Parse("2006-01-02", iso)
		if err != nil {
			t.Fatalf("%s: iso unparseable: %v", name, err)
		}
		if !rawDay.Equal(isoDay) {
			t.Errorf("%s: raw %s and iso %s disagree", name, raw, iso)
		}
	}
}

func TestDecodeUnknownVersionFailsBeforeFields(t *testing.T) {
	t.Parallel()

	b := buildDat(t, fixture{version: 1, flags: [4]bool{true}, x: 2, y: 2})
	s, _ := Resolve(1)
	vf, _ := s.Field("FileVersion")
	binary.BigEndian.PutUint16(b[vf.Offset:], 3)

	_, err := DecodeHeader(b)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	t.Parallel()

	b := buildDat(t, fixture{version: 1, flags: [4]bool{true}, x: 2, y: 2})
	b[0] ^= 0xFF
	_, err := DecodeHeader(b)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("got %v, want ErrBadMagic", err)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	t.Parallel()

	b := buildDat(t, fixture{version: 1, flags: [4]bool{true}, x: 2, y: 2})
	_, err := DecodeHeader(b[:100])
	if !errors.Is(err, ErrTruncatedHeader) {
		t.Fatalf("got %v, want ErrTruncatedHeader", err)
	}
	var the *TruncatedHeaderError
	if !errors.As(err, &the) || the.Got != 100 {
		t.Fatalf("error detail wrong: %v", err)
	}
}

func TestUnknownEnumCodeDegrades(t *testing.T) {
	t.Parallel()

	b := buildDat(t, fixture{version: 1, flags: [4]bool{true}, x: 2, y: 2, detA: 77})
	md, err := DecodeHeader(b)
	if err != nil {
		t.Fatalf("unknown enum code must not fail decode: %v", err)
	}
	if got := md.Int("DetA"); got != 77 {
		t.Errorf("DetA numeric: got %d", got)
	}
	if got := md.Fields["DetA"+EnumNameSuffix]; got != "unknown" {
		t.Errorf("DetA__name: got %v", got)
	}
}

func TestEnumCompanionsPresentForAllEnumFields(t *testing.T) {
	t.Parallel()

	for _, v := range Versions() {
		b := buildDat(t, fixture{version: v, flags: [4]bool{true}, x: 2, y: 2})
		md, err := DecodeHeader(b)
		if err != nil {
			t.Fatal(err)
		}
		for i := range md.Schema.Fields {
			f := &md.Schema.Fields[i]
			if f.Kind != KindEnum {
				continue
			}
			if _, ok := md.Fields[f.Name+EnumNameSuffix].(string); !ok {
				t.Errorf("v%d: enum field %s has no name companion", v, f.Name)
			}
		}
	}
}

func TestHeaderRebuildMatchesRaw(t *testing.T) {
	t.Parallel()

	// Zero gaps: the rebuilt header derives field bytes only, everything
	// else stays NUL, matching how the instrument writes headers.
	b := buildDat(t, fixture{version: 8, flags: [4]bool{true, true}, x: 4, y: 4})
	md, err := DecodeHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	rebuilt, err := EncodeHeader(md)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rebuilt, md.RawHeader) {
		t.Fatalf("rebuilt header differs from raw copy")
	}
}

func TestMetadataAttrsJSONRoundTrip(t *testing.T) {
	t.Parallel()

	b := buildDat(t, fixture{version: 4, flags: [4]bool{true, false, false, true}, x: 4, y: 2})
	md, err := DecodeHeader(b)
	if err != nil {
		t.Fatal(err)
	}

	doc, err := json.Marshal(md.Attrs())
	if err != nil {
		t.Fatal(err)
	}
	attrs := decodeAttrDoc(t, doc)

	restored, err := MetadataFromAttrs(attrs)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Version != md.Version {
		t.Fatalf("version: got %d want %d", restored.Version, md.Version)
	}
	if restored.DatNBytes != md.DatNBytes {
		t.Fatalf("dat nbytes: got %d want %d", restored.DatNBytes, md.DatNBytes)
	}

	rebuilt, err := EncodeHeader(restored)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rebuilt, md.RawHeader) {
		t.Fatalf("header rebuilt from JSON attrs differs from raw copy")
	}
}

// decodeAttrDoc mirrors how container attributes are decoded: numbers kept
// as json.Number, never float64.
func decodeAttrDoc(t *testing.T, doc []byte) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		t.Fatal(err)
	}
	return attrs
}

func TestMetadataAttrsKeepInt64Precision(t *testing.T) {
	t.Parallel()

	b := buildDat(t, fixture{version: 1, flags: [4]bool{true}, x: 4, y: 2})
	md, err := DecodeHeader(b)
	if err != nil {
		t.Fatal(err)
	}

	// A length above 2^53 is not representable as float64; it must survive
	// the JSON round trip bit-exact.
	const huge = int64(1)<<53 + 1
	md.Fields["FileLength"] = huge

	doc, err := json.Marshal(md.Attrs())
	if err != nil {
		t.Fatal(err)
	}
	restored, err := MetadataFromAttrs(decodeAttrDoc(t, doc))
	if err != nil {
		t.Fatal(err)
	}
	if got := restored.Int("FileLength"); got != huge {
		t.Fatalf("FileLength: got %d, want %d", got, huge)
	}
}
