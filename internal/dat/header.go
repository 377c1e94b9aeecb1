package dat

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Metadata is the decoded view of a .dat header: a field-name → value map
// (including "__name" enum and "__iso" date companions) over a verbatim copy
// of the raw header bytes. The raw copy, not the decoded view, is the ground
// truth for reconstruction.
type Metadata struct {
	Version uint16
	Schema  *Schema

	Fields map[string]any

	RawHeader []byte
	RawFooter []byte

	// DatNBytes is the total length of the source file, recorded so a
	// fill-padded reconstruction can be clipped back to the original size.
	DatNBytes uint64

	// Truncated is set when the source data section was short and the
	// missing tail was padded with a fill value.
	Truncated bool
}

// DecodeHeader decodes a whole .dat file's header and footer.
//
// The version tag is read at its fixed offset via the version-independent
// mini-schema, the matching schema is resolved, and every field is decoded
// from its declared offset. The raw header bytes and the footer region
// (everything past the declared data section) are retained verbatim.
func DecodeHeader(b []byte) (*Metadata, error) {
	mini := miniSchema()
	miniEnd := 0
	for i := range mini.Fields {
		if end := mini.Fields[i].Offset + mini.Fields[i].NBytes(); end > miniEnd {
			miniEnd = end
		}
	}
	if len(b) < miniEnd {
		return nil, &TruncatedHeaderError{Want: HeaderLength(), Got: len(b)}
	}

	magicField, _ := mini.Field("FileMagicNum")
	magic := binary.BigEndian.Uint32(b[magicField.Offset:])
	if magic != MagicNumber() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadMagic, magic, MagicNumber())
	}

	verField, _ := mini.Field("FileVersion")
	version := binary.BigEndian.Uint16(b[verField.Offset:])
	schema, err := Resolve(version)
	if err != nil {
		return nil, err
	}

	if len(b) < schema.HeaderLen {
		return nil, &TruncatedHeaderError{Want: schema.HeaderLen, Got: len(b)}
	}

	md := &Metadata{
		Version:   version,
		Schema:    schema,
		Fields:    make(map[string]any, 2*len(schema.Fields)),
		RawHeader: append([]byte(nil), b[:schema.HeaderLen]...),
		DatNBytes: uint64(len(b)),
	}

	for i := range schema.Fields {
		f := &schema.Fields[i]
		val := decodeField(b, f)
		md.Fields[f.Name] = val

		switch f.Kind {
		case KindEnum:
			md.Fields[f.Name+EnumNameSuffix] = f.Enum.Name(numericCode(val))
		case KindDate:
			if t, err := time.Parse(DateFormat(), val.(string)); err == nil {
				md.Fields[f.Name+ISODateSuffix] = t.Format("2006-01-02")
			}
		}
	}

	// The footer is whatever trails the declared data section. A short data
	// section means there is no footer to preserve.
	if end := schema.HeaderLen + md.expectedDataBytes(); len(b) >= end {
		md.RawFooter = append([]byte(nil), b[end:]...)
	}

	return md, nil
}

func decodeField(b []byte, f *Field) any {
	raw := b[f.Offset : f.Offset+f.NBytes()]
	switch {
	case f.DType.Raw:
		return append([]byte(nil), raw...)
	case f.DType.Str:
		return strings.TrimRight(string(raw), "\x00")
	case f.Shape != nil:
		return decodeArray(raw, f.DType, f.Count())
	default:
		return decodeScalar(raw, f.DType)
	}
}

func decodeScalar(b []byte, dt DType) any {
	switch {
	case dt.Float && dt.Size == 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	case dt.Float:
		return math.Float64frombits(binary.BigEndian.Uint64(b))
	case dt.Signed:
		switch dt.Size {
		case 1:
			return int64(int8(b[0]))
		case 2:
			return int64(int16(binary.BigEndian.Uint16(b)))
		case 4:
			return int64(int32(binary.BigEndian.Uint32(b)))
		default:
			return int64(binary.BigEndian.Uint64(b))
		}
	default:
		switch dt.Size {
		case 1:
			return uint64(b[0])
		case 2:
			return uint64(binary.BigEndian.Uint16(b))
		case 4:
			return uint64(binary.BigEndian.Uint32(b))
		default:
			return binary.BigEndian.Uint64(b)
		}
	}
}

// decodeArray decodes a fixed-shape numeric field as a flat slice in file
// element order. The shape itself is carried by the schema, not the value.
func decodeArray(b []byte, dt DType, count int) any {
	switch {
	case dt.Float:
		out := make([]float64, count)
		for i := range out {
			out[i] = decodeScalar(b[i*dt.Size:], dt).(float64)
		}
		return out
	case dt.Signed:
		out := make([]int64, count)
		for i := range out {
			out[i] = decodeScalar(b[i*dt.Size:], dt).(int64)
		}
		return out
	default:
		out := make([]uint64, count)
		for i := range out {
			out[i] = decodeScalar(b[i*dt.Size:], dt).(uint64)
		}
		return out
	}
}

func numericCode(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// Uint returns a field as an unsigned integer, coercing signed values.
func (md *Metadata) Uint(name string) uint64 {
	switch t := md.Fields[name].(type) {
	case uint64:
		return t
	case int64:
		return uint64(t)
	default:
		return 0
	}
}

// Int returns a field as a signed integer.
func (md *Metadata) Int(name string) int64 { return numericCode(md.Fields[name]) }

// Str returns a string field, or "" if absent.
func (md *Metadata) Str(name string) string {
	s, _ := md.Fields[name].(string)
	return s
}

// EightBit reports whether samples are unsigned bytes rather than
// big-endian int16.
func (md *Metadata) EightBit() bool { return md.Uint("EightBit") != 0 }

// SampleWidth returns the per-sample byte width.
func (md *Metadata) SampleWidth() int {
	if md.EightBit() {
		return 1
	}
	return 2
}

// Resolution returns the declared per-channel grid dimensions.
func (md *Metadata) Resolution() (x, y int) {
	return int(md.Uint("XResolution")), int(md.Uint("YResolution"))
}

// ChanNum returns the declared interleaved channel count.
func (md *Metadata) ChanNum() int { return int(md.Uint("ChanNum")) }

// ActiveChannels returns the base-1 indices of channels flagged active in
// the header.
func (md *Metadata) ActiveChannels() []int {
	var out []int
	for i, name := range ChannelFields() {
		if md.Uint(name) != 0 {
			out = append(out, i+1)
		}
	}
	return out
}

// AcquisitionDate returns the file's acquisition date, preferring FileDate
// over the software date when the schema carries both.
func (md *Metadata) AcquisitionDate() (time.Time, bool) {
	for _, name := range []string{"FileDate", "SWdate"} {
		if s := md.Str(name); s != "" {
			if t, err := time.Parse(DateFormat(), s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// expectedDataBytes is the declared size of the interleaved data section.
func (md *Metadata) expectedDataBytes() int {
	x, y := md.Resolution()
	return md.ChanNum() * x * y * md.SampleWidth()
}

// Keys returns the record's keys in schema order, each field followed by
// its companion entries.
func (md *Metadata) Keys() []string {
	out := make([]string, 0, len(md.Fields))
	for i := range md.Schema.Fields {
		name := md.Schema.Fields[i].Name
		out = append(out, name)
		if _, ok := md.Fields[name+EnumNameSuffix]; ok {
			out = append(out, name+EnumNameSuffix)
		}
		if _, ok := md.Fields[name+ISODateSuffix]; ok {
			out = append(out, name+ISODateSuffix)
		}
	}
	return out
}

// Attrs returns the record as a container attribute map: every decoded
// field and companion plus the reserved bookkeeping keys.
func (md *Metadata) Attrs() map[string]any {
	out := make(map[string]any, len(md.Fields)+2)
	for k, v := range md.Fields {
		out[k] = v
	}
	out[AttrDatNBytes] = md.DatNBytes
	out[AttrTruncated] = md.Truncated
	return out
}

// MetadataFromAttrs rebuilds a Metadata from a container attribute map,
// coercing JSON-decoded values (json.Number or float64 numbers, base64
// strings for raw fields) back to their schema types. Integer fields never
// pass through float64, so 64-bit values keep full precision. RawHeader and
// RawFooter are not part of the attribute map and must be attached by the
// caller.
func MetadataFromAttrs(attrs map[string]any) (*Metadata, error) {
	ver, err := attrUint(attrs, "FileVersion")
	if err != nil {
		return nil, err
	}
	schema, err := Resolve(uint16(ver))
	if err != nil {
		return nil, err
	}

	md := &Metadata{
		Version: schema.Version,
		Schema:  schema,
		Fields:  make(map[string]any, len(attrs)),
	}

	for i := range schema.Fields {
		f := &schema.Fields[i]
		raw, ok := attrs[f.Name]
		if !ok {
			return nil, fmt.Errorf("dat: attribute map missing field %s", f.Name)
		}
		v, err := coerceAttr(raw, f)
		if err != nil {
			return nil, fmt.Errorf("dat: field %s: %w", f.Name, err)
		}
		md.Fields[f.Name] = v

		switch f.Kind {
		case KindEnum:
			md.Fields[f.Name+EnumNameSuffix] = f.Enum.Name(numericCode(v))
		case KindDate:
			if t, perr := time.Parse(DateFormat(), v.(string)); perr == nil {
				md.Fields[f.Name+ISODateSuffix] = t.Format("2006-01-02")
			}
		}
	}

	if n, err := attrUint(attrs, AttrDatNBytes); err == nil {
		md.DatNBytes = n
	}
	if t, ok := attrs[AttrTruncated].(bool); ok {
		md.Truncated = t
	}
	return md, nil
}

func attrUint(attrs map[string]any, key string) (uint64, error) {
	v, ok := attrs[key]
	if !ok {
		return 0, fmt.Errorf("dat: attribute map missing %s", key)
	}
	n, err := toUint(v)
	if err != nil {
		return 0, fmt.Errorf("dat: attribute %s: %w", key, err)
	}
	return n, nil
}

func coerceAttr(raw any, f *Field) (any, error) {
	switch {
	case f.DType.Raw:
		switch t := raw.(type) {
		case []byte:
			return append([]byte(nil), t...), nil
		case string:
			return base64.StdEncoding.DecodeString(t)
		default:
			return nil, fmt.Errorf("want bytes, got %T", raw)
		}
	case f.DType.Str:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		return s, nil
	case f.Shape != nil:
		return coerceArray(raw, f)
	default:
		return coerceScalar(raw, f.DType)
	}
}

func coerceScalar(raw any, dt DType) (any, error) {
	switch {
	case dt.Float:
		v, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	case dt.Signed:
		v, err := toInt(raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		v, err := toUint(raw)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func coerceArray(raw any, f *Field) (any, error) {
	var elems []any
	switch t := raw.(type) {
	case []any:
		elems = t
	case []float64:
		return append([]float64(nil), t...), nil
	case []int64:
		return append([]int64(nil), t...), nil
	case []uint64:
		return append([]uint64(nil), t...), nil
	default:
		return nil, fmt.Errorf("want array, got %T", raw)
	}
	if len(elems) != f.Count() {
		return nil, fmt.Errorf("want %d elements, got %d", f.Count(), len(elems))
	}
	switch {
	case f.DType.Float:
		out := make([]float64, len(elems))
		for i, e := range elems {
			v, err := toFloat(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case f.DType.Signed:
		out := make([]int64, len(elems))
		for i, e := range elems {
			v, err := toInt(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		out := make([]uint64, len(elems))
		for i, e := range elems {
			v, err := toUint(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Float64()
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case int:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
}

func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Int64()
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d overflows int64", t)
		}
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("want integer, got %v", t)
		}
		return int64(t), nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}

func toUint(v any) (uint64, error) {
	switch t := v.(type) {
	case json.Number:
		return strconv.ParseUint(t.String(), 10, 64)
	case uint64:
		return t, nil
	case int64:
		if t < 0 {
			return 0, fmt.Errorf("want unsigned integer, got %d", t)
		}
		return uint64(t), nil
	case int:
		if t < 0 {
			return 0, fmt.Errorf("want unsigned integer, got %d", t)
		}
		return uint64(t), nil
	case float64:
		if t != math.Trunc(t) || t < 0 {
			return 0, fmt.Errorf("want unsigned integer, got %v", t)
		}
		return uint64(t), nil
	default:
		return 0, fmt.Errorf("want unsigned integer, got %T", v)
	}
}
