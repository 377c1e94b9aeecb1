package dat

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode reconstructs the original .dat byte stream from a decoded record
// and its channel grids: raw header bytes, the channels re-interleaved in
// their original layout, then the raw footer bytes.
//
// Header and footer come from the verbatim copies taken at decode time, so
// they are bit-exact by construction; only the data section is genuinely
// rebuilt. If the source file was truncated and extraction padded it with a
// fill value, the output is clipped back to the recorded original length.
func Encode(md *Metadata, chans []Channel) ([]byte, error) {
	if err := checkChannelSet(md, chans); err != nil {
		return nil, err
	}

	n := len(chans)
	x, y := md.Resolution()
	w := md.SampleWidth()

	out := make([]byte, 0, len(md.RawHeader)+n*x*y*w+len(md.RawFooter))
	out = append(out, md.RawHeader...)

	data := make([]byte, n*x*y*w)
	stride := n * w
	for p := 0; p < x*y; p++ {
		row := data[p*stride : (p+1)*stride]
		for c := 0; c < n; c++ {
			copy(row[c*w:(c+1)*w], chans[c].Data[p*w:(p+1)*w])
		}
	}
	out = append(out, data...)
	out = append(out, md.RawFooter...)

	// A fill-padded reconstruction is longer than the source; clip it so
	// the output length matches the original file.
	if md.DatNBytes > 0 && uint64(len(out)) > md.DatNBytes {
		out = out[:md.DatNBytes]
	}
	return out, nil
}

func checkChannelSet(md *Metadata, chans []Channel) error {
	active := md.ActiveChannels()
	if len(chans) != len(active) || len(chans) != md.ChanNum() {
		return &IncompleteChannelDataError{
			Reason: fmt.Sprintf("got %d channels, header declares %d active", len(chans), len(active)),
		}
	}
	x, y := md.Resolution()
	w := md.SampleWidth()
	for i := range chans {
		c := &chans[i]
		if c.Input != active[i] {
			return &IncompleteChannelDataError{
				Reason: fmt.Sprintf("channel %d: input %d does not match declared input %d", i, c.Input, active[i]),
			}
		}
		if c.Width != x || c.Height != y {
			return &IncompleteChannelDataError{
				Reason: fmt.Sprintf("channel AI%d: %dx%d does not match declared %dx%d", c.Input, c.Width, c.Height, x, y),
			}
		}
		if len(c.Data) != x*y*w {
			return &IncompleteChannelDataError{
				Reason: fmt.Sprintf("channel AI%d: %d data bytes, want %d", c.Input, len(c.Data), x*y*w),
			}
		}
	}
	return nil
}

// EncodeHeader rebuilds the header block from the decoded field values
// alone, with unspecified regions zeroed. It exists as a cross-check that
// the decoded view still agrees with the raw header copy, and to rebuild a
// header for records restored from a container's attribute map.
func EncodeHeader(md *Metadata) ([]byte, error) {
	out := make([]byte, md.Schema.HeaderLen)
	for i := range md.Schema.Fields {
		f := &md.Schema.Fields[i]
		v, ok := md.Fields[f.Name]
		if !ok {
			return nil, fmt.Errorf("dat: encode header: missing field %s", f.Name)
		}
		if err := encodeField(out[f.Offset:f.Offset+f.NBytes()], f, v); err != nil {
			return nil, fmt.Errorf("dat: encode header: field %s: %w", f.Name, err)
		}
	}
	return out, nil
}

func encodeField(dst []byte, f *Field, v any) error {
	switch {
	case f.DType.Raw:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("want []byte, got %T", v)
		}
		if len(b) > len(dst) {
			return fmt.Errorf("%d bytes exceed field width %d", len(b), len(dst))
		}
		copy(dst, b)
		return nil
	case f.DType.Str:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", v)
		}
		if len(s) > len(dst) {
			return fmt.Errorf("string of %d bytes exceeds field width %d", len(s), len(dst))
		}
		copy(dst, s) // remainder stays NUL
		return nil
	case f.Shape != nil:
		return encodeArrayField(dst, f, v)
	default:
		return encodeScalar(dst, f.DType, v)
	}
}

func encodeArrayField(dst []byte, f *Field, v any) error {
	w := f.DType.Size
	switch t := v.(type) {
	case []float64:
		if len(t) != f.Count() {
			return fmt.Errorf("want %d elements, got %d", f.Count(), len(t))
		}
		for i, e := range t {
			if err := encodeScalar(dst[i*w:], f.DType, e); err != nil {
				return err
			}
		}
	case []int64:
		if len(t) != f.Count() {
			return fmt.Errorf("want %d elements, got %d", f.Count(), len(t))
		}
		for i, e := range t {
			if err := encodeScalar(dst[i*w:], f.DType, e); err != nil {
				return err
			}
		}
	case []uint64:
		if len(t) != f.Count() {
			return fmt.Errorf("want %d elements, got %d", f.Count(), len(t))
		}
		for i, e := range t {
			if err := encodeScalar(dst[i*w:], f.DType, e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("want numeric slice, got %T", v)
	}
	return nil
}

func encodeScalar(dst []byte, dt DType, v any) error {
	switch {
	case dt.Float && dt.Size == 4:
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint32(dst, math.Float32bits(float32(f)))
	case dt.Float:
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint64(dst, math.Float64bits(f))
	default:
		var u uint64
		switch t := v.(type) {
		case int64:
			u = uint64(t)
		case uint64:
			u = t
		case int:
			u = uint64(int64(t))
		case float64:
			if dt.Signed {
				u = uint64(int64(t))
			} else {
				u = uint64(t)
			}
		default:
			return fmt.Errorf("want integer, got %T", v)
		}
		switch dt.Size {
		case 1:
			dst[0] = byte(u)
		case 2:
			binary.BigEndian.PutUint16(dst, uint16(u))
		case 4:
			binary.BigEndian.PutUint32(dst, uint32(u))
		default:
			binary.BigEndian.PutUint64(dst, u)
		}
	}
	return nil
}
