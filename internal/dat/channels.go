package dat

import (
	"encoding/binary"
	"fmt"
)

// Channel is one de-interleaved analogue input: a Width×Height grid of
// fixed-width samples, kept in the file's own byte encoding so the encoder
// can re-interleave it without any numeric reinterpretation.
type Channel struct {
	Input  int    // base-1 analogue input index
	Name   string // "AI1".."AI4"
	Width  int
	Height int

	// SampleWidth is bytes per sample: 1 for eight-bit captures,
	// 2 for big-endian int16.
	SampleWidth int

	// Data holds Width*Height samples in acquisition order (x fastest).
	Data []byte
}

// Samples16 decodes a 16-bit channel's samples. Returns nil for
// eight-bit channels; use Data directly for those.
func (c *Channel) Samples16() []int16 {
	if c.SampleWidth != 2 {
		return nil
	}
	out := make([]int16, len(c.Data)/2)
	for i := range out {
		out[i] = int16(binary.BigEndian.Uint16(c.Data[2*i:]))
	}
	return out
}

// MinMax returns the channel's numeric sample range.
func (c *Channel) MinMax() (min, max int64) {
	if len(c.Data) == 0 {
		return 0, 0
	}
	if c.SampleWidth == 1 {
		lo, hi := int64(c.Data[0]), int64(c.Data[0])
		for _, b := range c.Data[1:] {
			if int64(b) < lo {
				lo = int64(b)
			}
			if int64(b) > hi {
				hi = int64(b)
			}
		}
		return lo, hi
	}
	s := int64(int16(binary.BigEndian.Uint16(c.Data)))
	lo, hi := s, s
	for i := 2; i < len(c.Data); i += 2 {
		s = int64(int16(binary.BigEndian.Uint16(c.Data[i:])))
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return lo, hi
}

// ExtractChannels slices the data section of a .dat file into one grid per
// active channel. Samples are interleaved channel-fastest in the file: the
// bytes for sample position p are ChanNum consecutive samples, one per
// channel, in channel order.
//
// A short data section is an error unless fill is non-nil, in which case
// the missing tail of every affected channel is padded with the fill sample
// and md.Truncated is set.
func ExtractChannels(b []byte, md *Metadata, fill *int16) ([]Channel, error) {
	active := md.ActiveChannels()
	if len(active) == 0 {
		return nil, nil
	}

	n := md.ChanNum()
	if n != len(active) {
		return nil, &IncompleteChannelDataError{
			Reason: fmt.Sprintf("header declares ChanNum=%d but %d channel flags are set", n, len(active)),
		}
	}

	x, y := md.Resolution()
	w := md.SampleWidth()
	expected := n * x * y * w

	start := md.Schema.HeaderLen
	avail := len(b) - start
	if avail < 0 {
		avail = 0
	}
	if avail > expected {
		avail = expected
	}

	data := b[start : start+avail]
	if avail < expected {
		if fill == nil {
			return nil, &TruncatedDataError{Want: expected, Got: avail}
		}
		padded := make([]byte, expected)
		copy(padded, data)
		fillTail(padded, avail, w, *fill)
		data = padded
		md.Truncated = true
	}

	chans := make([]Channel, n)
	for i, input := range active {
		chans[i] = Channel{
			Input:       input,
			Name:        ChannelFields()[input-1],
			Width:       x,
			Height:      y,
			SampleWidth: w,
			Data:        make([]byte, x*y*w),
		}
	}

	// De-interleave: sample p of channel c lives at (p*n + c) * w.
	stride := n * w
	for p := 0; p < x*y; p++ {
		row := data[p*stride : (p+1)*stride]
		for c := 0; c < n; c++ {
			copy(chans[c].Data[p*w:(p+1)*w], row[c*w:(c+1)*w])
		}
	}
	return chans, nil
}

// fillTail overwrites section bytes from position `from` onward with fill
// samples, keeping each written byte consistent with the section's sample
// grid even when the source stopped mid-sample.
func fillTail(section []byte, from, w int, fill int16) {
	var sample [2]byte
	if w == 1 {
		sample[0] = byte(fill)
	} else {
		binary.BigEndian.PutUint16(sample[:], uint16(fill))
	}
	for q := from; q < len(section); q++ {
		section[q] = sample[q%w]
	}
}
