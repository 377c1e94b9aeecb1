// Package convert drives whole conversions: .dat in, DCF container out,
// and back again for verification.
package convert

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/fibarc/internal/csvmeta"
	"github.com/samcharles93/fibarc/internal/dat"
	"github.com/samcharles93/fibarc/internal/version"
	"github.com/samcharles93/fibarc/pkg/dcf"
)

// Options controls a single .dat → DCF conversion.
type Options struct {
	// Fill, when set, pads a truncated data section with this sample
	// value instead of failing.
	Fill *int16

	// MinMax records each channel's sample range in the attribute
	// document under MinMaxKey.
	MinMax bool

	// CSV, when set, merges the acquisition-log row matching the file's
	// timestamp into the attribute document. The timestamp comes from
	// Timestamp if set, otherwise from the file path via TimestampLayout.
	CSV             *csvmeta.Table
	Timestamp       *time.Time
	TimestampLayout string
}

// MinMaxKey is the attribute key carrying per-channel sample ranges,
// a map from input name ("AI1") to [min, max].
const MinMaxKey = "_channel_minmax"

// Result summarises a completed conversion.
type Result struct {
	SourcePath    string
	ContainerPath string
	SourceDigest  string
	ConversionID  string
	Channels      int
	Truncated     bool
}

// DatToDCF converts one dump file into a DCF container.
func DatToDCF(datPath, dcfPath string, opts Options) (*Result, error) {
	raw, err := os.ReadFile(datPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", datPath, err)
	}

	md, err := dat.DecodeHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", datPath, err)
	}
	chans, err := dat.ExtractChannels(raw, md, opts.Fill)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", datPath, err)
	}

	attrs := md.Attrs()
	attrs[dat.AttrToolVersion] = version.String()
	conversionID := uuid.NewString()
	attrs[dat.AttrConversionID] = conversionID

	if opts.MinMax {
		ranges := make(map[string]any, len(chans))
		for i := range chans {
			lo, hi := chans[i].MinMax()
			ranges[chans[i].Name] = []int64{lo, hi}
		}
		attrs[MinMaxKey] = ranges
	}

	if opts.CSV != nil {
		if err := mergeCSVRow(attrs, datPath, opts); err != nil {
			return nil, err
		}
	}

	if err := writeContainer(dcfPath, md, chans, attrs); err != nil {
		return nil, fmt.Errorf("write %s: %w", dcfPath, err)
	}

	return &Result{
		SourcePath:    datPath,
		ContainerPath: dcfPath,
		SourceDigest:  dat.Digest(raw),
		ConversionID:  conversionID,
		Channels:      len(chans),
		Truncated:     md.Truncated,
	}, nil
}

func mergeCSVRow(attrs map[string]any, datPath string, opts Options) error {
	var ts time.Time
	switch {
	case opts.Timestamp != nil:
		ts = *opts.Timestamp
	case opts.TimestampLayout != "":
		t, err := csvmeta.TimestampFromPath(datPath, opts.TimestampLayout)
		if err != nil {
			return err
		}
		ts = t
	default:
		return fmt.Errorf("csv metadata requested but no timestamp or path layout given")
	}

	row, err := opts.CSV.Lookup(ts)
	if err != nil {
		return err
	}
	for k, v := range row {
		if _, exists := attrs[k]; exists {
			return fmt.Errorf("csv column %q collides with a header field", k)
		}
		attrs[k] = v
	}
	return nil
}

func writeContainer(path string, md *dat.Metadata, chans []dat.Channel, attrs map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w, err := dcf.NewWriter(f)
	if err != nil {
		return err
	}

	attrData, err := dcf.EncodeAttributes(attrs)
	if err != nil {
		return err
	}
	if err := w.WriteSection(dcf.SectionAttributes, 1, attrData); err != nil {
		return err
	}
	if err := w.WriteSection(dcf.SectionRawHeader, 1, md.RawHeader); err != nil {
		return err
	}
	if len(md.RawFooter) > 0 {
		if err := w.WriteSection(dcf.SectionRawFooter, 1, md.RawFooter); err != nil {
			return err
		}
	}

	// Dataset payloads are streamed first so the index can carry their
	// absolute offsets; the directory order is fixed at Finalise.
	entries := make([]dcf.DatasetEntry, len(chans))
	if len(chans) > 0 {
		sw, err := w.BeginSection(dcf.SectionDatasetData, 1)
		if err != nil {
			return err
		}
		for i := range chans {
			c := &chans[i]
			if err := sw.Align(8); err != nil {
				return err
			}
			off, err := sw.Offset()
			if err != nil {
				return err
			}
			if _, err := sw.Write(c.Data); err != nil {
				return err
			}
			dtype := dcf.DTypeI16BE
			if c.SampleWidth == 1 {
				dtype = dcf.DTypeU8
			}
			entries[i] = dcf.DatasetEntry{
				Input:  uint32(c.Input),
				DType:  dtype,
				Width:  uint32(c.Width),
				Height: uint32(c.Height),
				Offset: off,
				Size:   uint64(len(c.Data)),
			}
		}
		if err := sw.End(); err != nil {
			return err
		}
		if err := w.AddFlags(dcf.FlagDatasetsAligned); err != nil {
			return err
		}
	}
	if err := w.WriteSection(dcf.SectionDatasetIndex, 1, dcf.EncodeDatasetIndex(entries)); err != nil {
		return err
	}

	return w.Finalise()
}

// ReadContainer loads a container's metadata record and channel arrays.
// The raw header and footer come from their verbatim sections; the decoded
// attribute view is cross-checked against the stored header bytes.
func ReadContainer(path string) (*dat.Metadata, []dat.Channel, error) {
	f, err := dcf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	attrSec := f.Section(dcf.SectionAttributes)
	if attrSec == nil {
		return nil, nil, fmt.Errorf("%s: %w: attributes", path, dcf.ErrMissingSection)
	}
	attrs, err := dcf.ParseAttributes(f.SectionData(attrSec))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	md, err := dat.MetadataFromAttrs(attrs)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	hdrSec := f.Section(dcf.SectionRawHeader)
	if hdrSec == nil {
		return nil, nil, fmt.Errorf("%s: %w: raw header", path, dcf.ErrMissingSection)
	}
	md.RawHeader = append([]byte(nil), f.SectionData(hdrSec)...)
	if footSec := f.Section(dcf.SectionRawFooter); footSec != nil {
		md.RawFooter = append([]byte(nil), f.SectionData(footSec)...)
	}

	// The attribute view must describe the same bytes we stored verbatim.
	rebuilt, err := dat.EncodeHeader(md)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: rebuild header: %w", path, err)
	}
	if string(rebuilt) != string(md.RawHeader) {
		return nil, nil, fmt.Errorf("%s: %w: attributes disagree with stored header", path, dcf.ErrCorruptFile)
	}

	idxSec := f.Section(dcf.SectionDatasetIndex)
	if idxSec == nil {
		return nil, nil, fmt.Errorf("%s: %w: dataset index", path, dcf.ErrMissingSection)
	}
	entries, err := dcf.ParseDatasetIndex(f.SectionData(idxSec))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	chans := make([]dat.Channel, len(entries))
	for i := range entries {
		e := &entries[i]
		data, err := f.DatasetData(e)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: dataset %d: %w", path, i, err)
		}
		chans[i] = dat.Channel{
			Input:       int(e.Input),
			Name:        fmt.Sprintf("AI%d", e.Input),
			Width:       int(e.Width),
			Height:      int(e.Height),
			SampleWidth: e.SampleWidth(),
			Data:        append([]byte(nil), data...),
		}
	}
	return md, chans, nil
}

// DCFToBytes reconstructs the original dump bytes from a container.
func DCFToBytes(path string) ([]byte, *dat.Metadata, error) {
	md, chans, err := ReadContainer(path)
	if err != nil {
		return nil, nil, err
	}
	out, err := dat.Encode(md, chans)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", path, err)
	}
	return out, md, nil
}

// VerifyFile reconstructs a container and compares it against the original
// dump file.
func VerifyFile(datPath, dcfPath string, mode dat.VerifyMode) (dat.VerifyResult, error) {
	original, err := os.ReadFile(datPath)
	if err != nil {
		return dat.VerifyResult{}, fmt.Errorf("read %s: %w", datPath, err)
	}
	reconstructed, md, err := DCFToBytes(dcfPath)
	if err != nil {
		return dat.VerifyResult{}, err
	}
	return dat.Verify(original, reconstructed, mode, md), nil
}
