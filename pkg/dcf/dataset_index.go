package dcf

import (
	"encoding/binary"
	"fmt"
)

// Dataset element types. Samples are stored exactly as they appear in the
// source dump, so 16-bit datasets stay big-endian on disk.
const (
	DTypeU8    uint32 = 1
	DTypeI16BE uint32 = 2
)

const (
	datasetIndexVersion    = 1
	datasetIndexHeaderSize = 8
	datasetEntrySize       = 32
)

// DatasetEntry describes one stored channel dataset. Offset is absolute
// within the container file and always lands inside the dataset data
// section.
type DatasetEntry struct {
	Input  uint32
	DType  uint32
	Width  uint32
	Height uint32
	Offset uint64
	Size   uint64
}

// SampleWidth returns the byte width of one sample.
func (e *DatasetEntry) SampleWidth() int {
	if e.DType == DTypeI16BE {
		return 2
	}
	return 1
}

// EncodeDatasetIndex serialises the index as the payload of a
// SectionDatasetIndex section.
func EncodeDatasetIndex(entries []DatasetEntry) []byte {
	out := make([]byte, datasetIndexHeaderSize+len(entries)*datasetEntrySize)
	binary.LittleEndian.PutUint32(out[0:4], datasetIndexVersion)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(entries)))
	for i, e := range entries {
		off := datasetIndexHeaderSize + i*datasetEntrySize
		binary.LittleEndian.PutUint32(out[off+0:off+4], e.Input)
		binary.LittleEndian.PutUint32(out[off+4:off+8], e.DType)
		binary.LittleEndian.PutUint32(out[off+8:off+12], e.Width)
		binary.LittleEndian.PutUint32(out[off+12:off+16], e.Height)
		binary.LittleEndian.PutUint64(out[off+16:off+24], e.Offset)
		binary.LittleEndian.PutUint64(out[off+24:off+32], e.Size)
	}
	return out
}

// ParseDatasetIndex decodes and validates a SectionDatasetIndex payload.
func ParseDatasetIndex(data []byte) ([]DatasetEntry, error) {
	if len(data) < datasetIndexHeaderSize {
		return nil, fmt.Errorf("%w: dataset index too short", ErrCorruptFile)
	}
	version := binary.LittleEndian.Uint32(data[0:4])
	if version != datasetIndexVersion {
		return nil, fmt.Errorf("%w: dataset index version %d", ErrCorruptFile, version)
	}
	count := int(binary.LittleEndian.Uint32(data[4:8]))
	want := datasetIndexHeaderSize + count*datasetEntrySize
	if count < 0 || len(data) != want {
		return nil, fmt.Errorf("%w: dataset index size mismatch", ErrCorruptFile)
	}

	entries := make([]DatasetEntry, count)
	for i := range entries {
		off := datasetIndexHeaderSize + i*datasetEntrySize
		e := DatasetEntry{
			Input:  binary.LittleEndian.Uint32(data[off+0 : off+4]),
			DType:  binary.LittleEndian.Uint32(data[off+4 : off+8]),
			Width:  binary.LittleEndian.Uint32(data[off+8 : off+12]),
			Height: binary.LittleEndian.Uint32(data[off+12 : off+16]),
			Offset: binary.LittleEndian.Uint64(data[off+16 : off+24]),
			Size:   binary.LittleEndian.Uint64(data[off+24 : off+32]),
		}
		if e.DType != DTypeU8 && e.DType != DTypeI16BE {
			return nil, fmt.Errorf("%w: dataset %d has unknown dtype %d", ErrCorruptFile, i, e.DType)
		}
		pixels := uint64(e.Width) * uint64(e.Height)
		if e.Size != pixels*uint64(e.SampleWidth()) {
			return nil, fmt.Errorf("%w: dataset %d size does not match shape", ErrCorruptFile, i)
		}
		entries[i] = e
	}
	return entries, nil
}

// DatasetData resolves an index entry against the file and returns its
// payload bytes, verifying the entry lies inside the dataset data section.
func (f *File) DatasetData(e *DatasetEntry) ([]byte, error) {
	sec := f.Section(SectionDatasetData)
	if sec == nil {
		return nil, fmt.Errorf("%w: dataset data", ErrMissingSection)
	}
	end := e.Offset + e.Size
	if end < e.Offset || e.Offset < sec.Offset || end > sec.End() {
		return nil, fmt.Errorf("%w: dataset outside data section", ErrCorruptFile)
	}
	return f.Data[int(e.Offset):int(end)], nil
}
