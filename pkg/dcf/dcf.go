// Package dcf implements the Dat Container File format.
//
// DCF is a single-file, memory-mappable archival container for decoded
// FIBSEM dumps. One container holds the decoded metadata as a JSON
// attribute document, the source file's raw header and footer bytes
// verbatim, and one dataset per active channel. It describes data only;
// the codec that fills and drains it lives elsewhere.
package dcf

// Format-level constants. These must never change.
const (
	// MagicDCF is the file magic for all DCF containers ("DCF\0").
	MagicDCF = "DCF\x00"

	// CurrentMajor changes only on breaking format changes.
	CurrentMajor uint16 = 1

	// CurrentMinor may add new optional sections or fields.
	CurrentMinor uint16 = 0

	// FlagDatasetsAligned marks containers whose dataset payloads are
	// aligned within the dataset data section.
	FlagDatasetsAligned uint64 = 1 << 0
)

type SectionType uint32

const (
	SectionAttributes   SectionType = 0x0001
	SectionRawHeader    SectionType = 0x0002
	SectionRawFooter    SectionType = 0x0003
	SectionDatasetIndex SectionType = 0x0004
	SectionDatasetData  SectionType = 0x0005
)

// Header is the fixed little-endian block at the start of every container.
type Header struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
	Flags            uint64
}

func (h *Header) Valid() bool {
	if string(h.Magic[:]) != MagicDCF {
		return false
	}
	if h.HeaderSize < headerSize {
		return false
	}
	return h.SectionCount != 0
}

func (h *Header) Compatible() bool {
	return h.Major == CurrentMajor
}

// Section is one entry of the section directory.
type Section struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

func (s *Section) End() uint64 { return s.Offset + s.Size }
