package dcf

import (
	"errors"
	"io"
	"os"
	"sort"
)

const writerPadBufSize = 4096

// Writer builds a DCF file section by section.
//
// Space for the header is reserved up-front and patched during Finalise.
// Small sections go through WriteSection; dataset payloads should use
// BeginSection to stream without buffering the whole section in memory.
type Writer struct {
	f        *os.File
	sections []Section
	seen     map[SectionType]struct{}
	open     *SectionWriter
	closed   bool
	flags    uint64
	padBuf   []byte
}

// NewWriter creates a writer targeting the given file. The file is
// truncated; the header is written during Finalise.
func NewWriter(f *os.File) (*Writer, error) {
	if f == nil {
		return nil, errors.New("dcf: nil file")
	}
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	w := &Writer{
		f:      f,
		seen:   make(map[SectionType]struct{}),
		padBuf: make([]byte, writerPadBufSize),
	}
	if err := w.writeZeros(headerSize); err != nil {
		return nil, err
	}
	if err := w.alignTo(sectionAlign); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteSection writes a whole section payload and records it in the
// section directory. A section type may only be written once.
func (w *Writer) WriteSection(typ SectionType, version uint32, data []byte) error {
	if err := w.beginCheck(typ); err != nil {
		return err
	}
	if err := w.alignTo(sectionAlign); err != nil {
		return err
	}
	offset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		if err := writeFull(w.f, data); err != nil {
			return err
		}
	}
	w.sections = append(w.sections, Section{
		Type:    uint32(typ),
		Version: version,
		Offset:  uint64(offset),
		Size:    uint64(len(data)),
	})
	w.seen[typ] = struct{}{}
	return nil
}

// AddFlags ORs format flags into the header written at Finalise.
func (w *Writer) AddFlags(flags uint64) error {
	if w.closed {
		return errors.New("dcf: writer already finalised")
	}
	w.flags |= flags
	return nil
}

// SectionWriter streams one section payload directly to the file. It must
// be ended before any other section can be written; bytes written,
// including Align padding, count towards the section size.
type SectionWriter struct {
	w       *Writer
	typ     SectionType
	version uint32
	start   int64
	ended   bool
}

// BeginSection starts streaming a section payload.
func (w *Writer) BeginSection(typ SectionType, version uint32) (*SectionWriter, error) {
	if err := w.beginCheck(typ); err != nil {
		return nil, err
	}
	if err := w.alignTo(sectionAlign); err != nil {
		return nil, err
	}
	start, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	sw := &SectionWriter{w: w, typ: typ, version: version, start: start}
	w.open = sw
	// Once section bytes hit the file the type cannot be reused.
	w.seen[typ] = struct{}{}
	return sw, nil
}

func (w *Writer) beginCheck(typ SectionType) error {
	if w.closed {
		return errors.New("dcf: writer already finalised")
	}
	if w.open != nil {
		return errors.New("dcf: section write in progress")
	}
	if _, ok := w.seen[typ]; ok {
		return errors.New("dcf: duplicate section type")
	}
	return nil
}

// Write streams p into the open section.
func (sw *SectionWriter) Write(p []byte) (int, error) {
	if err := sw.active(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := writeFull(sw.w.f, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Align pads with zeros until the absolute file position is n-byte aligned.
func (sw *SectionWriter) Align(n int) error {
	if err := sw.active(); err != nil {
		return err
	}
	return sw.w.alignTo(int64(n))
}

// Offset returns the current absolute file offset.
func (sw *SectionWriter) Offset() (uint64, error) {
	if err := sw.active(); err != nil {
		return 0, err
	}
	pos, err := sw.w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return uint64(pos), nil
}

// End finalises the section and records it in the section directory.
func (sw *SectionWriter) End() error {
	if err := sw.active(); err != nil {
		return err
	}
	pos, err := sw.w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if pos < sw.start {
		return errors.New("dcf: invalid file position")
	}
	sw.w.sections = append(sw.w.sections, Section{
		Type:    uint32(sw.typ),
		Version: sw.version,
		Offset:  uint64(sw.start),
		Size:    uint64(pos - sw.start),
	})
	sw.w.open = nil
	sw.ended = true
	return nil
}

// Close is an alias for End, for use with defer.
func (sw *SectionWriter) Close() error { return sw.End() }

func (sw *SectionWriter) active() error {
	if sw.ended {
		return errors.New("dcf: section writer ended")
	}
	if sw.w.open != sw {
		return errors.New("dcf: section writer not active")
	}
	return nil
}

// Finalise writes the section directory and patches the header. The writer
// must not be used afterwards.
func (w *Writer) Finalise() error {
	if w.closed {
		return errors.New("dcf: writer already finalised")
	}
	if w.open != nil {
		return errors.New("dcf: section write in progress")
	}
	w.closed = true

	// Deterministic directory ordering.
	sort.Slice(w.sections, func(i, j int) bool {
		return w.sections[i].Type < w.sections[j].Type
	})

	if err := w.alignTo(sectionAlign); err != nil {
		return err
	}
	dirOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	var secBuf [sectionSize]byte
	for i := range w.sections {
		if !encodeSection(secBuf[:], w.sections[i]) {
			return errors.New("dcf: encode section failed")
		}
		if err := writeFull(w.f, secBuf[:]); err != nil {
			return err
		}
	}

	fileSize, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	// Critical when the target file existed and was longer.
	if err := w.f.Truncate(fileSize); err != nil {
		return err
	}

	var header Header
	copy(header.Magic[:], MagicDCF)
	header.Major = CurrentMajor
	header.Minor = CurrentMinor
	header.HeaderSize = headerSize
	header.SectionCount = uint32(len(w.sections))
	header.SectionDirOffset = uint64(dirOffset)
	header.FileSize = uint64(fileSize)
	header.Flags = w.flags

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var hdrBuf [headerSize]byte
	if !encodeHeader(hdrBuf[:], header) {
		return errors.New("dcf: encode header failed")
	}
	if err := writeFull(w.f, hdrBuf[:]); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) alignTo(n int64) error {
	if n <= 1 {
		return nil
	}
	pos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	mod := pos % n
	if mod == 0 {
		return nil
	}
	return w.writeZeros(int(n - mod))
}

func (w *Writer) writeZeros(n int) error {
	for n > 0 {
		chunk := min(n, len(w.padBuf))
		if err := writeFull(w.f, w.padBuf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
