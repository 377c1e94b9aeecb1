package dat

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// VerifyMode selects how two byte streams are compared.
type VerifyMode int

const (
	// ModeDigest compares full-content digests. Single pass per side,
	// no localisation of a mismatch.
	ModeDigest VerifyMode = iota

	// ModeStrict compares byte-by-byte and localises the first divergence
	// by header/data/footer region.
	ModeStrict
)

// Region names the part of a .dat file a byte offset falls in.
type Region int

const (
	RegionHeader Region = iota
	RegionData
	RegionFooter
)

func (r Region) String() string {
	switch r {
	case RegionHeader:
		return "header"
	case RegionData:
		return "data"
	case RegionFooter:
		return "footer"
	default:
		return fmt.Sprintf("region(%d)", int(r))
	}
}

// VerifyResult is the outcome of comparing a reconstruction against the
// original file. A mismatch is a result, not an error: the caller decides
// whether to keep or discard the original.
type VerifyResult struct {
	Identical bool
	Detail    string
}

func (r VerifyResult) String() string {
	if r.Identical {
		return "identical"
	}
	return "mismatch: " + r.Detail
}

// Digest returns the hex MD5 of a byte stream, the same content fingerprint
// the archival tooling records in its catalog.
func Digest(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// DigestReader digests a stream without materialising it.
func DigestReader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify compares the original file bytes against a reconstruction.
//
// In strict mode, md (the record the reconstruction was built from) is used
// to map the first diverging offset onto the header/data/footer regions and,
// inside the data section, onto a channel index and sample offset; md may be
// nil, in which case only the absolute offset is reported.
func Verify(original, reconstructed []byte, mode VerifyMode, md *Metadata) VerifyResult {
	if mode == ModeDigest {
		if Digest(original) == Digest(reconstructed) {
			return VerifyResult{Identical: true}
		}
		return VerifyResult{Detail: "digest mismatch"}
	}

	n := min(len(original), len(reconstructed))
	if i := firstDiff(original[:n], reconstructed[:n]); i >= 0 {
		return VerifyResult{Detail: locate(i, md)}
	}
	if len(original) != len(reconstructed) {
		return VerifyResult{
			Detail: fmt.Sprintf("length mismatch: original %d bytes, reconstructed %d", len(original), len(reconstructed)),
		}
	}
	return VerifyResult{Identical: true}
}

func firstDiff(a, b []byte) int {
	if bytes.Equal(a, b) {
		return -1
	}
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return -1
}

func locate(off int, md *Metadata) string {
	if md == nil {
		return fmt.Sprintf("byte %d differs", off)
	}
	hlen := md.Schema.HeaderLen
	if off < hlen {
		return fmt.Sprintf("byte %d differs in %s", off, RegionHeader)
	}
	dataLen := md.expectedDataBytes()
	if off >= hlen+dataLen {
		return fmt.Sprintf("byte %d differs in %s (offset %d)", off, RegionFooter, off-hlen-dataLen)
	}

	rel := off - hlen
	n := md.ChanNum()
	w := md.SampleWidth()
	sample := rel / (n * w)
	input := 0
	if active := md.ActiveChannels(); n > 0 && len(active) == n {
		input = active[(rel%(n*w))/w]
	}
	return fmt.Sprintf("byte %d differs in %s (channel %d, sample %d)", off, RegionData, input, sample)
}
