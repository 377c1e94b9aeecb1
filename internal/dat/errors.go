package dat

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedVersion    = errors.New("dat: unsupported file version")
	ErrBadMagic              = errors.New("dat: bad magic number")
	ErrTruncatedHeader       = errors.New("dat: truncated header")
	ErrTruncatedData         = errors.New("dat: truncated data section")
	ErrIncompleteChannelData = errors.New("dat: channel data inconsistent with header")
)

// UnsupportedVersionError reports a version tag with no registered schema.
type UnsupportedVersionError struct {
	Version uint16
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("dat: unsupported file version %d (known: %v)", e.Version, Versions())
}

func (e *UnsupportedVersionError) Unwrap() error { return ErrUnsupportedVersion }

// TruncatedHeaderError reports a file shorter than the schema's header length.
type TruncatedHeaderError struct {
	Want int
	Got  int
}

func (e *TruncatedHeaderError) Error() string {
	return fmt.Sprintf("dat: truncated header: need %d bytes, file has %d", e.Want, e.Got)
}

func (e *TruncatedHeaderError) Unwrap() error { return ErrTruncatedHeader }

// TruncatedDataError reports a data section shorter than the header declares,
// raised when no fill value was supplied to cover the missing tail.
type TruncatedDataError struct {
	Want int
	Got  int
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("dat: truncated data section: expected %d bytes, got %d", e.Want, e.Got)
}

func (e *TruncatedDataError) Unwrap() error { return ErrTruncatedData }

// IncompleteChannelDataError reports a channel set that does not match the
// record's declared channel bitmap or resolution.
type IncompleteChannelDataError struct {
	Reason string
}

func (e *IncompleteChannelDataError) Error() string {
	return "dat: " + e.Reason
}

func (e *IncompleteChannelDataError) Unwrap() error { return ErrIncompleteChannelData }
