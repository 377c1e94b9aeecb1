package dcf

import "errors"

var (
	ErrInvalidMagic     = errors.New("dcf: invalid magic")
	ErrUnsupportedMajor = errors.New("dcf: unsupported major version")
	ErrCorruptFile      = errors.New("dcf: corrupt file")
	ErrMissingSection   = errors.New("dcf: missing section")
)
