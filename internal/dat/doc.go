// Package dat implements the versioned codec for Jeiss FIBSEM .dat
// instrument dumps.
//
// A .dat file is a fixed-length binary header, an interleaved sample
// payload for up to four analogue input channels, and an opaque footer.
// The header layout is selected by a version tag at a fixed offset;
// per-version layouts are compiled in from embedded spec tables.
//
// The codec is built for lossless archival: DecodeHeader keeps the raw
// header and footer bytes verbatim alongside the decoded field view, so
// Encode can reproduce the original byte stream exactly and Verify can
// prove it, after which the .dat file can be safely discarded.
package dat
