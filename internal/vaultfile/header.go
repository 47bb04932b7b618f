// Package vaultfile implements the on-disk framing of vault containers:
// format detection, the legacy binary header, and crash-safe atomic writes.
package vaultfile

import "encoding/binary"

// Magic is the fixed 4-byte vault signature ("KTVF") leading a legacy header.
var Magic = [4]byte{'K', 'T', 'V', 'F'}

const (
	// HeaderSize is the length of the legacy binary prefix:
	// [magic:4][format_version:4][kdf_iterations:4], little-endian.
	HeaderSize = 12

	// LegacyVersion is the only format version that carries the binary
	// prefix. Later versions fold header fields into the payload itself.
	LegacyVersion = 1
)

// HeaderKind tags the detected framing mode.
type HeaderKind int

const (
	// Integrated: the whole file is payload; header fields live inside it.
	Integrated HeaderKind = iota
	// Legacy: a 12-byte binary header precedes the payload and must be
	// stripped before decryption.
	Legacy
)

// Header is the result of sniffing the leading bytes of a vault file.
// For Legacy files Version and Iterations carry the prefix fields; for
// Integrated files they are zero and the payload speaks for itself.
type Header struct {
	Kind       HeaderKind
	Version    uint32
	Iterations uint32
}

// SniffHeader decides the framing mode from the first 12 bytes alone. Magic
// match plus format version 1 means legacy; any mismatch means the file is an
// integrated-format container and the reader must rewind to offset 0. Callers
// never need to know the version in advance.
func SniffHeader(b []byte) Header {
	if len(b) < HeaderSize {
		return Header{Kind: Integrated}
	}
	if [4]byte(b[:4]) != Magic {
		return Header{Kind: Integrated}
	}
	version := binary.LittleEndian.Uint32(b[4:8])
	if version != LegacyVersion {
		// Recognized signature but a post-legacy version: header fields are
		// integrated, the prefix is payload.
		return Header{Kind: Integrated}
	}
	return Header{
		Kind:       Legacy,
		Version:    version,
		Iterations: binary.LittleEndian.Uint32(b[8:12]),
	}
}

// EncodeHeader renders the legacy binary prefix for a V1 write.
func EncodeHeader(iterations uint32) []byte {
	out := make([]byte, HeaderSize)
	copy(out[:4], Magic[:])
	binary.LittleEndian.PutUint32(out[4:8], LegacyVersion)
	binary.LittleEndian.PutUint32(out[8:12], iterations)
	return out
}
