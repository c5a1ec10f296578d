// Package xcontent parses and rewrites the XContent metadata header that
// sits at the top of an SVOD root descriptor (and, in the original format,
// an STFS package): magic, content type, the SVOD volume descriptor, and
// the header hash/signature the rehash pipeline maintains.
package xcontent

import (
	"crypto/sha1"

	"github.com/halprin/xfatx/xerrors"
)

// Magic identifies the packaging format of the file the header belongs to.
type Magic uint32

const (
	MagicCON  Magic = 0x434F4E20 // "CON "
	MagicLIVE Magic = 0x4C495645 // "LIVE"
	MagicPIRS Magic = 0x50495253 // "PIRS"
)

// FileSystem is the filesystem kind declared in the header.
type FileSystem uint32

const (
	FileSystemSTFS FileSystem = 0
	FileSystemSVOD FileSystem = 1
)

// ContentType is the content_type field. Only the values SVOD volumes
// accept are named; others pass through UnsupportedContent.
type ContentType uint32

const (
	ContentTypeGameOnDemand     ContentType = 0x7000
	ContentTypeInstalledGame    ContentType = 0x4000
	ContentTypeXboxOriginalGame ContentType = 0x5000
)

// VolumeDescriptorFlags are the bits of svod_volume_descriptor.flags.
type VolumeDescriptorFlags uint8

const (
	// EnhancedGDFLayout selects base_address=0x2000/prologue_offset=0x2000
	// instead of the non-enhanced 0x12000/0x1000.
	EnhancedGDFLayout VolumeDescriptorFlags = 0x01
)

// VolumeDescriptor is the svod_volume_descriptor embedded in the header.
type VolumeDescriptor struct {
	Flags           VolumeDescriptorFlags
	DataBlockOffset uint32 // 3 bytes on disk
	RootHash        [20]byte
}

// HasEnhancedGDFLayout reports whether the enhanced layout bit is set.
func (v VolumeDescriptor) HasEnhancedGDFLayout() bool {
	return v.Flags&EnhancedGDFLayout != 0
}

// Header is the XContent metadata the core reads and rewrites. Field
// offsets below are an implementation decision (see DESIGN.md), not a
// format spec.md pins down; only the header_hash source range
// (rootFile[0x344:roundUp(headerSize,0x1000)]) is bit-exact.
type Header struct {
	Magic            Magic
	FileSystem       FileSystem
	ContentType      ContentType
	TitleID          uint32
	HeaderSize       uint32
	HeaderHash       [20]byte
	VolumeDescriptor VolumeDescriptor
}

const (
	// HashStartOffset is the fixed offset in the root descriptor file where
	// the hashed region begins, per spec.md §4.7/§8.
	HashStartOffset = 0x344

	offsetMagic       = 0x00
	offsetFileSystem  = 0x04
	offsetContentType = 0x08
	offsetTitleID     = 0x0C
	offsetHeaderSize  = 0x10
	offsetHeaderHash  = 0x14
	offsetVolumeDesc  = 0x28

	// MinHeaderSize is the smallest header_size that leaves room for the
	// fixed fields above and the 0x344 hash-start boundary.
	MinHeaderSize = 0x344
)

// acceptedContentTypes are the content_type values an SVOD volume accepts;
// anything else fails UnsupportedContent at svod.Mount.
var acceptedContentTypes = map[ContentType]bool{
	ContentTypeGameOnDemand:     true,
	ContentTypeInstalledGame:    true,
	ContentTypeXboxOriginalGame: true,
}

// IsAcceptedContentType reports whether ct is one SVOD volumes may carry.
func IsAcceptedContentType(ct ContentType) bool {
	return acceptedContentTypes[ct]
}

// Parse decodes a Header from the first bytes of a root descriptor file.
func Parse(data []byte) (*Header, error) {
	if len(data) < offsetVolumeDesc+24 {
		return nil, xerrors.Newf(xerrors.IoFailure, "header buffer too short: %d bytes", len(data))
	}

	h := &Header{
		Magic:       Magic(beUint32(data[offsetMagic:])),
		FileSystem:  FileSystem(beUint32(data[offsetFileSystem:])),
		ContentType: ContentType(beUint32(data[offsetContentType:])),
		TitleID:     beUint32(data[offsetTitleID:]),
		HeaderSize:  beUint32(data[offsetHeaderSize:]),
	}
	copy(h.HeaderHash[:], data[offsetHeaderHash:offsetHeaderHash+20])

	vd := data[offsetVolumeDesc:]
	h.VolumeDescriptor.Flags = VolumeDescriptorFlags(vd[0])
	h.VolumeDescriptor.DataBlockOffset = uint32(vd[1])<<16 | uint32(vd[2])<<8 | uint32(vd[3])
	copy(h.VolumeDescriptor.RootHash[:], vd[4:24])

	switch h.Magic {
	case MagicCON, MagicLIVE, MagicPIRS:
	default:
		return nil, xerrors.Newf(xerrors.UnsupportedContent, "unrecognized magic 0x%08X", h.Magic)
	}
	if h.FileSystem != FileSystemSVOD {
		return nil, xerrors.New(xerrors.UnsupportedContent).WithMessage("file_system is not SVOD")
	}
	if !IsAcceptedContentType(h.ContentType) {
		return nil, xerrors.Newf(xerrors.UnsupportedContent, "content_type 0x%X not accepted", h.ContentType)
	}

	return h, nil
}

// Encode serializes h into a buffer of HeaderSize bytes, or MinHeaderSize
// bytes when HeaderSize is smaller (zero-padded past the fixed fields),
// ready to have its hash region overwritten by
// rehash and then be written to the root descriptor file.
func (h *Header) Encode() []byte {
	size := h.HeaderSize
	if size < MinHeaderSize {
		size = MinHeaderSize
	}
	buf := make([]byte, size)

	putBE32(buf[offsetMagic:], uint32(h.Magic))
	putBE32(buf[offsetFileSystem:], uint32(h.FileSystem))
	putBE32(buf[offsetContentType:], uint32(h.ContentType))
	putBE32(buf[offsetTitleID:], h.TitleID)
	putBE32(buf[offsetHeaderSize:], h.HeaderSize)
	copy(buf[offsetHeaderHash:], h.HeaderHash[:])

	vd := buf[offsetVolumeDesc:]
	vd[0] = byte(h.VolumeDescriptor.Flags)
	vd[1] = byte(h.VolumeDescriptor.DataBlockOffset >> 16)
	vd[2] = byte(h.VolumeDescriptor.DataBlockOffset >> 8)
	vd[3] = byte(h.VolumeDescriptor.DataBlockOffset)
	copy(vd[4:24], h.VolumeDescriptor.RootHash[:])

	return buf
}

// BaseAddress is 0x2000 for the enhanced GDF layout, else 0x12000.
func (h *Header) BaseAddress() int64 {
	if h.VolumeDescriptor.HasEnhancedGDFLayout() {
		return 0x2000
	}
	return 0x12000
}

// PrologueOffset is 0x2000 for the enhanced GDF layout, else 0x1000.
func (h *Header) PrologueOffset() int64 {
	if h.VolumeDescriptor.HasEnhancedGDFLayout() {
		return 0x2000
	}
	return 0x1000
}

// RoundUpHeaderSize rounds HeaderSize up to the next multiple of 0x1000,
// the upper bound of the header_hash source range.
func (h *Header) RoundUpHeaderSize() uint32 {
	if h.HeaderSize%0x1000 == 0 {
		return h.HeaderSize
	}
	return h.HeaderSize + (0x1000 - h.HeaderSize%0x1000)
}

// ComputeHeaderHash hashes rootFile[HashStartOffset:RoundUpHeaderSize()],
// the bit-exact region spec.md pins down.
func (h *Header) ComputeHeaderHash(rootFile []byte) ([20]byte, error) {
	end := h.RoundUpHeaderSize()
	if int(end) > len(rootFile) {
		return [20]byte{}, xerrors.Newf(
			xerrors.IoFailure, "root file is %d bytes, need %d for header hash", len(rootFile), end)
	}
	return sha1.Sum(rootFile[HashStartOffset:end]), nil
}

// HeaderSigner is the external collaborator applying an RSA signature to
// an already-hashed, already-assembled 0x118-byte header buffer, keyed by
// a path to a key-vault blob. The core never implements signing itself.
type HeaderSigner interface {
	Sign(headerBuffer []byte, keyVaultPath string) ([]byte, error)
}

// Resign re-signs header using signer, failing with NotResignable unless
// Magic is CON.
func Resign(h *Header, headerBuffer []byte, keyVaultPath string, signer HeaderSigner) ([]byte, error) {
	if h.Magic != MagicCON {
		return nil, xerrors.New(xerrors.NotResignable).WithMessage("magic is not CON")
	}
	return signer.Sign(headerBuffer, keyVaultPath)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
