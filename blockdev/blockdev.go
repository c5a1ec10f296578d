// Package blockdev wraps an io.ReadWriteSeeker as a fixed-size block device:
// a stream addressed in whole blocks by ReadBlocks/WriteBlocks, or at any
// byte offset by ReadAt/WriteAt and the typed accessors, optionally
// starting at an offset from the beginning of the underlying stream (to
// skip over a partition table or other volumes on the same image).
package blockdev

import (
	"encoding/binary"
	"io"
	"unicode/utf16"

	"github.com/halprin/xfatx/xerrors"
)

// BlockID identifies a single block on a Device, starting from 0.
type BlockID uint32

// Device is a block-addressable view over an io.ReadWriteSeeker. The fields
// are informational; changing them after construction will desynchronize
// the device from its backing stream.
type Device struct {
	// BytesPerBlock is the size of a single block. ReadBlocks and
	// WriteBlocks transfer whole multiples of this size; ReadAt and WriteAt
	// are not bound to it.
	BytesPerBlock uint32
	// TotalBlocks is the number of blocks visible through this Device.
	TotalBlocks uint32
	// StartOffset is added to every block offset before it reaches the
	// backing stream.
	StartOffset int64

	stream io.ReadWriteSeeker
}

// New wraps stream as a Device with the given geometry.
func New(stream io.ReadWriteSeeker, bytesPerBlock uint32, totalBlocks uint32, startOffset int64) *Device {
	return &Device{
		BytesPerBlock: bytesPerBlock,
		TotalBlocks:   totalBlocks,
		StartOffset:   startOffset,
		stream:        stream,
	}
}

// BlockOffset converts a BlockID into a byte offset into the backing stream.
func (d *Device) BlockOffset(id BlockID) (int64, error) {
	if uint32(id) >= d.TotalBlocks {
		return 0, xerrors.Newf(xerrors.OutOfRange, "block %d not in [0, %d)", id, d.TotalBlocks)
	}
	return d.StartOffset + int64(id)*int64(d.BytesPerBlock), nil
}

// checkBounds verifies that dataLength bytes can be accessed starting at id.
func (d *Device) checkBounds(id BlockID, dataLength uint32) error {
	if uint32(id) >= d.TotalBlocks {
		return xerrors.Newf(xerrors.OutOfRange, "block %d not in [0, %d)", id, d.TotalBlocks)
	}
	if dataLength%d.BytesPerBlock != 0 {
		return xerrors.Newf(
			xerrors.OutOfRange,
			"data length %d is not a multiple of block size %d",
			dataLength, d.BytesPerBlock)
	}

	numBlocks := dataLength / d.BytesPerBlock
	if uint32(id)+numBlocks > d.TotalBlocks {
		return xerrors.Newf(
			xerrors.OutOfRange,
			"block %d plus %d blocks extends past end of device (%d blocks)",
			id, numBlocks, d.TotalBlocks)
	}
	return nil
}

func (d *Device) seekToBlock(id BlockID) error {
	offset, err := d.BlockOffset(id)
	if err != nil {
		return err
	}
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return xerrors.Wrap(xerrors.IoFailure, err)
	}
	return nil
}

// ReadBlocks reads count whole blocks starting at id.
func (d *Device) ReadBlocks(id BlockID, count uint32) ([]byte, error) {
	if err := d.checkBounds(id, count*d.BytesPerBlock); err != nil {
		return nil, err
	}
	if err := d.seekToBlock(id); err != nil {
		return nil, err
	}

	buffer := make([]byte, count*d.BytesPerBlock)
	if _, err := io.ReadFull(d.stream, buffer); err != nil {
		return nil, xerrors.Wrap(xerrors.IoFailure, err)
	}
	return buffer, nil
}

// WriteBlocks writes data to the device starting at id. len(data) must be a
// multiple of the block size.
func (d *Device) WriteBlocks(id BlockID, data []byte) error {
	if err := d.checkBounds(id, uint32(len(data))); err != nil {
		return err
	}
	if err := d.seekToBlock(id); err != nil {
		return err
	}
	if _, err := d.stream.Write(data); err != nil {
		return xerrors.Wrap(xerrors.IoFailure, err)
	}
	return nil
}

// ReadAt reads length bytes at an arbitrary byte offset relative to
// StartOffset, without regard to block boundaries. Used for FATX directory
// entries and cluster payloads, which aren't block-aligned operations
// themselves even though they live on a block device.
func (d *Device) ReadAt(offset int64, length int) ([]byte, error) {
	if _, err := d.stream.Seek(d.StartOffset+offset, io.SeekStart); err != nil {
		return nil, xerrors.Wrap(xerrors.IoFailure, err)
	}
	buffer := make([]byte, length)
	if _, err := io.ReadFull(d.stream, buffer); err != nil {
		return nil, xerrors.Wrap(xerrors.IoFailure, err)
	}
	return buffer, nil
}

// WriteAt writes data at an arbitrary byte offset relative to StartOffset.
func (d *Device) WriteAt(offset int64, data []byte) error {
	if _, err := d.stream.Seek(d.StartOffset+offset, io.SeekStart); err != nil {
		return xerrors.Wrap(xerrors.IoFailure, err)
	}
	if _, err := d.stream.Write(data); err != nil {
		return xerrors.Wrap(xerrors.IoFailure, err)
	}
	return nil
}

// ReadUint16 reads a big-endian uint16 at offset.
func (d *Device) ReadUint16(offset int64) (uint16, error) {
	raw, err := d.ReadAt(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(raw), nil
}

// ReadUint32 reads a big-endian uint32 at offset.
func (d *Device) ReadUint32(offset int64) (uint32, error) {
	raw, err := d.ReadAt(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw), nil
}

// ReadUint64 reads a big-endian uint64 at offset.
func (d *Device) ReadUint64(offset int64) (uint64, error) {
	raw, err := d.ReadAt(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// WriteUint16 writes v as a big-endian uint16 at offset.
func (d *Device) WriteUint16(offset int64, v uint16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return d.WriteAt(offset, buf)
}

// WriteUint32 writes v as a big-endian uint32 at offset.
func (d *Device) WriteUint32(offset int64, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return d.WriteAt(offset, buf)
}

// WriteUint64 writes v as a big-endian uint64 at offset.
func (d *Device) WriteUint64(offset int64, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return d.WriteAt(offset, buf)
}

// ReadASCII reads a fixed-width n-byte field at offset and trims trailing
// 0x00/0xFF padding.
func (d *Device) ReadASCII(offset int64, n int) (string, error) {
	raw, err := d.ReadAt(offset, n)
	if err != nil {
		return "", err
	}
	end := len(raw)
	for end > 0 && (raw[end-1] == 0x00 || raw[end-1] == 0xFF) {
		end--
	}
	return string(raw[:end]), nil
}

// WriteASCII writes s at offset, right-padded with 0xFF to a fixed width of
// n bytes. It fails with NameTooLong if s doesn't fit.
func (d *Device) WriteASCII(offset int64, s string, n int) error {
	if len(s) > n {
		return xerrors.Newf(xerrors.NameTooLong, "string %q exceeds %d bytes", s, n)
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 0xFF
	}
	copy(buf, s)
	return d.WriteAt(offset, buf)
}

// ReadUTF16BE reads a 2-byte big-endian character count followed by that
// many big-endian UTF-16 code units, decoding it to a string. Surrogate
// pairs are not decoded; each surrogate code unit comes out as U+FFFD.
func (d *Device) ReadUTF16BE(offset int64) (string, error) {
	count, err := d.ReadUint16(offset)
	if err != nil {
		return "", err
	}
	raw, err := d.ReadAt(offset+2, int(count)*2)
	if err != nil {
		return "", err
	}
	runes := make([]rune, count)
	for i := range runes {
		runes[i] = rune(binary.BigEndian.Uint16(raw[i*2:]))
	}
	return string(runes), nil
}

// WriteUTF16BE writes s as a 2-byte big-endian character count followed by
// its code units, each as a big-endian uint16.
func (d *Device) WriteUTF16BE(offset int64, s string) error {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 2+len(units)*2)
	binary.BigEndian.PutUint16(buf, uint16(len(units)))
	for i, u := range units {
		binary.BigEndian.PutUint16(buf[2+i*2:], u)
	}
	return d.WriteAt(offset, buf)
}

// Flush syncs the backing stream if it supports Sync().
func (d *Device) Flush() error {
	type syncer interface {
		Sync() error
	}
	if s, ok := d.stream.(syncer); ok {
		if err := s.Sync(); err != nil {
			return xerrors.Wrap(xerrors.IoFailure, err)
		}
	}
	return nil
}
