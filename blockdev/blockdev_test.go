package blockdev_test

import (
	"testing"

	"github.com/halprin/xfatx/blockdev"
	"github.com/stretchr/testify/assert"
	"github.com/xaionaro-go/bytesextra"
)

func newDevice(t *testing.T, size int) *blockdev.Device {
	backing := make([]byte, size)
	stream := bytesextra.NewReadWriteSeeker(backing)
	return blockdev.New(stream, 512, uint32(size/512), 0)
}

func TestReadWriteBlocksRoundTrip(t *testing.T) {
	dev := newDevice(t, 512*4)
	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}

	require := assert.New(t)
	require.NoError(dev.WriteBlocks(1, payload))

	read, err := dev.ReadBlocks(1, 1)
	require.NoError(err)
	require.Equal(payload, read)
}

func TestReadBlocksOutOfRange(t *testing.T) {
	dev := newDevice(t, 512*4)
	_, err := dev.ReadBlocks(10, 1)
	assert.Error(t, err)
}

func TestWriteAtIgnoresBlockAlignment(t *testing.T) {
	dev := newDevice(t, 512*4)
	assert.NoError(t, dev.WriteAt(10, []byte("hello")))

	read, err := dev.ReadAt(10, 5)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(read))
}

func TestStartOffsetShiftsAddressing(t *testing.T) {
	backing := make([]byte, 512*4)
	stream := bytesextra.NewReadWriteSeeker(backing)
	dev := blockdev.New(stream, 512, 3, 512)

	assert.NoError(t, dev.WriteBlocks(0, make([]byte, 512)))
	offset, err := dev.BlockOffset(0)
	assert.NoError(t, err)
	assert.EqualValues(t, 512, offset)
}
