package xcontent_test

import (
	"testing"

	"github.com/halprin/xfatx/xcontent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHeader() *xcontent.Header {
	return &xcontent.Header{
		Magic:       xcontent.MagicCON,
		FileSystem:  xcontent.FileSystemSVOD,
		ContentType: xcontent.ContentTypeGameOnDemand,
		TitleID:     0x4D530001,
		HeaderSize:  0x2000,
		VolumeDescriptor: xcontent.VolumeDescriptor{
			Flags:           xcontent.EnhancedGDFLayout,
			DataBlockOffset: 0,
		},
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	h := sampleHeader()
	encoded := h.Encode()

	parsed, err := xcontent.Parse(encoded)
	require.NoError(t, err)
	assert.Equal(t, h.Magic, parsed.Magic)
	assert.Equal(t, h.ContentType, parsed.ContentType)
	assert.True(t, parsed.VolumeDescriptor.HasEnhancedGDFLayout())
}

func TestParseRejectsUnacceptedContentType(t *testing.T) {
	h := sampleHeader()
	h.ContentType = 0x9999
	_, err := xcontent.Parse(h.Encode())
	assert.Error(t, err)
}

func TestBaseAddressAndPrologueOffset(t *testing.T) {
	h := sampleHeader()
	assert.EqualValues(t, 0x2000, h.BaseAddress())
	assert.EqualValues(t, 0x2000, h.PrologueOffset())

	h.VolumeDescriptor.Flags = 0
	assert.EqualValues(t, 0x12000, h.BaseAddress())
	assert.EqualValues(t, 0x1000, h.PrologueOffset())
}

func TestComputeHeaderHash(t *testing.T) {
	h := sampleHeader()
	rootFile := make([]byte, 0x2000)
	hash, err := h.ComputeHeaderHash(rootFile)
	require.NoError(t, err)
	assert.NotEqual(t, [20]byte{}, hash)
}

func TestResignRequiresCONMagic(t *testing.T) {
	h := sampleHeader()
	h.Magic = xcontent.MagicLIVE
	_, err := xcontent.Resign(h, nil, "", nil)
	assert.Error(t, err)
}
