package multifileio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/halprin/xfatx/multifileio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDataFiles(t *testing.T, sizes ...int) string {
	t.Helper()
	dir := t.TempDir()
	for i, size := range sizes {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(i)
		}
		name := filepath.Join(dir, "data"+string(rune('0'+i)))
		require.NoError(t, os.WriteFile(name, data, 0o644))
	}
	return dir
}

func TestNewLocalEmptyDirFails(t *testing.T) {
	dir := t.TempDir()
	_, err := multifileio.NewLocal(dir)
	assert.Error(t, err)
}

func TestReadBytesSpansFiles(t *testing.T) {
	dir := makeDataFiles(t, 4, 4)
	local, err := multifileio.NewLocal(dir)
	require.NoError(t, err)
	defer local.Close()

	require.NoError(t, local.SetPosition(2, 0))
	data, err := local.ReadBytes(4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 1}, data)
}

func TestSetPositionAtExactLengthSucceeds(t *testing.T) {
	dir := makeDataFiles(t, 4)
	local, err := multifileio.NewLocal(dir)
	require.NoError(t, err)
	defer local.Close()

	assert.NoError(t, local.SetPosition(4, 0))
}

func TestSetPositionPastLengthFails(t *testing.T) {
	dir := makeDataFiles(t, 4)
	local, err := multifileio.NewLocal(dir)
	require.NoError(t, err)
	defer local.Close()

	assert.Error(t, local.SetPosition(5, 0))
}

func TestReadPastLastFileFails(t *testing.T) {
	dir := makeDataFiles(t, 2)
	local, err := multifileio.NewLocal(dir)
	require.NoError(t, err)
	defer local.Close()

	require.NoError(t, local.SetPosition(0, 0))
	_, err = local.ReadBytes(4)
	assert.Error(t, err)
}
