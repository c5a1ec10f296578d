package catalog_test

import (
	"testing"

	"github.com/halprin/xfatx/xcontent/catalog"
	"github.com/stretchr/testify/assert"
)

func TestContentTypeNameKnownValue(t *testing.T) {
	name, ok := catalog.ContentTypeName(0x7000)
	assert.True(t, ok)
	assert.Equal(t, "Game on Demand", name)
}

func TestContentTypeNameUnknownValue(t *testing.T) {
	_, ok := catalog.ContentTypeName(0xDEADBEEF)
	assert.False(t, ok)
}

func TestTitleNameKnownValue(t *testing.T) {
	name, ok := catalog.TitleName(0x4D5308C8)
	assert.True(t, ok)
	assert.Equal(t, "Halo 3", name)
}
