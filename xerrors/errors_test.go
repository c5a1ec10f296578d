package xerrors_test

import (
	"errors"
	"testing"

	"github.com/halprin/xfatx/xerrors"
	"github.com/stretchr/testify/assert"
)

func TestErrorWithMessage(t *testing.T) {
	base := xerrors.New(xerrors.NotFound)
	wrapped := base.WithMessage("/Content/0000000000000000")

	assert.Equal(t, "not found: /Content/0000000000000000", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
}

func TestErrorWrap(t *testing.T) {
	cause := errors.New("short read")
	wrapped := xerrors.Wrap(xerrors.IoFailure, cause)

	assert.Equal(t, "I/O operation failed: short read", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, xerrors.New(xerrors.IoFailure))
}

func TestErrorIsDistinguishesKind(t *testing.T) {
	a := xerrors.New(xerrors.OutOfSpace)
	b := xerrors.New(xerrors.OutOfRange)

	assert.False(t, errors.Is(a, b))
}

func TestNewf(t *testing.T) {
	err := xerrors.Newf(xerrors.BadChain, "cluster %d loops back to %d", 5, 2)
	assert.Equal(t, "cluster chain is inconsistent: cluster 5 loops back to 2", err.Error())
}
