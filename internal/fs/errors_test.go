package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		err  error
		want ErrorKind
	}{
		{iofs.ErrNotExist, KindNotFound},
		{fmt.Errorf("wrapped: %w", iofs.ErrPermission), KindPermissionDenied},
		{iofs.ErrExist, KindAlreadyExists},
		{syscall.ENOTDIR, KindNotADirectory},
		{context.Canceled, KindIO},
		{errors.New("boom"), KindCopyFailed},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, classify(tc.err, KindCopyFailed), "%v", tc.err)
	}
}

func TestOpErrorIs(t *testing.T) {
	cause := errors.New("disk on fire")
	err := newError("delete", "/x", KindDeleteFailed, cause)

	assert.ErrorIs(t, err, ErrDeleteFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrCopyFailed)
	assert.Equal(t, "delete /x: delete failed: disk on fire", err.Error())
	assert.Equal(t, "list /y: not a directory", newError("list", "/y", KindNotADirectory, nil).Error())
}

func TestWrapErrorKeepsOpError(t *testing.T) {
	inner := newError("copy", "/a", KindNotFound, nil)
	got := wrapError("list", "/b", fmt.Errorf("ctx: %w", inner), KindIO)
	assert.Same(t, inner, got)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInvalidName, KindOf(fmt.Errorf("x: %w", newError("create_file", "", KindInvalidName, nil))))
	assert.Equal(t, KindNotFound, KindOf(iofs.ErrNotExist))
	assert.Equal(t, KindIO, KindOf(errors.New("other")))
	assert.Equal(t, "io error", ErrorKind(42).String())
}
