package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapMsgKeepsCode(t *testing.T) {
	err := ErrMalformedFrame.WrapMsg("decode payload", "type", "new_message")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrMalformedFrame))
	assert.False(t, errors.Is(err, ErrNotConnected))
	assert.Contains(t, err.Error(), "type=new_message")

	ce, ok := AsCode(err)
	require.True(t, ok)
	assert.Equal(t, MalformedFrame, ce.Code)
}

func TestCodeRelation(t *testing.T) {
	r := newCodeRelation()
	require.Error(t, r.Add(1))
	require.NoError(t, r.Add(10, 11, 12))
	assert.True(t, r.Is(10, 12))
	assert.True(t, r.Is(11, 12))
	assert.False(t, r.Is(12, 10))
}

func TestErrPanic(t *testing.T) {
	assert.NoError(t, ErrPanic(nil))
	err := ErrPanic("boom")
	ce, ok := AsCode(err)
	require.True(t, ok)
	assert.Equal(t, "boom", ce.Detail)
}
