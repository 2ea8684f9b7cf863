package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureBufferFlushConcatenatesPayloads(t *testing.T) {
	var b CaptureBuffer
	b.Begin(time.UnixMilli(1_700_000_000_000))
	b.Append([]byte{1, 2})
	b.Append([]byte{3})
	b.Append([]byte{4, 5, 6})

	name, data, ok := b.Flush("alice-abcde")
	require.True(t, ok)
	assert.Equal(t, "1700000000000-alice-abcde.wav", name)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, data)
}

func TestCaptureBufferFlushResets(t *testing.T) {
	var b CaptureBuffer
	b.Begin(time.Now())
	b.Append([]byte{1})

	_, _, ok := b.Flush("k")
	require.True(t, ok)

	assert.False(t, b.Started())
	assert.Zero(t, b.Size())
	_, _, ok = b.Flush("k")
	assert.False(t, ok)
}

func TestCaptureBufferFlushWithoutAudio(t *testing.T) {
	var b CaptureBuffer
	b.Begin(time.Now())

	_, _, ok := b.Flush("k")
	assert.False(t, ok, "a turn with no audio produces no file")
}

func TestCaptureBufferFlushBeforeBegin(t *testing.T) {
	var b CaptureBuffer
	b.Append([]byte{1})

	_, _, ok := b.Flush("k")
	assert.False(t, ok, "audio outside a granted turn is discarded")
	assert.Zero(t, b.Size())
}

func TestCaptureBufferAppendCopiesPayload(t *testing.T) {
	var b CaptureBuffer
	b.Begin(time.Now())

	payload := []byte{1, 2, 3}
	b.Append(payload)
	payload[0] = 99

	_, data, ok := b.Flush("k")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, data)
}
