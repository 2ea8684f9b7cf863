package session

import (
	"fmt"
	"time"
)

// CaptureBuffer accumulates the opaque audio payloads of one speaking turn.
// start is zero until CTS is granted; it stays set until the next flush so
// late frames from the tolerance window still land in the same turn.
type CaptureBuffer struct {
	start    time.Time
	payloads [][]byte
}

// Begin marks the start of a speaking turn.
func (b *CaptureBuffer) Begin(now time.Time) {
	b.start = now
}

// Started reports whether the buffer belongs to a granted turn.
func (b *CaptureBuffer) Started() bool {
	return !b.start.IsZero()
}

// Append records one audio payload. The payload is copied; callers may reuse
// their frame buffers.
func (b *CaptureBuffer) Append(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.payloads = append(b.payloads, cp)
}

// Size returns the number of buffered payloads.
func (b *CaptureBuffer) Size() int {
	return len(b.payloads)
}

// Flush concatenates the buffered payloads into a single capture file named
// "{startMillis}-{key}.wav" and resets the buffer. Returns ok=false when the
// turn never started or produced no audio; the buffer is reset either way.
func (b *CaptureBuffer) Flush(key string) (filename string, data []byte, ok bool) {
	started, payloads := b.start, b.payloads
	b.start = time.Time{}
	b.payloads = nil

	if started.IsZero() || len(payloads) == 0 {
		return "", nil, false
	}

	total := 0
	for _, p := range payloads {
		total += len(p)
	}
	data = make([]byte, 0, total)
	for _, p := range payloads {
		data = append(data, p...)
	}
	return fmt.Sprintf("%d-%s.wav", started.UnixMilli(), key), data, true
}
