package audio

import "sync"

// FrameBuffer accumulates small audio chunks until a byte threshold is
// reached, so that downstream sends carry a useful amount of audio instead of
// many sub-frame packets. Chunk order is preserved.
type FrameBuffer struct {
	threshold int
	data      []byte
	chunks    int

	// Statistics
	flushes    uint64
	totalBytes uint64

	mu sync.Mutex
}

// FrameBufferStats represents buffer statistics for monitoring
type FrameBufferStats struct {
	Threshold     int    `json:"threshold_bytes"`
	Buffered      int    `json:"buffered_bytes"`
	PendingChunks int    `json:"pending_chunks"`
	Flushes       uint64 `json:"flushes"`
	TotalBytes    uint64 `json:"total_bytes"`
}

// NewFrameBuffer creates a buffer that flushes once threshold bytes are held.
func NewFrameBuffer(threshold int) *FrameBuffer {
	if threshold < 1 {
		threshold = 1
	}
	return &FrameBuffer{
		threshold: threshold,
		data:      make([]byte, 0, threshold*2),
	}
}

// Add appends a chunk and returns the accumulated block once the threshold is
// reached. The returned slice is owned by the caller.
func (b *FrameBuffer) Add(chunk []byte) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(chunk) == 0 {
		return nil
	}
	b.data = append(b.data, chunk...)
	b.chunks++
	b.totalBytes += uint64(len(chunk))

	if len(b.data) < b.threshold {
		return nil
	}
	return b.takeLocked()
}

// Flush returns whatever is buffered, or nil when empty.
func (b *FrameBuffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) == 0 {
		return nil
	}
	return b.takeLocked()
}

// Reset discards buffered audio.
func (b *FrameBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
	b.chunks = 0
}

// Len returns the number of buffered bytes.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// GetStats returns buffer statistics
func (b *FrameBuffer) GetStats() FrameBufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return FrameBufferStats{
		Threshold:     b.threshold,
		Buffered:      len(b.data),
		PendingChunks: b.chunks,
		Flushes:       b.flushes,
		TotalBytes:    b.totalBytes,
	}
}

func (b *FrameBuffer) takeLocked() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	b.data = b.data[:0]
	b.chunks = 0
	b.flushes++
	return out
}
