package api

import (
	"bytes"
	"sync"
)

// bufferPool reuses byte buffers for API request bodies. OCR requests embed a
// base64 page image per call, so the bodies run to megabytes and reallocating
// them for every page and retry adds avoidable GC pressure.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// getBuffer retrieves a buffer from the pool.
// Caller must call putBuffer() when done to return it to the pool.
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns a buffer to the pool for reuse. Oversized buffers are
// discarded so one huge page image does not pin memory for the whole run.
func putBuffer(buf *bytes.Buffer) {
	const maxBufferSize = 4 * 1024 * 1024 // 4MB
	if buf.Cap() <= maxBufferSize {
		bufferPool.Put(buf)
	}
}
