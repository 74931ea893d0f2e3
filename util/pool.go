package util

import "sync"

// DefaultBufSize is the standard scratch buffer size for socket I/O.
const DefaultBufSize = 4096

// BufPool provides reusable byte buffers for network I/O, reducing
// GC pressure on hot paths like per-connection read pumps.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer of at least size bytes.  Buffers of exactly
// DefaultBufSize come from the pool; callers must return them with
// [PutBuf] when finished.
func GetBuf(size int) *[]byte {
	if size != DefaultBufSize {
		buf := make([]byte, size)
		return &buf
	}
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.  Buffers of any other
// size are left to the garbage collector.
func PutBuf(buf *[]byte) {
	if buf == nil || len(*buf) != DefaultBufSize {
		return
	}
	BufPool.Put(buf)
}
