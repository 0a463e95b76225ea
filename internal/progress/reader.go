// Package progress provides an io.Reader wrapper that reports every chunk read.
package progress

import "io"

// ChunkFunc is called after each successful Read with the bytes just read,
// the cumulative byte count and the declared total (-1 if unknown).
// The chunk slice is only valid for the duration of the call.
type ChunkFunc func(chunk []byte, transferred, total int64)

// Reader wraps an io.Reader and reports each chunk as it is read.
type Reader struct {
	reader  io.Reader
	onChunk ChunkFunc
	total   int64
	read    int64
}

// NewReader creates a chunk-reporting reader.
func NewReader(r io.Reader, total int64, onChunk ChunkFunc) *Reader {
	return &Reader{
		reader:  r,
		onChunk: onChunk,
		total:   total,
	}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (n int, err error) {
	n, err = r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.onChunk != nil {
			r.onChunk(p[:n], r.read, r.total)
		}
	}
	return n, err
}

// Transferred returns the number of bytes read so far.
func (r *Reader) Transferred() int64 {
	return r.read
}

// Drain reads r to EOF, discarding data. Chunks are still reported.
// It returns the first non-EOF error from the underlying reader.
func (r *Reader) Drain(buf []byte) error {
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close closes the underlying reader if it implements io.Closer.
func (r *Reader) Close() error {
	if closer, ok := r.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
