package testutil

import "io"

// ChunkedReader returns data in fixed-size reads so tests can simulate a
// transport that fragments records at arbitrary byte offsets.
type ChunkedReader struct {
	// data is the remaining payload.
	data []byte
	// sizes is the read schedule; the last size repeats once exhausted.
	sizes []int
}

// NewChunkedReader creates a reader that serves data in reads of the given
// sizes. With no sizes every read returns a single byte.
func NewChunkedReader(data []byte, sizes ...int) *ChunkedReader {
	if len(sizes) == 0 {
		sizes = []int{1}
	}
	return &ChunkedReader{data: append([]byte(nil), data...), sizes: sizes}
}

// Read implements io.Reader.
func (r *ChunkedReader) Read(buffer []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	size := r.sizes[0]
	if len(r.sizes) > 1 {
		r.sizes = r.sizes[1:]
	}
	if size <= 0 {
		size = 1
	}
	if size > len(buffer) {
		size = len(buffer)
	}
	if size > len(r.data) {
		size = len(r.data)
	}
	count := copy(buffer, r.data[:size])
	r.data = r.data[count:]
	return count, nil
}

// SplitEvery cuts data into consecutive chunks of size bytes.
func SplitEvery(data []byte, size int) [][]byte {
	if size <= 0 {
		size = 1
	}
	var chunks [][]byte
	for len(data) > size {
		chunks = append(chunks, data[:size])
		data = data[size:]
	}
	if len(data) > 0 {
		chunks = append(chunks, data)
	}
	return chunks
}
