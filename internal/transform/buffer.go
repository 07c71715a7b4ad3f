package transform

import (
	"bytes"
	"io"
)

// RowBuffer is an in-memory CSV row stream for one table. It is written
// once by the transformer and then handed to the Loader as a fresh
// io.Reader per use, so the same buffer can be rewound without copying.
type RowBuffer struct {
	buf *bytes.Buffer
}

func newRowBuffer() *RowBuffer {
	return &RowBuffer{buf: &bytes.Buffer{}}
}

// Reader returns an io.Reader positioned at the start of the buffer.
func (b *RowBuffer) Reader() io.Reader {
	return bytes.NewReader(b.buf.Bytes())
}

// Len reports the number of bytes currently buffered.
func (b *RowBuffer) Len() int {
	return b.buf.Len()
}
