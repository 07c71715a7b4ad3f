package source

import (
	"bytes"
	"context"
	"io"
)

// MemoryOpener implements Opener over an in-memory byte slice. It exists
// for tests and for synthetic pipelines where constructing a temporary
// file would be unnecessary.
type MemoryOpener struct {
	Data       []byte
	SourceName string
}

func (m MemoryOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.Data)), nil
}

func (m MemoryOpener) Name() string {
	return m.SourceName
}
