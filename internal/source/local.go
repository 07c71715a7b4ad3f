package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// FileOpener is an Opener over a regular filesystem file. It stores the
// cleaned path and opens the file lazily; Open is the only call that
// touches the filesystem.
type FileOpener struct {
	Path string
}

// NewFileOpener constructs a FileOpener for a filesystem path.
func NewFileOpener(path string) FileOpener {
	return FileOpener{Path: filepath.Clean(path)}
}

// Open opens the underlying file. The context is checked before the
// syscall; os.Open itself is not cancellable once begun.
func (f FileOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return os.Open(f.Path)
}

// Name returns the cleaned filesystem path, which is this opener's
// stable identity for hashing, history, and quarantine naming.
func (f FileOpener) Name() string {
	return f.Path
}

// LocalBackend lists files from the local filesystem, resolving plain
// paths and glob patterns (e.g. "data/*.xml").
type LocalBackend struct{}

// List resolves uri via filepath.Glob. A bare file path with no glob
// metacharacters matches itself. Results are sorted for deterministic
// ordering across runs.
func (LocalBackend) List(ctx context.Context, uri string) ([]Opener, error) {
	matches, err := filepath.Glob(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", uri, err)
	}
	if len(matches) == 0 {
		// A literal path to a single file that happens to contain no
		// glob metacharacters still needs to resolve if it exists.
		if info, statErr := os.Stat(uri); statErr == nil && !info.IsDir() {
			matches = []string{uri}
		} else {
			return nil, fmt.Errorf("no files matched %q", uri)
		}
	}

	sort.Strings(matches)
	openers := make([]Opener, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		openers = append(openers, NewFileOpener(m))
	}
	return openers, nil
}

func init() {
	Register("", func() Backend { return LocalBackend{} })
}
