package orchestrator

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/nishad/eudravigilance/internal/icsrerrors"
	"github.com/nishad/eudravigilance/internal/source"
)

// quarantine copies o's bytes to quarantineURI/<basename> so a failed
// file's contents survive for later inspection, per spec.md §4.5 step
// 5. quarantineURI is treated as a local directory; object-store
// quarantine destinations are not supported by this implementation.
func quarantine(ctx context.Context, o source.Opener, quarantineURI string) error {
	if quarantineURI == "" {
		return nil
	}

	rc, err := o.Open(ctx)
	if err != nil {
		return icsrerrors.Wrap("orchestrator.quarantine", icsrerrors.KindFileOpenFailed, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(quarantineURI, 0o755); err != nil {
		return icsrerrors.Wrap("orchestrator.quarantine", icsrerrors.KindFileOpenFailed, err)
	}

	dest := filepath.Join(quarantineURI, path.Base(o.Name()))
	f, err := os.Create(dest)
	if err != nil {
		return icsrerrors.Wrap("orchestrator.quarantine", icsrerrors.KindFileOpenFailed, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return icsrerrors.Wrap("orchestrator.quarantine", icsrerrors.KindFileOpenFailed, err)
	}
	return nil
}
