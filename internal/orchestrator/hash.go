package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/nishad/eudravigilance/internal/icsrerrors"
	"github.com/nishad/eudravigilance/internal/source"
)

// hashOpener streams o's bytes through SHA-256 without buffering the
// whole file in memory, matching spec.md §4.5 step 2.
func hashOpener(ctx context.Context, o source.Opener) (string, error) {
	rc, err := o.Open(ctx)
	if err != nil {
		return "", icsrerrors.Wrap("orchestrator.hashOpener", icsrerrors.KindFileOpenFailed, err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", icsrerrors.Wrap("orchestrator.hashOpener", icsrerrors.KindFileOpenFailed, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
