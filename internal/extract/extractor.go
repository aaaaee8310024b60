// Package extract turns an uploaded contract file into plain text.
//
// Extraction is a two-tier chain. The primary tier submits the file to
// Google Cloud Document AI and reconstructs paragraph-aware text from the
// returned layout. When the cloud service is not configured, or its call
// fails for any reason, the chain silently demotes to the local tier, which
// pulls the embedded text layer out of the PDF page by page (no
// rasterization, no OCR). Only when both tiers come up short does extraction
// report failure — via ErrNoText, which callers must treat as terminal, not
// transient.
package extract

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// minTextLen is the minimal number of characters an extraction tier must
// produce to count as usable text.
const minTextLen = 10

// ErrNoText indicates that no usable text could be obtained from any tier.
// The document may be corrupted, password-protected, or image-only with no
// OCR coverage.
var ErrNoText = errors.New("no text extracted")

// Extractor produces plain text from a document on disk.
//
// Implementations must not mutate any persistent state; extraction is a pure
// read of the file plus, at most, a remote OCR call.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Unified chains the cloud OCR tier with the local PDF fallback.
// Cloud may be nil (service not configured), in which case only the local
// tier runs.
type Unified struct {
	Cloud *DocAIExtractor
	Log   zerolog.Logger
}

// NewUnified constructs the extraction chain. cloud may be nil.
func NewUnified(cloud *DocAIExtractor, log zerolog.Logger) *Unified {
	return &Unified{Cloud: cloud, Log: log}
}

// Extract runs the chain: cloud first, local PDF text layer second.
//
// Cloud-tier failures (transport, auth, misconfiguration) are logged and
// demoted to the fallback; they never propagate. ErrNoText is returned only
// when both tiers yield text shorter than the minimal-content threshold.
func (u *Unified) Extract(ctx context.Context, path string) (string, error) {
	if u.Cloud != nil {
		text, err := u.Cloud.Extract(ctx, path)
		if err != nil {
			u.Log.Warn().Err(err).Str("path", path).Msg("cloud extraction failed, using fallback")
		} else if usable(text) {
			return text, nil
		}
	}

	text, err := extractPDFText(path)
	if err != nil {
		u.Log.Warn().Err(err).Str("path", path).Msg("fallback extraction failed")
		return "", ErrNoText
	}
	if !usable(text) {
		return "", ErrNoText
	}
	u.Log.Info().Str("path", path).Int("chars", len(text)).Msg("fallback extraction successful")
	return text, nil
}

// usable reports whether an extraction result clears the minimal-content bar.
func usable(text string) bool {
	return len(strings.TrimSpace(text)) > minTextLen
}
