// Error classification for the processing pipeline.
//
// Failures inside a job are tagged sentinel errors, not strings; the mapping
// to user-facing messages lives here so wording changes never break the
// classification. Whatever the cause, the poller only ever sees one short
// message in the error payload.
package pipeline

import (
	"context"
	"errors"

	"github.com/tbourn/go-contract-backend/internal/analyze"
	"github.com/tbourn/go-contract-backend/internal/extract"
)

// minAnalyzableLen is the minimum extracted-text length worth sending to the
// analyzer; shorter text is treated as an extraction failure.
const minAnalyzableLen = 50

// ErrTextTooShort tags an extraction that produced text below the
// analyzable threshold.
var ErrTextTooShort = errors.New("extracted text too short to analyze")

// User-facing messages per failure category.
const (
	msgExtractionFailed = "Could not extract readable text from this document. The file may be corrupted, password-protected, or contain only images without text."
	msgTextTooShort     = "Extracted text is too short to analyze. This document may contain mostly images or be in an unsupported format."
	msgAnalysisDown     = "The analysis service is temporarily unavailable. Please try again later."
	msgTimedOut         = "Document analysis timed out. Please retry."
	msgInternal         = "Document analysis failed due to an internal error. Please retry."
)

// classify maps a pipeline failure to the message stored in the error
// payload and shown to the user.
func classify(err error) string {
	switch {
	case errors.Is(err, extract.ErrNoText):
		return msgExtractionFailed
	case errors.Is(err, ErrTextTooShort):
		return msgTextTooShort
	case errors.Is(err, analyze.ErrNoAPIKey), errors.Is(err, analyze.ErrServiceUnavailable):
		return msgAnalysisDown
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimedOut
	default:
		return msgInternal
	}
}
