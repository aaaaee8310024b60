// Package pipeline implements the background document-processing job: the
// state machine that walks one document from "processing" through text
// extraction and risk analysis to a terminal state.
//
// One job runs per document, launched fire-and-forget from the upload and
// retry handlers. Before doing any work the job claims the document with a
// compare-and-swap status update (processing → extracting_text); a job that
// loses the claim exits without touching the row, so concurrent launches for
// the same id cannot corrupt status. Every subsequent transition is a single
// atomic row update, and terminal writes carry status and analysis together,
// so a poller always observes consistent, monotonic progress.
//
// All failures are caught at the top of the job, classified into a short
// user-facing message, and written once to the error state. Nothing
// propagates to the request/response cycle — the job has no caller left to
// report to.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-contract-backend/internal/analyze"
	"github.com/tbourn/go-contract-backend/internal/domain"
	"github.com/tbourn/go-contract-backend/internal/extract"
	"github.com/tbourn/go-contract-backend/internal/repo"
)

// Runner executes document-processing jobs. All dependencies are injected so
// tests can substitute fakes for the external services.
type Runner struct {
	DB        *gorm.DB
	Extractor extract.Extractor
	Analyzer  analyze.Analyzer
	Log       zerolog.Logger

	// JobTimeout bounds the wall-clock time of one job. Zero disables the
	// deadline.
	JobTimeout time.Duration
}

// NewRunner constructs a Runner.
func NewRunner(db *gorm.DB, ex extract.Extractor, an analyze.Analyzer, log zerolog.Logger, timeout time.Duration) *Runner {
	return &Runner{DB: db, Extractor: ex, Analyzer: an, Log: log, JobTimeout: timeout}
}

// Launch starts processing docID in its own goroutine and returns
// immediately. The job is detached from any request context on purpose: the
// upload response must not wait for, or be able to cancel, the pipeline.
func (r *Runner) Launch(docID string) {
	go func() {
		ctx := context.Background()
		if r.JobTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.JobTimeout)
			defer cancel()
		}
		r.Process(ctx, docID)
	}()
}

// Process runs the full state machine for one document synchronously.
// Exported for tests and for the retry path; production callers normally go
// through Launch.
func (r *Runner) Process(ctx context.Context, docID string) {
	log := r.Log.With().Str("doc_id", docID).Logger()

	doc, err := repo.GetDocumentAny(ctx, r.DB, docID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Row deleted between launch and start. Nothing to update.
			log.Warn().Msg("document vanished before processing")
			return
		}
		log.Error().Err(err).Msg("load document failed")
		return
	}

	// Lease: only the claim winner may advance past "processing".
	claimed, err := repo.ClaimProcessing(ctx, r.DB, docID)
	if err != nil {
		log.Error().Err(err).Msg("claim failed")
		return
	}
	if !claimed {
		log.Warn().Str("status", doc.Status).Msg("document not claimable, skipping")
		return
	}

	text, err := r.Extractor.Extract(ctx, doc.Filepath)
	if err != nil {
		log.Warn().Err(err).Msg("text extraction failed")
		r.fail(ctx, log, docID, err)
		return
	}
	if len(strings.TrimSpace(text)) < minAnalyzableLen {
		log.Warn().Int("chars", len(text)).Msg("extracted text below analyzable threshold")
		r.fail(ctx, log, docID, ErrTextTooShort)
		return
	}

	if err := repo.UpdateStatus(ctx, r.DB, docID, domain.StatusAnalyzing); err != nil {
		log.Error().Err(err).Msg("status update failed")
		r.fail(ctx, log, docID, err)
		return
	}

	result, err := r.Analyzer.Analyze(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("analysis failed")
		r.fail(ctx, log, docID, err)
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		log.Error().Err(err).Msg("marshal analysis failed")
		r.fail(ctx, log, docID, err)
		return
	}
	if err := repo.UpdateStatusAndAnalysis(ctx, r.DB, docID, domain.StatusCompleted, datatypes.JSON(payload)); err != nil {
		log.Error().Err(err).Msg("completing write failed")
		r.fail(ctx, log, docID, err)
		return
	}
	log.Info().Str("filename", doc.Filename).Int("clauses", len(result.Clauses)).Msg("document analysis completed")
}

// fail records the terminal error state with a classified user-facing
// message. A persistence failure here is logged and swallowed — there is no
// longer anywhere to report it.
func (r *Runner) fail(ctx context.Context, log zerolog.Logger, docID string, cause error) {
	payload, _ := json.Marshal(domain.AnalysisError{Error: classify(cause)})
	// The job context may already be expired; the terminal write must still
	// go through.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := repo.UpdateStatusAndAnalysis(ctx, r.DB, docID, domain.StatusError, datatypes.JSON(payload)); err != nil {
		log.Error().Err(err).Msg("failed to record error state")
	}
}
