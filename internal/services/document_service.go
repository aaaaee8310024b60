// Package services – DocumentService
//
// This file implements the DocumentService, which manages the lifecycle of
// uploaded contracts: upload validation and storage, launching the background
// processing job, progress/status reads for polling clients, retry of
// terminal documents, and deletion. Ownership rules are enforced here; the
// pipeline itself runs with background privilege and is reached only through
// the injected job launcher.
//
// Service-level errors (e.g., ErrDocumentNotFound, ErrDocumentInFlight) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-contract-backend/internal/domain"
	"github.com/tbourn/go-contract-backend/internal/repo"
)

// JobLauncher starts background processing for a document. Satisfied by
// *pipeline.Runner; tests substitute a fake.
type JobLauncher interface {
	Launch(docID string)
}

// DocumentService provides document-level operations: upload, status reads,
// listing, retry, and deletion.
type DocumentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Runner launches the background processing job.
	Runner JobLauncher
	// UploadDir is where uploaded PDFs are stored.
	UploadDir string
	// MaxUploadBytes caps accepted upload sizes.
	MaxUploadBytes int64
	// Log is the service logger.
	Log zerolog.Logger
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(db *gorm.DB, runner JobLauncher, uploadDir string, maxBytes int64, log zerolog.Logger) *DocumentService {
	return &DocumentService{
		DB:             db,
		Runner:         runner,
		UploadDir:      uploadDir,
		MaxUploadBytes: maxBytes,
		Log:            log,
	}
}

// StatusInfo is the polling view of a document: the raw status plus the
// derived progress percentage and stage label, and the analysis payload once
// the document is terminal.
type StatusInfo struct {
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Stage    string          `json:"stage"`
	Analysis json.RawMessage `json:"analysis,omitempty"`
}

// Upload validates and stores a PDF, creates the document row in the initial
// "processing" state, and launches the background job. It returns the new
// document immediately; processing continues detached.
func (s *DocumentService) Upload(ctx context.Context, userID string, fh *multipart.FileHeader) (*domain.Document, error) {
	if fh.Size == 0 {
		return nil, ErrEmptyFile
	}
	if fh.Size > s.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
		return nil, ErrNotPDF
	}

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// Sniff the magic bytes; the extension alone is not trustworthy.
	head := make([]byte, 5)
	if _, err := io.ReadFull(src, head); err != nil || string(head) != "%PDF-" {
		return nil, ErrNotPDF
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	filename := storedFilename(fh.Filename)
	path := filepath.Join(s.UploadDir, filename)
	if err := saveFile(src, path); err != nil {
		return nil, err
	}

	doc, err := repo.CreateDocument(ctx, s.DB, userID, filename, path)
	if err != nil {
		// The row is the source of truth; without it the file is an orphan.
		if rmErr := os.Remove(path); rmErr != nil {
			s.Log.Error().Err(rmErr).Str("path", path).Msg("cleanup of orphaned upload failed")
		}
		return nil, err
	}

	s.Runner.Launch(doc.ID)
	s.Log.Info().Str("doc_id", doc.ID).Str("filename", filename).Str("user_id", userID).Msg("document uploaded")
	return doc, nil
}

// Status returns the polling view of a document owned by userID.
func (s *DocumentService) Status(ctx context.Context, userID, docID string) (*StatusInfo, error) {
	doc, err := repo.GetDocument(ctx, s.DB, docID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	info := &StatusInfo{
		Status:   doc.Status,
		Progress: domain.Progress(doc.Status),
		Stage:    domain.StageLabel(doc.Status),
	}
	if len(doc.Analysis) > 0 {
		info.Analysis = json.RawMessage(doc.Analysis)
	}
	return info, nil
}

// Get returns a document owned by userID.
func (s *DocumentService) Get(ctx context.Context, userID, docID string) (*domain.Document, error) {
	doc, err := repo.GetDocument(ctx, s.DB, docID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// ListPage returns a page of the user's documents, most recent first, along
// with the total count. Invalid page/pageSize values fall back to defaults.
func (s *DocumentService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountDocuments(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Document{}, 0, nil
	}

	items, err := repo.ListDocumentsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Stats returns the user's document count and most recent update time. The
// list handler derives its weak ETag from these values.
func (s *DocumentService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.DocumentsStats(ctx, s.DB, userID)
}

// Retry resets a terminal document back to "processing" and relaunches the
// job. Returns ErrDocumentInFlight when the document has not reached a
// terminal state — an in-flight job must not be doubled up.
func (s *DocumentService) Retry(ctx context.Context, userID, docID string) error {
	doc, err := repo.GetDocument(ctx, s.DB, docID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}
	if !domain.IsTerminal(doc.Status) {
		return ErrDocumentInFlight
	}
	// CAS guard: the reset only applies if the row is still terminal now.
	applied, err := repo.ResetForRetry(ctx, s.DB, docID, userID)
	if err != nil {
		return err
	}
	if !applied {
		return ErrDocumentInFlight
	}
	s.Runner.Launch(docID)
	s.Log.Info().Str("doc_id", docID).Msg("document processing restarted")
	return nil
}

// Delete removes the document record and makes a best-effort attempt to
// remove the backing file. File removal failure is logged but does not fail
// the deletion — the record is already gone.
func (s *DocumentService) Delete(ctx context.Context, userID, docID string) error {
	doc, err := repo.DeleteDocument(ctx, s.DB, docID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}
	if err := os.Remove(doc.Filepath); err != nil && !os.IsNotExist(err) {
		s.Log.Error().Err(err).Str("path", doc.Filepath).Msg("could not delete backing file")
	}
	s.Log.Info().Str("doc_id", docID).Str("user_id", userID).Msg("document deleted")
	return nil
}

// ErrorMessage extracts the stored error message from a terminal document's
// analysis payload, or "" when not applicable.
func ErrorMessage(doc *domain.Document) string {
	if doc.Status != domain.StatusError || len(doc.Analysis) == 0 {
		return ""
	}
	var e domain.AnalysisError
	if err := json.Unmarshal(doc.Analysis, &e); err != nil {
		return "Unknown error"
	}
	return e.Error
}

// unsafeFilenameRE matches everything that is not safe to keep in a stored
// filename.
var unsafeFilenameRE = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// storedFilename sanitizes the client-supplied name and appends a timestamp
// so repeated uploads of the same file never collide.
func storedFilename(original string) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	name = unsafeFilenameRE.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = "document"
	}
	return fmt.Sprintf("%s_%s%s", name, time.Now().UTC().Format("20060102_150405"), strings.ToLower(ext))
}

// saveFile streams src to a freshly created file at path.
func saveFile(src io.Reader, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
