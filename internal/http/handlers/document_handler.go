// Document HTTP handlers.
//
// This file exposes REST endpoints for document resources:
//   - POST   /documents             (upload, launches background analysis)
//   - GET    /documents             (list, paginated, ETag support)
//   - GET    /documents/{id}/status (poll processing progress)
//   - POST   /documents/{id}/retry  (re-run a terminal document)
//   - DELETE /documents/{id}        (remove record and backing file)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
// The upload and retry endpoints return before processing finishes; clients
// poll the status endpoint until it reports a terminal state.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-contract-backend/internal/domain"
	"github.com/tbourn/go-contract-backend/internal/services"
	"github.com/tbourn/go-contract-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DocumentService defines document lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DocumentService interface {
	// Upload stores a PDF, creates the document row, and launches processing.
	Upload(ctx context.Context, userID string, fh *multipart.FileHeader) (*domain.Document, error)
	// Status returns the polling view (status, progress, analysis) of a document.
	Status(ctx context.Context, userID, docID string) (*services.StatusInfo, error)
	// ListPage returns a page of the user's documents and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Document, int64, error)
	// Stats returns the user's document count and most recent update time,
	// used to derive a weak ETag for the list endpoint.
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	// Retry resets a terminal document and relaunches processing.
	Retry(ctx context.Context, userID, docID string) error
	// Delete removes the document and (best-effort) its backing file.
	Delete(ctx context.Context, userID, docID string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for auth and documents. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	authSvc AuthService
	docSvc  DocumentService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(authSvc AuthService, docSvc DocumentService) *Handlers {
	return &Handlers{authSvc: authSvc, docSvc: docSvc}
}

// userID extracts the authenticated user id from the Gin context (set by the
// auth middleware). It returns "" when no identity is present; document
// handlers treat that as unauthorized.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

//
// DTOs
//

// UploadResponse is returned when an upload is accepted.
type UploadResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// DocumentSummary is the list view of a document. ErrorMessage is populated
// only for documents in the error state.
type DocumentSummary struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListDocumentsResponse wraps a page of documents and pagination information.
type ListDocumentsResponse struct {
	Documents  []DocumentSummary `json:"documents"`
	Pagination Pagination        `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// UploadDocument godoc
// @ID          uploadDocument
// @Summary     Upload a contract PDF
// @Description Accepts a PDF, creates the document in "processing" state, and starts background analysis. Returns immediately; poll the status endpoint for progress.
// @Tags        Documents
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
//
// @Param       file  formData  file  true  "PDF file"
//
// @Success     202  {object}  handlers.UploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "No file / not a PDF / too large"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /documents [post]
func (h *Handlers) UploadDocument(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no file provided")
		return
	}

	doc, err := h.docSvc.Upload(c.Request.Context(), uid, fh)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotPDF),
			errors.Is(err, services.ErrEmptyFile):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrFileTooLarge):
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "failed to upload file, please try again")
		}
		return
	}
	ok(c, http.StatusAccepted, UploadResponse{
		ID:      doc.ID,
		Message: "File uploaded successfully. Analysis in progress.",
	})
}

// ListDocuments godoc
// @ID          listDocuments
// @Summary     List documents (paginated)
// @Description Returns a page of the user's documents, most recent first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Documents
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListDocumentsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents [get]
func (h *Handlers) ListDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort; a stats failure still serves the list).
	if count, maxTS, err := h.docSvc.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"docs:%s:%d:%d"`, uid, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.docSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not retrieve documents")
		return
	}

	summaries := make([]DocumentSummary, 0, len(items))
	for i := range items {
		d := &items[i]
		summaries = append(summaries, DocumentSummary{
			ID:           d.ID,
			Filename:     d.Filename,
			Status:       d.Status,
			CreatedAt:    d.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			ErrorMessage: services.ErrorMessage(d),
		})
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListDocumentsResponse{
		Documents: summaries,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// DocumentStatus godoc
// @ID          documentStatus
// @Summary     Poll document processing status
// @Description Returns the current status, a derived progress percentage and stage label, and the analysis payload once the document is terminal.
// @Tags        Documents
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Document ID (UUID)"  format(uuid)
//
// @Success     200  {object} services.StatusInfo
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents/{id}/status [get]
func (h *Handlers) DocumentStatus(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	docID := c.Param("id")
	if _, err := uuid.Parse(docID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document id must be a UUID")
		return
	}

	info, err := h.docSvc.Status(c.Request.Context(), uid, docID)
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "document not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeStatusFailed, "could not retrieve status")
		return
	}
	ok(c, http.StatusOK, info)
}

// RetryDocument godoc
// @ID          retryDocument
// @Summary     Retry a failed or completed analysis
// @Description Resets a terminal document to "processing" and relaunches the pipeline. Conflicts when the document is still in flight.
// @Tags        Documents
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Document ID (UUID)"  format(uuid)
//
// @Success     202  {object} handlers.UploadResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Failure     409  {object} handlers.ErrorResponse "Document still processing"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents/{id}/retry [post]
func (h *Handlers) RetryDocument(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	docID := c.Param("id")
	if _, err := uuid.Parse(docID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document id must be a UUID")
		return
	}

	if err := h.docSvc.Retry(c.Request.Context(), uid, docID); err != nil {
		switch {
		case errors.Is(err, services.ErrDocumentNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "document not found")
		case errors.Is(err, services.ErrDocumentInFlight):
			fail(c, http.StatusConflict, ErrCodeRetryConflict, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to retry document processing")
		}
		return
	}
	ok(c, http.StatusAccepted, UploadResponse{ID: docID, Message: "Document processing restarted."})
}

// DeleteDocument godoc
// @ID          deleteDocument
// @Summary     Delete a document
// @Description Removes the document record and attempts best-effort removal of the backing file.
// @Tags        Documents
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Document ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Document not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documents/{id} [delete]
func (h *Handlers) DeleteDocument(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	docID := c.Param("id")
	if _, err := uuid.Parse(docID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document id must be a UUID")
		return
	}

	if err := h.docSvc.Delete(c.Request.Context(), uid, docID); err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "document not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, "an error occurred while deleting the document")
		return
	}
	noContent(c)
}
