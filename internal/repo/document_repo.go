// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Document
// model — the status store of the processing pipeline.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a document is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Two access scopes exist on purpose. The client-facing side always reads
// with GetDocument (owner-scoped). The background runner uses
// GetDocumentAny and the status writers, which are keyed by id only — the
// runner operates with background privilege and must be able to finish a
// job regardless of who polls.
//
// Status writes are single-row, single-statement UPDATEs. ClaimProcessing
// and ResetForRetry are compare-and-swap on the status column: the WHERE
// clause names the expected current status, so of two racing callers
// exactly one observes RowsAffected == 1. That CAS is the per-document
// lease the pipeline relies on.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-contract-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateDocument inserts a new Document row owned by userID in the initial
// "processing" state. The document ID is a randomly generated UUID (string),
// and CreatedAt is set to UTC. Analysis starts NULL.
//
// On success, it returns the persisted Document. On failure, a DB error.
func CreateDocument(ctx context.Context, db *gorm.DB, userID, filename, filepath string) (*domain.Document, error) {
	d := &domain.Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		Filename:  filename,
		Filepath:  filepath,
		Status:    domain.StatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// GetDocument fetches a single document by id, enforcing ownership.
// Returns ErrNotFound when the row is absent or owned by someone else.
func GetDocument(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error) {
	var d domain.Document
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocumentAny fetches a document by id without an ownership filter.
// Reserved for the background runner, which is not acting on behalf of a
// request and must be able to load any job it was handed.
func GetDocumentAny(ctx context.Context, db *gorm.DB, id string) (*domain.Document, error) {
	var d domain.Document
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// CountDocuments returns the total number of documents owned by the user.
func CountDocuments(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// ListDocumentsPage returns a page of documents for a user, ordered by
// creation time descending (most recent first).
func ListDocumentsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DocumentsStats returns the document count and the latest update timestamp
// for a user. Used to derive a weak ETag for the list endpoint so pollers
// refreshing a dashboard can be served 304s.
func DocumentsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	var n int64
	if err := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("user_id = ?", userID).
		Count(&n).Error; err != nil {
		return 0, nil, err
	}
	var row struct{ MaxTS *time.Time }
	err := db.WithContext(ctx).
		Model(&domain.Document{}).
		Select("MAX(updated_at) AS max_ts").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return 0, nil, err
	}
	return n, row.MaxTS, nil
}

// UpdateStatus sets the status column of a document in a single UPDATE.
// Returns ErrNotFound when no row matched.
func UpdateStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatusAndAnalysis writes the terminal status and the analysis
// payload together in one UPDATE, so a poller can never observe a terminal
// status without its payload (or vice versa).
func UpdateStatusAndAnalysis(ctx context.Context, db *gorm.DB, id, status string, analysis datatypes.JSON) error {
	res := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":   status,
			"analysis": analysis,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimProcessing transitions a document from "processing" to
// "extracting_text" if and only if it is still in "processing". It reports
// whether the caller won the claim. Of two runners racing for the same id,
// exactly one sees claimed == true; the loser must exit without touching
// the row.
func ClaimProcessing(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Update("status", domain.StatusExtractingText)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ResetForRetry moves a terminal document back to "processing" and clears
// its analysis, in one UPDATE guarded by the terminal-status check. It
// reports whether the reset applied; false means the document was not in a
// terminal state (still in flight) or does not belong to userID.
func ResetForRetry(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID,
			[]string{domain.StatusCompleted, domain.StatusError}).
		Updates(map[string]any{
			"status":   domain.StatusProcessing,
			"analysis": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteDocument removes a document owned by userID and returns the deleted
// row so the caller can clean up the backing file. Returns ErrNotFound when
// the document is absent or owned by someone else.
func DeleteDocument(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error) {
	d, err := GetDocument(ctx, db, id, userID)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Delete(&domain.Document{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return d, nil
}
