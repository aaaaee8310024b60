package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-contract-backend/internal/domain"
)

func newDocRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("doc_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCreateDocument_Error_NoTable(t *testing.T) {
	db := newDocRepoDB(t /* no migrations */)
	doc, err := CreateDocument(context.Background(), db, "u1", "a.pdf", "/tmp/a.pdf")
	if err == nil || doc != nil {
		t.Fatalf("expected error creating without table, got doc=%v err=%v", doc, err)
	}
}

func TestCreateDocument_Success_InitialState(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})

	doc, err := CreateDocument(context.Background(), db, "u1", "contract.pdf", "/data/contract.pdf")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.ID == "" || doc.UserID != "u1" || doc.Filename != "contract.pdf" {
		t.Fatalf("unexpected Document fields: %+v", doc)
	}
	if doc.Status != domain.StatusProcessing {
		t.Fatalf("new document must start processing, got %q", doc.Status)
	}
	if len(doc.Analysis) != 0 {
		t.Fatalf("new document must have no analysis, got %s", doc.Analysis)
	}

	// Round-trip from the database.
	got, err := GetDocument(context.Background(), db, doc.ID, "u1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.ID != doc.ID || got.Status != domain.StatusProcessing {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestGetDocument_EnforcesOwnership(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})
	doc, err := CreateDocument(context.Background(), db, "owner", "a.pdf", "/a.pdf")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	if _, err := GetDocument(context.Background(), db, doc.ID, "intruder"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}

	// The background runner sees it regardless of owner.
	if _, err := GetDocumentAny(context.Background(), db, doc.ID); err != nil {
		t.Fatalf("GetDocumentAny: %v", err)
	}
}

func TestClaimProcessing_ExactlyOneWinner(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})
	doc, err := CreateDocument(context.Background(), db, "u1", "a.pdf", "/a.pdf")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	first, err := ClaimProcessing(context.Background(), db, doc.ID)
	if err != nil {
		t.Fatalf("ClaimProcessing: %v", err)
	}
	if !first {
		t.Fatalf("first claim must win")
	}

	second, err := ClaimProcessing(context.Background(), db, doc.ID)
	if err != nil {
		t.Fatalf("ClaimProcessing (second): %v", err)
	}
	if second {
		t.Fatalf("second claim must lose")
	}

	got, err := GetDocumentAny(context.Background(), db, doc.ID)
	if err != nil {
		t.Fatalf("GetDocumentAny: %v", err)
	}
	if got.Status != domain.StatusExtractingText {
		t.Fatalf("claim must advance status to extracting_text, got %q", got.Status)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})
	if err := UpdateStatus(context.Background(), db, "missing", domain.StatusAnalyzing); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusAndAnalysis_WritesBothAtOnce(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})
	doc, err := CreateDocument(context.Background(), db, "u1", "a.pdf", "/a.pdf")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	payload := datatypes.JSON(`{"summary":"ok","clauses":[]}`)
	if err := UpdateStatusAndAnalysis(context.Background(), db, doc.ID, domain.StatusCompleted, payload); err != nil {
		t.Fatalf("UpdateStatusAndAnalysis: %v", err)
	}

	got, err := GetDocumentAny(context.Background(), db, doc.ID)
	if err != nil {
		t.Fatalf("GetDocumentAny: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if len(got.Analysis) == 0 {
		t.Fatalf("terminal document must carry its analysis payload")
	}
}

func TestResetForRetry_OnlyFromTerminalStates(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})
	ctx := context.Background()
	doc, err := CreateDocument(ctx, db, "u1", "a.pdf", "/a.pdf")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	// Still processing: reset must not apply.
	applied, err := ResetForRetry(ctx, db, doc.ID, "u1")
	if err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}
	if applied {
		t.Fatalf("reset must not apply to an in-flight document")
	}

	// Drive to error, then reset.
	if err := UpdateStatusAndAnalysis(ctx, db, doc.ID, domain.StatusError, datatypes.JSON(`{"error":"boom"}`)); err != nil {
		t.Fatalf("UpdateStatusAndAnalysis: %v", err)
	}
	applied, err = ResetForRetry(ctx, db, doc.ID, "u1")
	if err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}
	if !applied {
		t.Fatalf("reset must apply to a terminal document")
	}

	got, err := GetDocumentAny(ctx, db, doc.ID)
	if err != nil {
		t.Fatalf("GetDocumentAny: %v", err)
	}
	if got.Status != domain.StatusProcessing {
		t.Fatalf("reset must return the document to processing, got %q", got.Status)
	}
	if len(got.Analysis) != 0 {
		t.Fatalf("reset must clear the analysis payload, got %s", got.Analysis)
	}
}

func TestResetForRetry_EnforcesOwnership(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})
	ctx := context.Background()
	doc, _ := CreateDocument(ctx, db, "owner", "a.pdf", "/a.pdf")
	_ = UpdateStatusAndAnalysis(ctx, db, doc.ID, domain.StatusError, datatypes.JSON(`{"error":"x"}`))

	applied, err := ResetForRetry(ctx, db, doc.ID, "intruder")
	if err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}
	if applied {
		t.Fatalf("reset must not apply for a non-owner")
	}
}

func TestListDocumentsPage_MostRecentFirst(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})
	ctx := context.Background()

	// Insert with explicit, distinct creation times.
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		d := &domain.Document{
			ID:        fmt.Sprintf("doc-%d", i),
			UserID:    "u1",
			Filename:  fmt.Sprintf("f%d.pdf", i),
			Filepath:  fmt.Sprintf("/f%d.pdf", i),
			Status:    domain.StatusProcessing,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(d).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// Another user's documents must not leak into the page.
	_ = db.Create(&domain.Document{
		ID: "other", UserID: "u2", Filename: "x.pdf", Filepath: "/x.pdf",
		Status: domain.StatusProcessing, CreatedAt: base,
	}).Error

	total, err := CountDocuments(ctx, db, "u1")
	if err != nil || total != 3 {
		t.Fatalf("CountDocuments = %d, %v; want 3", total, err)
	}

	page, err := ListDocumentsPage(ctx, db, "u1", 0, 2)
	if err != nil {
		t.Fatalf("ListDocumentsPage: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if page[0].ID != "doc-2" || page[1].ID != "doc-1" {
		t.Fatalf("expected most recent first, got %s, %s", page[0].ID, page[1].ID)
	}

	rest, err := ListDocumentsPage(ctx, db, "u1", 2, 2)
	if err != nil || len(rest) != 1 || rest[0].ID != "doc-0" {
		t.Fatalf("second page mismatch: %v %v", rest, err)
	}
}

func TestDocumentsStats(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})
	ctx := context.Background()

	// Empty: zero count, nil timestamp.
	n, ts, err := DocumentsStats(ctx, db, "u1")
	if err != nil {
		t.Fatalf("DocumentsStats: %v", err)
	}
	if n != 0 || ts != nil {
		t.Fatalf("empty stats = (%d, %v), want (0, nil)", n, ts)
	}

	if _, err := CreateDocument(ctx, db, "u1", "a.pdf", "/a.pdf"); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	n, ts, err = DocumentsStats(ctx, db, "u1")
	if err != nil {
		t.Fatalf("DocumentsStats: %v", err)
	}
	if n != 1 || ts == nil {
		t.Fatalf("stats = (%d, %v), want count 1 and a timestamp", n, ts)
	}
}

func TestDeleteDocument_ReturnsRowForCleanup(t *testing.T) {
	db := newDocRepoDB(t, &domain.Document{})
	ctx := context.Background()
	doc, err := CreateDocument(ctx, db, "u1", "a.pdf", "/data/a.pdf")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	// Wrong owner cannot delete.
	if _, err := DeleteDocument(ctx, db, doc.ID, "intruder"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}

	deleted, err := DeleteDocument(ctx, db, doc.ID, "u1")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if deleted.Filepath != "/data/a.pdf" {
		t.Fatalf("deleted row must carry the filepath, got %q", deleted.Filepath)
	}
	if _, err := GetDocument(ctx, db, doc.ID, "u1"); err != ErrNotFound {
		t.Fatalf("document must be gone after delete, got %v", err)
	}
}
