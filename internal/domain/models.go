// Package domain defines the persistence models for users and documents.
// These types are mapped with GORM and form the core data layer of the
// contract analysis application.
package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents a registered account. Documents are owned by exactly one
// user and ownership never transfers.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Username: unique login name.
//   - PasswordHash: bcrypt hash; never serialized.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID           string    `json:"id"       gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username" gorm:"type:varchar(64);not null;uniqueIndex"`
	PasswordHash string    `json:"-"        gorm:"type:varchar(128);not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Document represents one uploaded contract file plus its processing state
// and analysis result. It is the single source of truth the background
// pipeline writes to and the polling endpoint reads from.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owner of the document; indexed for listing.
//   - Filename: original (sanitized) upload name shown to the user.
//   - Filepath: storage location of the uploaded PDF on disk.
//   - Status: pipeline state, see the Status* constants.
//   - Analysis: JSON payload; the structured result when completed, or
//     {"error": "..."} when the pipeline failed. NULL while in flight.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
//
// Invariant: Analysis is non-NULL if and only if Status is terminal.
type Document struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:char(36);not null;index:idx_user_docs"`
	Filename  string         `json:"filename"   gorm:"type:varchar(255);not null"`
	Filepath  string         `json:"-"          gorm:"type:varchar(512);not null"`
	Status    string         `json:"status"     gorm:"type:varchar(32);not null;default:'processing';index"`
	Analysis  datatypes.JSON `json:"analysis,omitempty" gorm:"type:json"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_user_docs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string { return "documents" }

// Pipeline states. Transitions are monotonic along
// processing → extracting_text → analyzing → completed, with error reachable
// from every non-terminal state. Retry is the only backward move: it resets a
// terminal document to StatusProcessing and clears Analysis.
const (
	StatusProcessing     = "processing"
	StatusExtractingText = "extracting_text"
	StatusAnalyzing      = "analyzing"
	StatusCompleted      = "completed"
	StatusError          = "error"
)

// IsTerminal reports whether status is a terminal pipeline state, i.e. no
// further automatic transition will occur.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusError
}

// Progress maps a pipeline status to an approximate completion percentage
// for polling clients. It is a pure function of the status string; unknown
// statuses report 0.
func Progress(status string) int {
	switch status {
	case StatusProcessing:
		return 10
	case StatusExtractingText:
		return 40
	case StatusAnalyzing:
		return 80
	case StatusCompleted, StatusError:
		return 100
	default:
		return 0
	}
}

// StageLabel returns a short human-readable label for a pipeline status,
// suitable for display next to the progress percentage.
func StageLabel(status string) string {
	switch status {
	case StatusProcessing:
		return "Queued for processing"
	case StatusExtractingText:
		return "Extracting text"
	case StatusAnalyzing:
		return "Analyzing risks"
	case StatusCompleted:
		return "Analysis complete"
	case StatusError:
		return "Analysis failed"
	default:
		return status
	}
}

// AnalysisResult is the structured output of the risk analyzer: an executive
// summary plus an ordered list of identified risk clauses. Order is the order
// the model (or the fallback parser) emitted them; it is never re-sorted.
type AnalysisResult struct {
	Summary string       `json:"summary"`
	Clauses []RiskClause `json:"clauses"`
}

// RiskClause is one identified contract risk.
//
// RiskScore is a 0–100 severity on the documented weighted rubric. Free-text
// fields may be truncated with a trailing ellipsis when the source section
// exceeded the configured cap.
type RiskClause struct {
	ID           int    `json:"id"`
	ExactText    string `json:"exact_text"`
	Type         string `json:"type"`
	RiskScore    int    `json:"risk_score"`
	RiskCategory string `json:"risk_category,omitempty"`
	Clause       string `json:"clause"`
	Consequences string `json:"consequences"`
	Mitigation   string `json:"mitigation"`
}

// AnalysisError is the payload stored in Document.Analysis when the pipeline
// ends in the error state.
type AnalysisError struct {
	Error string `json:"error"`
}
