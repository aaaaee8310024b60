// Package services defines the business logic for accounts and documents.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Document-related errors.
var (
	// ErrDocumentNotFound indicates that the requested document does not exist
	// or is not accessible to the current user.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrNotPDF is returned when an uploaded file is not a PDF (by extension
	// or by content sniffing).
	ErrNotPDF = errors.New("only PDF files are accepted")

	// ErrFileTooLarge is returned when an upload exceeds the configured size cap.
	ErrFileTooLarge = errors.New("file exceeds the maximum upload size")

	// ErrEmptyFile is returned when an upload contains no data.
	ErrEmptyFile = errors.New("uploaded file is empty")

	// ErrDocumentInFlight is returned when a retry is requested for a document
	// that has not reached a terminal state yet.
	ErrDocumentInFlight = errors.New("document is still being processed")
)

// Account-related errors.
var (
	// ErrUsernameTaken is returned when registering with a username that
	// already exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials is returned on a failed login. It deliberately does
	// not distinguish an unknown user from a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidUsername is returned when a username fails validation.
	ErrInvalidUsername = errors.New("username must be 3-64 characters")

	// ErrWeakPassword is returned when a password fails the minimum length check.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)
