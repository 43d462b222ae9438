package domain

import "errors"

var (
	// ErrNotSignedIn is returned when an operation requires an active session.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrNotFound indicates a record ID did not resolve in its collection.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden indicates the session lacks the capability for an action.
	// This is advisory gating only; the authoritative check lives server-side.
	ErrForbidden = errors.New("operation not permitted for current role")
	// ErrAlreadyEnrolled indicates a duplicate enrollment was refused locally.
	ErrAlreadyEnrolled = errors.New("already enrolled in course")
	// ErrInvalidQuizFormat indicates quiz items failed local validation.
	ErrInvalidQuizFormat = errors.New("invalid quiz item format")
	// ErrAuthFailed indicates the auth collaborator rejected a credential flow.
	ErrAuthFailed = errors.New("authentication failed")
)
