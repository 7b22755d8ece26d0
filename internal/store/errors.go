package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// ErrorCode categorizes store failures that callers are expected to recover from.
type ErrorCode string

const (
	// ErrCodeInitialization indicates the database could not be opened at all.
	ErrCodeInitialization ErrorCode = "INITIALIZATION"

	// ErrCodeBlocked indicates a schema upgrade is obstructed by another live connection.
	ErrCodeBlocked ErrorCode = "BLOCKED"

	// ErrCodeCorruption indicates a schema mismatch or an unexpected missing collection.
	ErrCodeCorruption ErrorCode = "CORRUPTION"
)

// Error is the structured failure returned by Open and by operations that
// detect a broken schema at runtime.
//
// All three codes are recoverable by Reset followed by one retry of Open.
// BLOCKED additionally offers Connector.ForceReset.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (db=%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel errors for non-recoverable, caller-side conditions.
var (
	// ErrNotFound is returned when a record id is absent from a collection.
	ErrNotFound = errors.New("store: record not found")

	// ErrClosed is returned by operations on a released or reset connection.
	ErrClosed = errors.New("store: connection closed")

	// ErrDuplicateID is returned when an id already exists in the other collection.
	ErrDuplicateID = errors.New("store: id already present in another collection")

	// ErrUnknownCollection is returned for a collection name the schema does not define.
	ErrUnknownCollection = errors.New("store: unknown collection")
)

// IsInitializationError reports whether err carries ErrCodeInitialization.
// Uses errors.As to handle wrapped errors.
func IsInitializationError(err error) bool {
	return hasCode(err, ErrCodeInitialization)
}

// IsBlockedError reports whether err carries ErrCodeBlocked.
func IsBlockedError(err error) bool {
	return hasCode(err, ErrCodeBlocked)
}

// IsCorruptionError reports whether err carries ErrCodeCorruption.
func IsCorruptionError(err error) bool {
	return hasCode(err, ErrCodeCorruption)
}

// IsRecoverable reports whether err is resolved by a reset and one reopen.
// BLOCKED is excluded; it usually needs another session to close first.
func IsRecoverable(err error) bool {
	return IsInitializationError(err) || IsCorruptionError(err)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func newInitializationError(path, message string, err error) *Error {
	return &Error{Code: ErrCodeInitialization, Message: message, Path: path, Err: err}
}

func newBlockedError(path, message string, err error) *Error {
	return &Error{Code: ErrCodeBlocked, Message: message, Path: path, Err: err}
}

func newCorruptionError(path, message string, err error) *Error {
	return &Error{Code: ErrCodeCorruption, Message: message, Path: path, Err: err}
}

// classify maps SQLite failures onto the store taxonomy.
// Errors without a recovery meaning are wrapped with op and returned as-is.
func classify(path, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code {
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return newCorruptionError(path, op, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return newBlockedError(path, op, err)
		case sqlite3.ErrCantOpen:
			return newInitializationError(path, op, err)
		}
	}

	if strings.Contains(err.Error(), "no such table") {
		return newCorruptionError(path, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
