package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// # Error Codes Reference
//
// When users encounter errors, they can quote the error code to support
// staff for faster diagnosis. Codes are grouped by category:
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Invalid comparison: a record was compared with nothing or with another type
//	IMP002 - Unsupported operation: the configured store cannot perform this update
//	IMP003 - Orphaned dependent: a dependent row points at a parent outside the import
//	IMP004 - Identity missing: the store did not assign an identity on insert
//	IMP005 - System busy: too many imports in progress
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date
//	VAL002 - Invalid number
//	VAL003 - Required field is empty
//	VAL004 - Required column is missing from the file
//	VAL005 - Unknown column
//	VAL006 - Invalid filter
//	VAL007 - Invalid boolean
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - File is not valid CSV
//	FILE003 - File is empty
//	FILE004 - No file provided
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Unknown table
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            (SQLSTATE 23505)
//	DB002 - Not-null violation       (SQLSTATE 23502)
//	DB003 - Foreign key violation    (SQLSTATE 23503)
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout
//	DB007 - Deadlock                 (SQLSTATE 40P01)
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//
// ERR000 is the fallback for anything else; check the logs for the
// original error.
//
// # Matching order
//
// Sentinel errors are matched first with errors.Is, then PostgreSQL errors
// by SQLSTATE, then message patterns (case-insensitive substring). The first
// match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgInvalidComparison = UserMessage{"Records could not be compared", "This is a bug in the record type; contact support", "IMP001"}
	msgUnsupported       = UserMessage{"This operation is not supported by the configured store", "Use the database backend for this operation", "IMP002"}
	msgOrphan            = UserMessage{"A dependent row refers to a parent outside this import", "Import parents and their dependents together", "IMP003"}
	msgNoIdentity        = UserMessage{"The store did not assign an identity to an inserted row", "Please try again or contact support", "IMP004"}
	msgBusy              = UserMessage{"Too many imports in progress", "Please wait a moment and try again", "IMP005"}

	msgInvalidDate    = UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024", "VAL001"}
	msgInvalidNumber  = UserMessage{"Invalid number format detected", "Use a plain decimal amount such as 1234.56", "VAL002"}
	msgRequiredField  = UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL003"}
	msgMissingColumn  = UserMessage{"Required column is missing from the file", "Check that all required columns are present in your file", "VAL004"}
	msgUnknownColumn  = UserMessage{"Unknown column", "Check the column name against the table's columns", "VAL005"}
	msgInvalidFilter  = UserMessage{"Invalid filter", "Check the operator and value type for each filter", "VAL006"}
	msgInvalidBoolean = UserMessage{"Invalid yes/no value", "Use yes/no, true/false, or 1/0", "VAL007"}

	msgTooLarge  = UserMessage{"File exceeds maximum size limit", "Split the file into smaller files", "FILE001"}
	msgBadCSV    = UserMessage{"File is not a valid CSV", "Ensure the file is comma-separated with a header row", "FILE002"}
	msgEmptyFile = UserMessage{"The uploaded file is empty", "Upload a CSV file with a header and data rows", "FILE003"}
	msgNoFile    = UserMessage{"No file was provided", "Select at least one CSV file to import", "FILE004"}

	msgUnknownTable = UserMessage{"The specified table does not exist", "Verify the table name is correct", "TBL001"}

	msgDuplicateKey = UserMessage{"A record with this key already exists", "Review the file for rows already imported", "DB001"}
	msgNotNull      = UserMessage{"A required value is missing", "Ensure all required columns have values", "DB002"}
	msgForeignKey   = UserMessage{"Referenced record does not exist", "Ensure parent records are imported first", "DB003"}
	msgConnRefused  = UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}
	msgConnReset    = UserMessage{"Database connection was interrupted", "Please try again", "DB005"}
	msgTimeout      = UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}
	msgDeadlock     = UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}

	msgCancelled = UserMessage{"Request was cancelled", "Please try again", "REQ001"}
)

// sentinelMessages are checked in order with errors.Is.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrInvalidComparison, msgInvalidComparison},
	{ErrUnsupportedOperation, msgUnsupported},
	{ErrParentNotInBatch, msgOrphan},
	{ErrIdentityNotAssigned, msgNoIdentity},
	{ErrTooManyImports, msgBusy},
	{ErrUnknownColumn, msgUnknownColumn},
	{ErrInvalidFilter, msgInvalidFilter},
	{ErrUnknownTable, msgUnknownTable},
	{ErrFileTooLarge, msgTooLarge},
	{ErrNoFile, msgNoFile},
	{context.DeadlineExceeded, msgTimeout},
	{context.Canceled, msgCancelled},
}

// sqlStateMessages maps PostgreSQL error codes.
var sqlStateMessages = map[string]UserMessage{
	"23505": msgDuplicateKey,
	"23502": msgNotNull,
	"23503": msgForeignKey,
	"40P01": msgDeadlock,
	"57014": msgTimeout, // query_canceled by statement_timeout
}

// errorPatterns maps message fragments (lowercase) to user messages.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"file is empty", msgEmptyFile},
	{"missing required column", msgMissingColumn},
	{"required field is empty", msgRequiredField},
	{"invalid date", msgInvalidDate},
	{"is not a date", msgInvalidDate},
	{"invalid number", msgInvalidNumber},
	{"is not a number", msgInvalidNumber},
	{"is not a boolean", msgInvalidBoolean},
	{"read csv", msgBadCSV},
	{"duplicate key", msgDuplicateKey},
	{"violates foreign key", msgForeignKey},
	{"connection refused", msgConnRefused},
	{"connection reset", msgConnReset},
	{"deadlock", msgDeadlock},
	{"timeout", msgTimeout},
}

// ErrNoFile is returned when an import request carries no source.
var ErrNoFile = errors.New("no file provided")

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := sqlStateMessages[pgErr.Code]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
