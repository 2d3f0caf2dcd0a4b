// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Typed errors are matched first with errors.Is, so a wrapped sentinel always
// maps to its code. Untyped errors (driver messages, I/O) fall back to the
// pattern table below.
//
// # Transform Errors (TRN001-TRN099)
//
//	TRN001 - Unknown operation: A transform rule names an operation that does not exist
//	         Action: Check the operation name against GET /api/operations
//	         Matches: transform.ErrUnknownOperation
//
//	TRN002 - Conversion failed: A value could not be converted by a transform step
//	         Action: Review the source value or add an if_empty/coalesce step
//	         Matches: transform.ErrConversion
//
//	TRN003 - Malformed rule: The transform rule could not be parsed
//	         Action: Use the form "op|arg + op|arg"
//	         Matches: transform.ErrMalformedRule
//
//	TRN004 - Bad parameter: A transform step has an invalid argument
//	         Action: Check the argument types for the operation
//	         Matches: transform.ErrInvalidParam, transform.ErrLengthMismatch
//
//	TRN005 - Row rejected: A rejects step dropped the row
//	         Action: No action needed unless the row was expected
//	         Matches: transform.ErrRejectRow
//
// # Rule Errors (RULE001-RULE099)
//
//	RULE001 - Unknown rule type: A validation rule names a type that does not exist
//	          Action: Check the rule type against GET /api/rule-types
//	          Matches: validation.ErrUnknownRule
//
//	RULE002 - Bad rule parameters: A validation rule has invalid parameters
//	          Action: Check the rule's params
//	          Matches: validation.ErrInvalidRule
//
// # Template Errors (TPL001-TPL099)
//
//	TPL001 - Template not found
//	TPL002 - Invalid template
//	TPL003 - Required source columns are missing from the file
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Unsupported file format
//	FILE003 - Malformed file (the parser failed)
//	FILE004 - No file or no rows
//	FILE005 - Remote file could not be fetched
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            Patterns: "duplicate key", "unique constraint"
//	DB002 - Foreign key              Patterns: "foreign key"
//	DB003 - Connection problem       Matches: store.ErrNotConnected; Patterns: "connection refused", "connection reset"
//	DB004 - Timeout                  Matches: context.DeadlineExceeded; Patterns: "timeout"
//	DB005 - Store misconfiguration   Matches: store.ErrUnsupportedDriver, store.ErrInvalidIdentifier
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Too many concurrent jobs   Matches: ErrTooManyJobs
//	JOB002 - Job not found              Matches: ErrJobNotFound
//	JOB003 - Job still running          Matches: ErrJobActive
//	JOB004 - Job already rolled back    Matches: ErrAlreadyRolledBack
//
// # Other
//
//	REQ001  - Request cancelled   Matches: context.Canceled
//	RATE001 - Rate limited        Patterns: "rate limit"
//	ERR000  - Unknown error (fallback, check the logs for the technical error)
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorMatch struct {
	target error
	msg    UserMessage
}

// errorMatches is checked in order with errors.Is before any pattern.
// Specific sentinels come before the ones they may wrap.
var errorMatches = []errorMatch{
	{transform.ErrRejectRow, UserMessage{"Row was rejected by a transform rule", "No action needed unless the row was expected", "TRN005"}},
	{transform.ErrUnknownOperation, UserMessage{"Transform rule uses an unknown operation", "Check the operation name against the operations list", "TRN001"}},
	{transform.ErrConversion, UserMessage{"A value could not be converted", "Review the source value or add an if_empty or coalesce step", "TRN002"}},
	{transform.ErrMalformedRule, UserMessage{"Transform rule could not be parsed", `Use the form "op|arg + op|arg"`, "TRN003"}},
	{transform.ErrInvalidParam, UserMessage{"Transform step has an invalid argument", "Check the argument types for the operation", "TRN004"}},
	{transform.ErrLengthMismatch, UserMessage{"Transform step has an invalid argument", "Pass one rule per value, or a single rule for all values", "TRN004"}},

	{validation.ErrUnknownRule, UserMessage{"Validation rule type is not known", "Check the rule type against the rule types list", "RULE001"}},
	{validation.ErrInvalidRule, UserMessage{"Validation rule has invalid parameters", "Check the rule's params", "RULE002"}},

	{ErrTemplateNotFound, UserMessage{"Template not found", "Verify the template id is correct", "TPL001"}},
	{ErrInvalidTemplate, UserMessage{"Template is invalid", "Fix the template file and reload", "TPL002"}},
	{ErrMissingColumns, UserMessage{"Required column is missing from the file", "Check that the file headers match the template columns", "TPL003"}},

	{ErrFileTooLarge, UserMessage{"File exceeds the maximum upload size", "Split the file into smaller chunks", "FILE001"}},
	{fileio.ErrTooLarge, UserMessage{"File exceeds the maximum upload size", "Split the file into smaller chunks", "FILE001"}},
	{fileio.ErrUnsupportedFormat, UserMessage{"File format is not supported", "Use csv, tsv, json, ndjson, xml or xlsx", "FILE002"}},
	{ErrMalformedFile, UserMessage{"File could not be parsed", "Check that the file matches its declared format and is UTF-8", "FILE003"}},
	{ErrNoFile, UserMessage{"No file was provided", "Attach a file or send it as the request body", "FILE004"}},
	{fileio.ErrNoData, UserMessage{"File contains no data rows", "Upload a file with at least one data row", "FILE004"}},
	{fileio.ErrFetch, UserMessage{"Remote file could not be fetched", "Check that the URL is reachable and returns the file", "FILE005"}},

	{store.ErrNotConnected, UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{store.ErrUnsupportedDriver, UserMessage{"Database is not configured correctly", "Check DB_DRIVER and the connection settings", "DB005"}},
	{store.ErrInvalidIdentifier, UserMessage{"Database is not configured correctly", "Check table and column names", "DB005"}},

	{ErrTooManyJobs, UserMessage{"System is busy processing other jobs", "Please wait a moment and try again", "JOB001"}},
	{ErrJobNotFound, UserMessage{"Job not found", "Verify the job id is correct", "JOB002"}},
	{ErrJobActive, UserMessage{"Job is still running", "Wait for the job to finish before rolling it back", "JOB003"}},
	{ErrAlreadyRolledBack, UserMessage{"Job was already rolled back", "No action needed", "JOB004"}},

	{context.DeadlineExceeded, UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB004"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins, so more specific patterns come first.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Review the input for duplicate ids",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB001",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure parent records exist first",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Wrapped sentinels are matched first, then the pattern table. If nothing
// matches, the generic ERR000 message is returned.
//
//	_, err := transform.Transform("x", "bogus")
//	msg := MapError(err)
//	// msg.Code == "TRN001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	for _, m := range errorMatches {
		if errors.Is(err, m.target) {
			return m.msg
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user message.
type UserError struct {
	Technical error
	User      UserMessage
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
