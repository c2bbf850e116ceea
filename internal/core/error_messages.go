package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Nothing technical (SQL, stack detail, driver text) should
// reach SyncResult.Error or an HTTP body without going through MapError.
//
// Codes by category:
//
//	DB001-DB006     catalog or schedule store failures
//	VAL001-VAL003   row and header validation
//	FILE001-FILE006 source retrieval and decoding
//	SYNC001-SYNC005 job execution and polling
//	SCH001-SCH002   schedule validation
//	REQ001-REQ004   malformed requests, cancellation and timeouts
//	RATE001         throttling
//	ERR000          fallback; check the logs for the original error
//
// Patterns match case-insensitively with strings.Contains and the first match
// wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Store
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "Another sync created the same product at the same time",
			Action:  "Run the sync again",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
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
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "apply changes",
		msg: UserMessage{
			Message: "The catalog could not be updated; no changes were saved",
			Action:  "Please try again or contact support",
			Code:    "DB005",
		},
	},
	{
		pattern: "list products",
		msg: UserMessage{
			Message: "The current catalog could not be read",
			Action:  "Please try again or contact support",
			Code:    "DB006",
		},
	},

	// Validation
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from the file",
			Action:  "Include a name (nombre) and a price (precio) column",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid price",
		msg: UserMessage{
			Message: "Invalid price detected",
			Action:  "Use a non-negative number such as 12500 or 12.50",
			Code:    "VAL002",
		},
	},
	{
		pattern: "missing name",
		msg: UserMessage{
			Message: "A product has no name",
			Action:  "Ensure every row has a product name",
			Code:    "VAL003",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the catalog into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "File type not supported",
			Action:  "Upload a .pdf, .xlsx, .xls or .csv file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "corrupt file",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check that the file opens correctly and export it again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Please upload a file with at least one product",
			Code:    "FILE005",
		},
	},
	{
		pattern: "source not found",
		msg: UserMessage{
			Message: "The configured source file was not found",
			Action:  "Check the file path of the schedule",
			Code:    "FILE006",
		},
	},

	// Jobs
	{
		pattern: "sync queue is full",
		msg: UserMessage{
			Message: "System is busy processing other syncs",
			Action:  "Please wait a moment and try again",
			Code:    "SYNC001",
		},
	},
	{
		pattern: "not implemented",
		msg: UserMessage{
			Message: "Google Sheets synchronization is not available yet",
			Action:  "Use a file based sync instead",
			Code:    "SYNC002",
		},
	},
	{
		pattern: "schedule not found",
		msg: UserMessage{
			Message: "No schedule is configured for this channel",
			Action:  "Create a schedule first",
			Code:    "SYNC003",
		},
	},
	{
		pattern: "job not found",
		msg: UserMessage{
			Message: "Sync job not found",
			Action:  "The job may have expired. Start a new sync",
			Code:    "SYNC004",
		},
	},
	{
		pattern: "pool stopped",
		msg: UserMessage{
			Message: "The sync service is shutting down",
			Action:  "Please try again shortly",
			Code:    "SYNC005",
		},
	},

	// Schedules
	{
		pattern: "invalid schedule",
		msg: UserMessage{
			Message: "The schedule is not valid",
			Action:  "Use HH:MM (24h) for schedule_time and daily or hourly for schedule_type",
			Code:    "SCH001",
		},
	},

	{
		pattern: "sync_type must be",
		msg: UserMessage{
			Message: "Unknown sync channel",
			Action:  "Use sync_type all, file or sheets",
			Code:    "SCH002",
		},
	},

	// Requests
	{
		pattern: "invalid restaurant id",
		msg: UserMessage{
			Message: "Invalid restaurant",
			Action:  "Use a positive numeric restaurant id",
			Code:    "REQ003",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Send a JSON body with the documented fields",
			Code:    "REQ004",
		},
	},
	{
		pattern: "invalid multipart form",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Send the file as multipart/form-data in a field named file",
			Code:    "REQ004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "REQ002",
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

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
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
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserFacingError renders err for SyncResult.Error. Input errors keep their
// own wording, which names the offending column, row or extension; everything
// else is replaced by its mapped message.
func UserFacingError(err error) string {
	if err == nil {
		return ""
	}
	if IsKind(err, KindInput) || IsKind(err, KindSchedule) {
		return err.Error()
	}
	return FormatUserError(err)
}

// UserError wraps a technical error with its user-facing message.
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

// NewUserError maps err to a UserError. The technical error stays reachable
// through Unwrap for logging. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
