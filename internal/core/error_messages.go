package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// Codes are grouped by category:
//
//	VAL001-VAL099   invalid input (fields, filters, import rows)
//	WF001-WF099     workflow rule violations (stage and status transitions)
//	NF001-NF099     unknown records or templates
//	TPL001-TPL099   template rendering problems
//	IMP001-IMP099   bulk import process
//	FILE001-FILE099 uploaded file handling
//	DB001-DB099     storage failures
//	RATE001         request throttling
//	ERR000          anything else; check the logs for the technical error
//
// Errors built with the kind constructors in errors.go are classified by
// kind and keep their own message, since those messages are written for
// users. Anything else is matched case-insensitively against errorPatterns;
// the first match wins.

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

type kindMessage struct {
	kind   error
	code   string
	action string
}

// kindMessages is checked in order before any pattern.
var kindMessages = []kindMessage{
	{ErrIllegalTransition, "WF001", "Check the record's current stage and status"},
	{ErrNotFound, "NF001", "Verify the id is correct"},
	{ErrMissingVariable, "TPL001", "Provide a value for every template variable"},
	{ErrValidation, "VAL001", "Correct the highlighted input and try again"},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Import process
	{"too many concurrent imports", UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP001"}},
	{"import cancelled", UserMessage{"Import was cancelled", "Start a new import when ready", "IMP002"}},

	// Files
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller batches", "FILE001"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to upload", "FILE002"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Ensure the file is comma-separated with a header row", "FILE003"}},

	// Storage
	{"duplicate key", UserMessage{"A record with this ID already exists", "Use a different ID or update the existing record", "DB001"}},
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB002"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}},
	{"context deadline exceeded", UserMessage{"Operation timed out", "Please try again later", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB005"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "DB006"}},

	// Throttling
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. A hint attached to
// the error replaces the default action.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, km := range kindMessages {
		if errors.Is(err, km.kind) {
			msg := UserMessage{Message: kindText(err), Action: km.action, Code: km.code}
			if h := Hint(err); h != "" {
				msg.Action = h
			}
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

// kindText returns the innermost message of a kind error, without any
// wrapping context added on the way up.
func kindText(err error) string {
	msg := errors.UnwrapAll(err).Error()
	if msg == "" {
		return err.Error()
	}
	return msg
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	if msg.Action == "" {
		return fmt.Sprintf("%s (Code: %s)", msg.Message, msg.Code)
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
