package core

// # Error Codes Reference
//
// This file defines the failure taxonomy of the dashboard and the
// user-friendly messages shown for it in API responses and the diagnostics
// log. Page operations never show these messages directly: the status line
// only ever carries the short fixed strings in status.go.
//
// # Network Errors (NET001-NET099)
//
//	NET001 - Connection refused: the adapter did not accept the connection
//	         Patterns: "connection refused"
//	NET002 - Unknown host: the adapter hostname does not resolve
//	         Patterns: "no such host"
//	NET003 - Timeout: the adapter did not answer in time
//	         Patterns: "deadline exceeded", "timeout"
//	NET004 - Cancelled: the request was cancelled by the client
//	         Patterns: "context canceled"
//	NET005 - Device busy: too many requests already in flight
//	         Patterns: "device busy"
//	NET006 - Bad status: the adapter answered with a non-success status
//	         Patterns: "device returned status"
//	NET099 - Generic network failure
//	         Patterns: "network failure"
//
// # Parse Errors (PARSE001-PARSE099)
//
//	PARSE001 - Invalid JSON: a payload could not be parsed
//	           Patterns: "invalid json"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - No file selected
//	FILE003 - Download failed
//
// # Dashboard Errors (DASH001-DASH099)
//
//	DASH001 - Panel not found
//	DASH002 - Wrong panel kind
//	RATE001 - Rate limited
//
// # Default Error (ERR000)
//
// Returned when nothing matches. Check the diagnostics log for the original
// technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// Failure taxonomy. Every error produced by this package wraps one of these.
var (
	// ErrNetwork covers rejected requests and non-success statuses.
	ErrNetwork = errors.New("network failure")

	// ErrParse covers malformed JSON from the device, a file or the editor.
	ErrParse = errors.New("invalid json")

	// ErrDownload covers failures assembling or delivering a download.
	ErrDownload = errors.New("download failed")

	// ErrDeviceBusy is returned when all device request slots are occupied
	// for longer than the configured wait.
	ErrDeviceBusy = errors.New("device busy: too many concurrent requests")

	// ErrNoFile is returned when an upload carried no file.
	ErrNoFile = errors.New("no file provided")

	// ErrTooLarge is returned when an upload or response exceeds its limit.
	ErrTooLarge = errors.New("file too large")

	// ErrPanelNotFound is returned for unknown panel keys.
	ErrPanelNotFound = errors.New("panel not found")

	// ErrWrongPanelKind is returned when a panel is used for an operation
	// its kind does not support.
	ErrWrongPanelKind = errors.New("wrong panel kind")
)

// UserMessage is a user-facing description of an error.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is checked in order; specific patterns come before the
// generic ones they are usually wrapped in.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The adapter refused the connection",
			Action:  "Check that the adapter is powered and connected",
			Code:    "NET001",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "The adapter hostname could not be resolved",
			Action:  "Check DEVICE_URL",
			Code:    "NET002",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The adapter did not answer in time",
			Action:  "Please try again",
			Code:    "NET003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The adapter did not answer in time",
			Action:  "Please try again",
			Code:    "NET003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "NET004",
		},
	},
	{
		pattern: "device busy",
		msg: UserMessage{
			Message: "The adapter is busy with other requests",
			Action:  "Wait a moment and try again",
			Code:    "NET005",
		},
	},
	{
		pattern: "device returned status",
		msg: UserMessage{
			Message: "The adapter reported an error",
			Action:  "Check the adapter logs",
			Code:    "NET006",
		},
	},
	{
		pattern: "network failure",
		msg: UserMessage{
			Message: "Could not talk to the adapter",
			Action:  "Please try again",
			Code:    "NET099",
		},
	},
	{
		pattern: "invalid json",
		msg: UserMessage{
			Message: "The data is not valid JSON",
			Action:  "Fix the JSON syntax and try again",
			Code:    "PARSE001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size",
			Action:  "Upload a smaller file",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a JSON file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "download failed",
		msg: UserMessage{
			Message: "The download could not be created",
			Action:  "Please try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "panel not found",
		msg: UserMessage{
			Message: "The requested panel does not exist",
			Action:  "Reload the dashboard",
			Code:    "DASH001",
		},
	},
	{
		pattern: "wrong panel kind",
		msg: UserMessage{
			Message: "The panel does not support this operation",
			Action:  "Reload the dashboard",
			Code:    "DASH002",
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

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches the known patterns case-insensitively and returns the first
// match, or the ERR000 fallback.
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
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
