// Package apperr maps technical errors to coded, user-facing messages.
//
// # Error Codes Reference
//
// Users and operators can quote a code to support staff for faster
// diagnosis. Codes are grouped by category:
//
// # Template Errors (TPL001-TPL099)
//
//	TPL001 - No template matches the dataset filename
//	TPL002 - Template names a file type with no parser
//	TPL003 - Template definition is invalid
//
// # Structure Errors (STR001-STR099)
//
//	STR001 - Required sheet missing from the workbook
//	STR002 - Sheet failed the structural check
//	STR003 - File could not be parsed as CSV
//	STR004 - File could not be opened as a workbook
//
// # Rule Errors (RUL001-RUL099)
//
//	RUL001 - Expectation suite not found
//	RUL002 - Expectation suite could not be parsed
//	RUL003 - Expectation suite names an unknown expectation type
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Dataset not found
//	SRC002 - Dataset exceeds the size limit
//	SRC003 - Object store not configured
//	SRC004 - Dataset locator is malformed
//	SRC005 - Local path escapes the data root
//	SRC006 - Local datasets are not enabled
//
// # Request Errors (REQ001-REQ099, AUTH001-AUTH099)
//
//	REQ001 - Request body could not be read
//	AUTH001 - API key missing
//	AUTH002 - API key not recognized
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Too many concurrent runs
//	RUN002 - Run was cancelled
//	RUN003 - Run timed out
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Unable to connect to database
//	DB002 - Database connection was interrupted
//	DB003 - Schema missing (run `dqgate migrate`)
//	DB004 - Database was busy with conflicting operations
//	DB005 - Transaction could not be committed
//
// # Default Error (ERR000)
//
// Fallback when nothing matches; check logs for the technical error.
//
// # Matching
//
// Sentinel and typed errors are matched first with errors.Is / errors.As.
// Anything else falls through to case-insensitive substring patterns; the
// first match wins, so specific patterns come before general ones.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/dqgate/internal/expectation"
	"github.com/JonMunkholm/dqgate/internal/pipeline"
	"github.com/JonMunkholm/dqgate/internal/storage"
	"github.com/JonMunkholm/dqgate/internal/structural"
	"github.com/JonMunkholm/dqgate/internal/tabular"
)

var (
	// ErrBusy is returned when the run limiter is saturated.
	ErrBusy = errors.New("too many concurrent runs")

	// ErrInvalidRequest wraps malformed API request bodies.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMissingAPIKey and ErrInvalidAPIKey reject unauthenticated API calls.
	ErrMissingAPIKey = errors.New("missing API key")
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
	Status  int    `json:"-"`       // HTTP status for the web surface
}

type sentinel struct {
	target error
	msg    UserMessage
}

var sentinels = []sentinel{
	{pipeline.ErrNoTemplate, UserMessage{
		Message: "No template matches this dataset",
		Action:  "Check the filename against the registered template patterns",
		Code:    "TPL001", Status: http.StatusUnprocessableEntity,
	}},
	{pipeline.ErrUnsupportedFileType, UserMessage{
		Message: "The template's file type is not supported",
		Action:  "Use file_type csv or excel in the template",
		Code:    "TPL002", Status: http.StatusUnprocessableEntity,
	}},
	{tabular.ErrSheetNotFound, UserMessage{
		Message: "A required sheet is missing from the workbook",
		Action:  "Check sheet names against the template",
		Code:    "STR001", Status: http.StatusUnprocessableEntity,
	}},
	{expectation.ErrSuiteNotFound, UserMessage{
		Message: "Expectation suite not found",
		Action:  "Generate the suite or check SUITES_DIR",
		Code:    "RUL001", Status: http.StatusUnprocessableEntity,
	}},
	{expectation.ErrUnknownExpectation, UserMessage{
		Message: "Expectation suite names an unknown expectation type",
		Action:  "Fix the expectation_type in the suite file",
		Code:    "RUL003", Status: http.StatusUnprocessableEntity,
	}},
	{storage.ErrNotFound, UserMessage{
		Message: "Dataset not found",
		Action:  "Check the dataset path or S3 key",
		Code:    "SRC001", Status: http.StatusNotFound,
	}},
	{storage.ErrTooLarge, UserMessage{
		Message: "Dataset exceeds the size limit",
		Action:  "Split the file or raise RUN_MAX_FILE_SIZE",
		Code:    "SRC002", Status: http.StatusRequestEntityTooLarge,
	}},
	{storage.ErrNoObjectStore, UserMessage{
		Message: "S3 access is not configured",
		Action:  "Set AWS_REGION (and S3_ENDPOINT for local stacks)",
		Code:    "SRC003", Status: http.StatusServiceUnavailable,
	}},
	{storage.ErrOutsideRoot, UserMessage{
		Message: "Dataset path is outside the data directory",
		Action:  "Use a path relative to DATA_DIR without '..'",
		Code:    "SRC005", Status: http.StatusBadRequest,
	}},
	{storage.ErrLocalDisabled, UserMessage{
		Message: "Local datasets are not enabled",
		Action:  "Use an s3:// locator or set DATA_DIR",
		Code:    "SRC006", Status: http.StatusBadRequest,
	}},
	{ErrMissingAPIKey, UserMessage{
		Message: "API key required",
		Action:  "Send the key in the X-API-Key header",
		Code:    "AUTH001", Status: http.StatusUnauthorized,
	}},
	{ErrInvalidAPIKey, UserMessage{
		Message: "API key not recognized",
		Action:  "Check the key against API_KEYS",
		Code:    "AUTH002", Status: http.StatusForbidden,
	}},
	{ErrInvalidRequest, UserMessage{
		Message: "The request could not be read",
		Action:  `Send a JSON body such as {"dataset": "s3://bucket/key.csv"}`,
		Code:    "REQ001", Status: http.StatusBadRequest,
	}},
	{ErrBusy, UserMessage{
		Message: "System is busy processing other runs",
		Action:  "Please wait a moment and try again",
		Code:    "RUN001", Status: http.StatusServiceUnavailable,
	}},
	{context.Canceled, UserMessage{
		Message: "Run was cancelled",
		Action:  "Start a new run when ready",
		Code:    "RUN002", Status: http.StatusRequestTimeout,
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Run timed out",
		Action:  "Try a smaller file or raise RUN_TIMEOUT",
		Code:    "RUN003", Status: http.StatusGatewayTimeout,
	}},
}

var structuralFailure = UserMessage{
	Message: "Sheet failed the structural check",
	Action:  "Add the missing required columns and resubmit",
	Code:    "STR002", Status: http.StatusUnprocessableEntity,
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages. Order matters: specific before general.
var errorPatterns = []errorPattern{
	{"invalid template", UserMessage{
		Message: "Template definition is invalid",
		Action:  "Fix the template file reported in the logs",
		Code:    "TPL003", Status: http.StatusInternalServerError,
	}},
	{"invalid csv", UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with consistent quoting",
		Code:    "STR003", Status: http.StatusUnprocessableEntity,
	}},
	{"open workbook", UserMessage{
		Message: "File is not a valid Excel workbook",
		Action:  "Save the file as .xlsx",
		Code:    "STR004", Status: http.StatusUnprocessableEntity,
	}},
	{"parse suite", UserMessage{
		Message: "Expectation suite could not be parsed",
		Action:  "Check the suite file's YAML",
		Code:    "RUL002", Status: http.StatusInternalServerError,
	}},
	{"invalid s3 locator", UserMessage{
		Message: "Dataset locator is malformed",
		Action:  "Use s3://bucket/key or a local path",
		Code:    "SRC004", Status: http.StatusBadRequest,
	}},
	{"empty dataset locator", UserMessage{
		Message: "No dataset was given",
		Action:  "Pass a dataset locator",
		Code:    "SRC004", Status: http.StatusBadRequest,
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB001", Status: http.StatusServiceUnavailable,
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB002", Status: http.StatusServiceUnavailable,
	}},
	{"does not exist (sqlstate 42p01)", UserMessage{
		Message: "Result tables are missing",
		Action:  "Run `dqgate migrate`",
		Code:    "DB003", Status: http.StatusInternalServerError,
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB004", Status: http.StatusServiceUnavailable,
	}},
	{"failed to commit transaction", UserMessage{
		Message: "Results could not be saved",
		Action:  "Please try again; nothing from this run was recorded",
		Code:    "DB005", Status: http.StatusInternalServerError,
	}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
	Status:  http.StatusInternalServerError,
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(fmt.Errorf("resolve: %w", pipeline.ErrNoTemplate))
//	// msg.Code == "TPL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var failure *structural.Failure
	if errors.As(err, &failure) {
		return structuralFailure
	}
	for _, s := range sentinels {
		if errors.Is(err, s.target) {
			return s.msg
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

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
