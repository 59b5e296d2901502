// Package apperr maps analysis errors to user-facing messages with codes.
//
// # Error Codes Reference
//
// Users can quote the code when reporting a problem. Codes are grouped by
// the stage that failed.
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - File not found: An input file does not exist
//	          Action: Check VACCINATION_FILE and DEATHS_FILE
//	LOAD002 - Invalid CSV: Rows have inconsistent column counts
//	          Action: Re-download the dataset; it must be comma-separated
//	LOAD003 - Encoding error: File contains invalid UTF-8
//	          Action: Save the file as UTF-8
//	LOAD004 - Empty file: File has no header row
//	          Action: Re-download the dataset
//
// # Parse Errors (PARSE001-PARSE099)
//
//	PARSE001 - Invalid date: A Day value is not a calendar date
//	           Action: Use YYYY-MM-DD dates
//	PARSE002 - Invalid number: A measurement is not a number
//	           Action: Remove non-numeric values from measurement columns
//
// # Data Errors (DATA001-DATA099)
//
//	DATA001 - Missing column: A required column is absent
//	          Action: Check the file is the expected OWID export
//	DATA002 - Unknown country: The name matches no joined row
//	          Action: Pick a country from the list
//
// # Fit Errors (FIT001-FIT099)
//
//	FIT001 - Not enough data: Too few joined rows for a regression
//	FIT002 - Constant predictor: Every vaccination value is identical
//	FIT003 - Invalid values: The sample contains NaN or infinity
//
// # Store Errors (STORE001-STORE099)
//
//	STORE001 - Store disabled: DATABASE_URL is not set
//	STORE002 - No runs: Nothing has been saved yet
//	           Action: Run analyze with --store
//
// # Configuration Errors (CFG001)
//
//	CFG001 - Invalid configuration: An environment setting is invalid
//	         Action: Fix the setting named in the log
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the logs for the original error
//
// # Matching
//
// Typed errors are matched first with errors.Is and errors.As; anything
// else falls back to case-insensitive substring patterns. The first match
// wins.
package apperr

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/JonMunkholm/excessdeaths/internal/config"
	"github.com/JonMunkholm/excessdeaths/internal/dataset"
	"github.com/JonMunkholm/excessdeaths/internal/pipeline"
	"github.com/JonMunkholm/excessdeaths/internal/regression"
	"github.com/JonMunkholm/excessdeaths/internal/store"
	"github.com/JonMunkholm/excessdeaths/internal/table"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgNotFound = UserMessage{
		Message: "Input file not found",
		Action:  "Check VACCINATION_FILE and DEATHS_FILE point at the downloaded datasets",
		Code:    "LOAD001",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with consistent columns",
		Code:    "LOAD002",
	}
	msgEncoding = UserMessage{
		Message: "File contains invalid characters",
		Action:  "Save the file as UTF-8",
		Code:    "LOAD003",
	}
	msgEmpty = UserMessage{
		Message: "File is empty",
		Action:  "Re-download the dataset; a header row is required",
		Code:    "LOAD004",
	}
	msgInvalidDate = UserMessage{
		Message: "Invalid date in Day column",
		Action:  "Use YYYY-MM-DD dates",
		Code:    "PARSE001",
	}
	msgInvalidNumber = UserMessage{
		Message: "Invalid number in a measurement column",
		Action:  "Remove non-numeric values from measurement columns",
		Code:    "PARSE002",
	}
	msgMissingColumn = UserMessage{
		Message: "Required column is missing",
		Action:  "Check the file is the expected dataset export",
		Code:    "DATA001",
	}
	msgTooFew = UserMessage{
		Message: "Not enough data for regression",
		Action:  "Pick a country with more overlapping days or lower MIN_SAMPLE_SIZE",
		Code:    "FIT001",
	}
	msgZeroVariance = UserMessage{
		Message: "Vaccination rate never changes, no line can be fitted",
		Action:  "Pick another country",
		Code:    "FIT002",
	}
	msgNonFinite = UserMessage{
		Message: "Data contains invalid values",
		Action:  "Check the source files for NaN or infinite values",
		Code:    "FIT003",
	}
	msgUnknownCountry = UserMessage{
		Message: "Country not found in the joined data",
		Action:  "Pick a country from the list",
		Code:    "DATA002",
	}
	msgStoreDisabled = UserMessage{
		Message: "Results store is not configured",
		Action:  "Set DATABASE_URL to keep analysis runs",
		Code:    "STORE001",
	}
	msgNoRuns = UserMessage{
		Message: "No analysis runs have been stored yet",
		Action:  "Run the analyze command with --store",
		Code:    "STORE002",
	}
	msgConfig = UserMessage{
		Message: "Invalid configuration",
		Action:  "Fix the setting named in the log and restart",
		Code:    "CFG001",
	}
)

// errorMatcher recognises one class of error.
type errorMatcher struct {
	match func(error) bool
	msg   UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func parseKind(missing bool, kind table.Kind) func(error) bool {
	return func(err error) bool {
		var pe *table.ParseError
		if !errors.As(err, &pe) {
			return false
		}
		if missing {
			return pe.Row == 0
		}
		return pe.Row > 0 && pe.Kind == kind
	}
}

func degenerate(reason regression.Reason) func(error) bool {
	return func(err error) bool {
		var de *regression.DegenerateInputError
		return errors.As(err, &de) && de.Reason == reason
	}
}

// matchers is checked in order; more specific entries come first.
var matchers = []errorMatcher{
	{is(os.ErrNotExist), msgNotFound},
	{is(table.ErrEncoding), msgEncoding},
	{is(table.ErrEmptyFile), msgEmpty},
	{is(csv.ErrFieldCount), msgInvalidCSV},
	{parseKind(true, 0), msgMissingColumn},
	{parseKind(false, table.KindDate), msgInvalidDate},
	{parseKind(false, table.KindFloat), msgInvalidNumber},
	{is(dataset.ErrUnknownCountry), msgUnknownCountry},
	{is(pipeline.ErrInsufficientData), msgTooFew},
	{degenerate(regression.ReasonTooFewPoints), msgTooFew},
	{degenerate(regression.ReasonZeroVariance), msgZeroVariance},
	{degenerate(regression.ReasonNonFinite), msgNonFinite},
	{is(store.ErrDisabled), msgStoreDisabled},
	{is(store.ErrNoRuns), msgNoRuns},
	{is(config.ErrInvalid), msgConfig},
}

// errorPattern maps a substring of an untyped error to a message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches errors that lost their type on the way, such as
// ones rebuilt from strings by a driver.
var errorPatterns = []errorPattern{
	{"no such file", msgNotFound},
	{"invalid csv", msgInvalidCSV},
	{"wrong number of fields", msgInvalidCSV},
	{"invalid utf-8", msgEncoding},
	{"column not found", msgMissingColumn},
	{"insufficient data", msgTooFew},
	{"unknown country", msgUnknownCountry},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the original error",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. A nil
// error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, m := range matchers {
		if m.match(err) {
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
	if msg.Action == "" {
		return fmt.Sprintf("%s (Code: %s)", msg.Message, msg.Code)
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

// UserError pairs the original error, kept for logging, with its message.
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
