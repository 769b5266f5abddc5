// Package apperr provides the error taxonomy and the user-visible
// failure envelope shared by every HTTP handler. It follows the pattern-match
// idiom the rest of this codebase uses for turning internal errors into
// actionable user messages: a table of substrings tried in order, first
// match wins.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rowforge/ingest/internal/model"
)

// Error is a tagged application error carrying the taxonomy type plus
// enough context to populate the failure envelope.
type Error struct {
	Type               model.ErrorType
	Message            string
	StrategyAttempted  string
	TargetTable        string
	LLMDecisionContext map[string]any
	Suggestions        []string
	Cause              error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a tagged error of the given taxonomy type.
func New(t model.ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap tags an existing error with a taxonomy type, preserving it as the cause.
func Wrap(t model.ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// WithTable sets the target table on the error and returns it, for chaining.
func (e *Error) WithTable(table string) *Error {
	e.TargetTable = table
	return e
}

// WithStrategy sets the attempted strategy on the error and returns it.
func (e *Error) WithStrategy(strategy string) *Error {
	e.StrategyAttempted = strategy
	return e
}

// WithSuggestions attaches suggestion strings and returns the error.
func (e *Error) WithSuggestions(s ...string) *Error {
	e.Suggestions = append(e.Suggestions, s...)
	return e
}

// As reports whether err (or something it wraps) is an *Error, and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Envelope is the user-visible JSON shape for failures.
type Envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Details EnvelopeDetails `json:"error_details"`
}

type EnvelopeDetails struct {
	ErrorType          model.ErrorType `json:"error_type"`
	Timestamp          string          `json:"timestamp"`
	StrategyAttempted  string          `json:"strategy_attempted,omitempty"`
	TargetTable        string          `json:"target_table,omitempty"`
	LLMDecisionContext map[string]any  `json:"llm_decision_context,omitempty"`
	Suggestions        []string        `json:"suggestions,omitempty"`
	ErrorHistory       []string        `json:"error_history,omitempty"`
}

// ToEnvelope renders the error as the user-visible failure envelope.
func (e *Error) ToEnvelope(history ...string) Envelope {
	return Envelope{
		Success: false,
		Error:   e.Message,
		Details: EnvelopeDetails{
			ErrorType:          e.Type,
			Timestamp:          time.Now().UTC().Format(time.RFC3339),
			StrategyAttempted:  e.StrategyAttempted,
			TargetTable:        e.TargetTable,
			LLMDecisionContext: e.LLMDecisionContext,
			Suggestions:        e.Suggestions,
			ErrorHistory:       history,
		},
	}
}

// MarshalEnvelope is a convenience wrapper returning the envelope bytes.
func MarshalEnvelope(err error, history ...string) ([]byte, int) {
	appErr, ok := As(err)
	if !ok {
		appErr = Wrap(model.ErrInternal, "an unexpected error occurred", err)
	}
	b, _ := json.Marshal(appErr.ToEnvelope(history...))
	return b, HTTPStatus(appErr.Type)
}

// HTTPStatus maps a taxonomy type to the representative HTTP status.
func HTTPStatus(t model.ErrorType) int {
	switch t {
	case model.ErrParseError:
		return 422
	case model.ErrDuplicateFile:
		return 409
	case model.ErrCoercionError, model.ErrSchemaMismatch:
		return 422
	case model.ErrValidationError, model.ErrProtectedTable:
		return 400
	case model.ErrTimeout:
		return 504
	default:
		return 500
	}
}

// userPattern pairs a case-insensitive substring with a user-facing message,
// matched the same way db/file/upload errors are translated elsewhere in
// this codebase: first match wins, so specific patterns precede general ones.
type userPattern struct {
	pattern string
	message string
	action  string
}

var patterns = []userPattern{
	{"duplicate key", "A record with this key already exists", "Review uniqueness_columns or enable force_import"},
	{"unique constraint", "This value must be unique but already exists", "Check for duplicate rows in the source file"},
	{"violates foreign key", "This record references data that no longer exists", "Verify the referenced import has not been rolled back"},
	{"connection refused", "Could not reach the database", "Try again shortly"},
	{"connection reset", "The database connection was interrupted", "Retry the request"},
	{"context deadline exceeded", "The operation timed out", "Retry using the async endpoint for large files"},
	{"context canceled", "The request was cancelled", "Retry if this was unexpected"},
	{"no such host", "The object store endpoint could not be resolved", "Check STORAGE_ENDPOINT_URL"},
	{"access denied", "The object store rejected the credentials", "Check STORAGE_ACCESS_KEY_ID / STORAGE_SECRET_ACCESS_KEY"},
}

// FriendlyMessage translates a raw error into a short user-facing message,
// falling back to the error's own text when no pattern matches.
func FriendlyMessage(err error) (message, action string) {
	if err == nil {
		return "", ""
	}
	lower := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(lower, p.pattern) {
			return p.message, p.action
		}
	}
	return err.Error(), ""
}
