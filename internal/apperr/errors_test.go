package apperr

import (
	"errors"
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(model.ErrInternal, "insert failed", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("Wrap should preserve the cause for errors.Is")
	}
	appErr, ok := As(err)
	if !ok {
		t.Fatalf("As should recognize a *Error")
	}
	if appErr.Type != model.ErrInternal {
		t.Fatalf("expected ErrInternal, got %s", appErr.Type)
	}
}

func TestAsRejectsPlainError(t *testing.T) {
	if _, ok := As(errors.New("plain")); ok {
		t.Fatalf("As should not recognize a plain error")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[model.ErrorType]int{
		model.ErrDuplicateFile:   409,
		model.ErrValidationError: 400,
		model.ErrProtectedTable:  400,
		model.ErrTimeout:         504,
		model.ErrInternal:        500,
	}
	for errType, want := range cases {
		if got := HTTPStatus(errType); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", errType, got, want)
		}
	}
}

func TestToEnvelope(t *testing.T) {
	err := New(model.ErrDuplicateFile, "already imported").
		WithTable("orders").
		WithSuggestions("set allow_file_level_retry")

	env := err.ToEnvelope()
	if env.Success {
		t.Fatalf("failure envelope must have success=false")
	}
	if env.Details.ErrorType != model.ErrDuplicateFile {
		t.Fatalf("envelope error_type mismatch: %s", env.Details.ErrorType)
	}
	if env.Details.TargetTable != "orders" {
		t.Fatalf("envelope target_table mismatch: %s", env.Details.TargetTable)
	}
	if len(env.Details.Suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(env.Details.Suggestions))
	}
}

func TestMarshalEnvelopeWrapsPlainError(t *testing.T) {
	_, status := MarshalEnvelope(errors.New("unexpected"))
	if status != 500 {
		t.Fatalf("plain errors should default to 500, got %d", status)
	}
}

func TestFriendlyMessagePatternMatch(t *testing.T) {
	msg, action := FriendlyMessage(errors.New("ERROR: duplicate key value violates unique constraint"))
	if msg == "" || action == "" {
		t.Fatalf("expected a friendly message and action for a duplicate key error")
	}
}

func TestFriendlyMessageFallsBackToRawText(t *testing.T) {
	raw := errors.New("some unmapped failure")
	msg, _ := FriendlyMessage(raw)
	if msg != raw.Error() {
		t.Fatalf("unmapped errors should fall back to their own text, got %q", msg)
	}
}
