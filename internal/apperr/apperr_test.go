package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_UnwrapsWrapped(t *testing.T) {
	cause := errors.New("db exploded")
	wrapped := Wrap(Internal, "create booking", cause)
	outer := fmt.Errorf("coordinator: %w", wrapped)

	assert.Equal(t, Internal, KindOf(outer))
	assert.Equal(t, "create booking", MessageOf(outer))
}

func TestKindOf_NonAppErrDefaultsInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestMessageOf_NonAppErrFallsBackToErrorString(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, "boom", MessageOf(err))
}

func TestError_StringIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Wrap(Conflict, "seat already held", cause)
	assert.Contains(t, err.Error(), "CONFLICT")
	assert.Contains(t, err.Error(), "seat already held")
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestError_StringOmitsCauseWhenAbsent(t *testing.T) {
	err := New(NotFound, "booking not found")
	assert.Equal(t, "NOT_FOUND: booking not found", err.Error())
}

func TestSentinels_MatchOwnKind(t *testing.T) {
	require.ErrorIs(t, ErrConflict, ErrConflict)
	assert.Equal(t, Conflict, KindOf(ErrConflict))
	assert.Equal(t, Stale, KindOf(ErrStale))
	assert.Equal(t, NotFound, KindOf(ErrNotFound))
	assert.Equal(t, InFlight, KindOf(ErrInFlight))
	assert.Equal(t, Conflict, KindOf(ErrNoAvailability))
}

func TestErrors_As_FindsWrappedAppError(t *testing.T) {
	wrapped := Wrap(Validation, "bad seat label", errors.New("regexp mismatch"))
	outer := fmt.Errorf("handler: %w", wrapped)

	var ae *Error
	require.True(t, errors.As(outer, &ae))
	assert.Equal(t, Validation, ae.Kind)
}
