package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NotFound("document_workflow", "wf-1"))

	assert.Equal(t, ErrCodeNotFound, CodeOf(wrapped))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.True(t, Is(wrapped, ErrCodeNotFound))
	assert.False(t, Is(nil, ErrCodeNotFound))
}

func TestPersistenceKeepsExistingCode(t *testing.T) {
	mismatch := New(ErrCodeActionMismatch, "stale action")
	assert.Same(t, mismatch, Persistence(mismatch, "ignored"))

	raw := stderrors.New("connection reset")
	err := Persistence(raw, "failed to commit transition")
	assert.Equal(t, ErrCodePersistence, CodeOf(err))
	assert.ErrorIs(t, err, raw)
	assert.NoError(t, Persistence(nil, "nothing"))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "INVALID_INPUT: actor_id: is required", InvalidInput("actor_id", "is required").Error())
	assert.Equal(t, "NOT_FOUND: workflow_stage not found: s-9", NotFound("workflow_stage", "s-9").Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		ErrCodeNotFound:               http.StatusNotFound,
		ErrCodeInvalidInput:           http.StatusBadRequest,
		ErrCodeActionMismatch:         http.StatusConflict,
		ErrCodeInsufficientPermission: http.StatusForbidden,
		ErrCodeConfiguration:          http.StatusUnprocessableEntity,
		ErrCodePersistence:            http.StatusServiceUnavailable,
		ErrCodeInternal:               http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), string(code))
	}
}
