package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsFindsWrappedError(t *testing.T) {
	base := Validation("quantity must be positive")
	wrapped := fmt.Errorf("add line: %w", base)

	typed := As(wrapped)
	require.NotNil(t, typed)
	assert.Equal(t, CodeValidation, typed.Code())
	assert.Equal(t, "quantity must be positive", typed.Message())
	assert.True(t, Is(wrapped, CodeValidation))
	assert.False(t, Is(wrapped, CodeNotFound))
}

func TestAsReturnsNilForPlainErrors(t *testing.T) {
	assert.Nil(t, As(errors.New("boom")))
	assert.Nil(t, As(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(CodeNotFound, sql.ErrNoRows, "order not found")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Contains(t, err.Error(), "order not found")
}

func TestMetadataDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING").HTTPStatus)
	assert.Equal(t, http.StatusBadRequest, MetadataFor(CodeValidation).HTTPStatus)
	assert.Equal(t, http.StatusForbidden, MetadataFor(CodeForbidden).HTTPStatus)
	assert.False(t, MetadataFor(CodeInternal).ExposeMessage)
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Equal(t, "", e.Error())
	assert.Nil(t, e.Unwrap())
}
