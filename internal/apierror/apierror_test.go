package apierror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorMessage(t *testing.T) {
	err := NewAPIError(ErrNotFound, "ticket missing", nil)
	assert.Equal(t, "NOT_FOUND: ticket missing", err.Error())
}

func TestHasCode(t *testing.T) {
	err := NewAPIError(ErrConflict, "status changed underneath us", nil)
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))

	wrapped := fmt.Errorf("processing ticket: %w", err)
	assert.True(t, IsConflict(wrapped))

	assert.False(t, IsConflict(errors.New("plain error")))
	assert.False(t, IsConflict(nil))
}
