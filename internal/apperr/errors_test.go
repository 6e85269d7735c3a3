package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, KindNotFound, KindOf(NotFound(base)))
	assert.Equal(t, KindConflict, KindOf(Conflict(base)))
	assert.Equal(t, KindTransient, KindOf(Transient(base)))
	assert.Equal(t, KindCritical, KindOf(Critical(base)))
	assert.Equal(t, KindInternal, KindOf(Internal(base)))
	assert.Equal(t, KindInternal, KindOf(base), "plain errors classify as internal")
}

func TestIsRetryable(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsRetryable(Conflict(base)))
	assert.True(t, IsRetryable(Transient(base)))
	assert.False(t, IsRetryable(NotFound(base)))
	assert.False(t, IsRetryable(NewBusiness("INSUFFICIENT_STOCK", base)))
	assert.False(t, IsRetryable(Critical(base)))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("root cause")
	wrapped := Transient(base)

	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, wrapped.Error(), "root cause")
}

func TestNewBusinessCode(t *testing.T) {
	err := NewBusiness("INSUFFICIENT_BALANCE", errors.New("not enough funds"))
	assert.Equal(t, "INSUFFICIENT_BALANCE", err.Code())
	assert.Equal(t, KindBusiness, err.Kind())
	assert.Contains(t, err.Error(), "INSUFFICIENT_BALANCE")
}
