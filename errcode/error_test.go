package errcode

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(20, 99, "registry", "something broke", http.StatusBadRequest)

	assert.Equal(t, 200099, err.Code())
	assert.Equal(t, "registry", err.Module())
	assert.Equal(t, "something broke", err.Message())
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}

func TestNew_DefaultHTTPStatus(t *testing.T) {
	err := New(20, 98, "registry", "no status")
	assert.Equal(t, http.StatusOK, err.HTTPStatus())
}

func TestLayeredError_Wrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrStoreUnavailable.Wrap(cause)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "connection refused")

	// 原实例不被修改
	assert.Nil(t, ErrStoreUnavailable.Cause())
}

func TestLayeredError_WithData(t *testing.T) {
	err := ErrInstanceNotFound.WithData("service", "order-app").WithData("instance", "i-1")

	assert.Equal(t, "order-app", err.Data()["service"])
	assert.Equal(t, "i-1", err.Data()["instance"])
	assert.Empty(t, ErrInstanceNotFound.Data())
}

func TestLayeredError_Is(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ErrDuplicateInstance.WithMsg("renamed"))

	assert.True(t, errors.Is(wrapped, ErrDuplicateInstance))
	assert.False(t, errors.Is(wrapped, ErrInstanceNotFound))
}

func TestRegistry_Conflict(t *testing.T) {
	r := &Registry{codes: make(map[int]string)}

	first := New(30, 1, "test", "first")
	r.Register(first)

	// 幂等重复注册
	assert.NotPanics(t, func() { r.Register(first) })

	// 相同错误码不同归属 -> panic
	assert.Panics(t, func() {
		r.Register(New(30, 1, "test", "second"))
	})
}

func TestRegistry_Lock(t *testing.T) {
	r := &Registry{codes: make(map[int]string)}
	r.Lock()
	assert.True(t, r.IsLocked())
	assert.Panics(t, func() {
		r.Register(New(31, 1, "test", "late"))
	})
	r.Unlock()
	assert.NotPanics(t, func() {
		r.Register(New(31, 1, "test", "late"))
	})
}
