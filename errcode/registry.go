// Package errcode 提供分层错误码的基础类型和功能
package errcode

import (
	"fmt"
	"sync"
)

// Registry 错误码注册表（防止错误码冲突）
type Registry struct {
	mu     sync.RWMutex
	codes  map[int]string // code -> module:msg
	locked bool           // 是否锁定（锁定后不允许注册新错误码）
}

// globalRegistry 全局错误码注册表
var globalRegistry = &Registry{
	codes: make(map[int]string),
}

// Register 注册错误码（防止冲突）
// 如果错误码已存在且归属不同，则 panic
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register 注册错误码到注册表
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		panic(fmt.Sprintf("registry is locked, cannot register error code: %d", err.Code()))
	}

	code := err.Code()
	key := fmt.Sprintf("%s:%s", err.Module(), err.Message())

	if existingKey, exists := r.codes[code]; exists {
		if existingKey != key {
			panic(fmt.Sprintf(
				"error code conflict: code %d is already registered as %s, cannot register as %s",
				code, existingKey, key,
			))
		}
		// 相同错误码和归属，允许重复注册（幂等）
		return err
	}

	r.codes[code] = key
	return err
}

// Lock 锁定注册表，阻止新错误码注册
// 通常在应用启动完成后调用，防止运行时动态注册错误码
func (r *Registry) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = true
}

// Unlock 解锁注册表，允许注册新错误码
func (r *Registry) Unlock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = false
}

// IsLocked 检查注册表是否已锁定
func (r *Registry) IsLocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

// Lock 锁定全局注册表
func Lock() {
	globalRegistry.Lock()
}

// Unlock 解锁全局注册表
func Unlock() {
	globalRegistry.Unlock()
}
