// Cancellation handles for flowcore
// 取消句柄：类型擦除的AnyCancellable与组合式的CompositeCancellable
package flowcore

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// AnyCancellable
// ============================================================================

// AnyCancellable 类型擦除的取消句柄。只暴露Cancel能力，
// 持有者无法访问底层Subscription的Request。
type AnyCancellable struct {
	cancelled int32
	inner     Cancellable
}

// NewAnyCancellable 包装任意Cancellable为类型擦除的取消句柄
func NewAnyCancellable(inner Cancellable) *AnyCancellable {
	return &AnyCancellable{inner: inner}
}

// Cancel 取消底层链路，幂等
func (a *AnyCancellable) Cancel() {
	if atomic.CompareAndSwapInt32(&a.cancelled, 0, 1) {
		if a.inner != nil {
			a.inner.Cancel()
		}
	}
}

// IsCancelled 检查是否已取消
func (a *AnyCancellable) IsCancelled() bool {
	return atomic.LoadInt32(&a.cancelled) == 1
}

// ============================================================================
// CompositeCancellable
// ============================================================================

// CompositeCancellable 组合多个取消句柄，随整体一起取消
type CompositeCancellable struct {
	mu        sync.Mutex
	cancelled bool
	handles   []Cancellable
}

// NewCompositeCancellable 创建组合式取消句柄
func NewCompositeCancellable() *CompositeCancellable {
	return &CompositeCancellable{
		handles: make([]Cancellable, 0),
	}
}

// Add 添加句柄；整体已取消时立即取消新句柄
func (c *CompositeCancellable) Add(handle Cancellable) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		handle.Cancel()
		return
	}
	c.handles = append(c.handles, handle)
	c.mu.Unlock()
}

// Cancel 取消全部句柄，幂等
func (c *CompositeCancellable) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	handles := c.handles
	c.handles = nil
	c.mu.Unlock()

	for _, handle := range handles {
		handle.Cancel()
	}
}

// IsCancelled 检查是否已取消
func (c *CompositeCancellable) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}
