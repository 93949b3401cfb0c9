// Channel-backed publisher for flowcore
// 从Go channel创建Publisher：每个订阅者有独立的后台读取协程，
// 协程生命周期由tomb管理，取消订阅即终止读取
package flowcore

import (
	"sync"
	"sync/atomic"

	"gopkg.in/tomb.v2"
)

// FromChannel 从channel创建Publisher。无需求时收到的值进入缓冲区，
// 由后续的Request排空；channel关闭后缓冲排空并正常完成。
// 多个订阅者会竞争同一个channel的值。
func FromChannel[T any](ch <-chan T) Publisher[T, Never] {
	return &channelPublisher[T]{ch: ch}
}

type channelPublisher[T any] struct {
	ch <-chan T
}

func (p *channelPublisher[T]) Subscribe(subscriber Subscriber[T, Never]) {
	s := &channelSubscription[T]{subscriber: subscriber}
	subscriber.OnSubscribe(s)
	s.lifecycle.Go(func() error {
		s.read(p.ch)
		return nil
	})
}

// channelSubscription 单个订阅者的channel读取链路。
// 读取协程与Request可能并发触碰缓冲区，投递统一走蹦床式派发循环，
// 保证对同一订阅者的OnNext严格串行。
type channelSubscription[T any] struct {
	lifecycle  tomb.Tomb
	mu         sync.Mutex
	subscriber Subscriber[T, Never]
	buffer     []T
	requested  Demand
	delivering bool
	closed     bool
	terminated bool
	cancelled  int32
}

// read 后台读取循环，取消或channel关闭时退出
func (s *channelSubscription[T]) read(ch <-chan T) {
	for {
		select {
		case <-s.lifecycle.Dying():
			return
		case value, ok := <-ch:
			if !ok {
				s.sourceClosed()
				return
			}
			s.push(value)
		}
	}
}

// push 新值进入缓冲并尝试派发
func (s *channelSubscription[T]) push(value T) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.buffer = append(s.buffer, value)
	s.drainLocked()
}

// sourceClosed channel已关闭：缓冲排空后投递正常完成
func (s *channelSubscription[T]) sourceClosed() {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.drainLocked()
}

// Request 追加需求并尝试从缓冲派发
func (s *channelSubscription[T]) Request(demand Demand) {
	if demand.IsNone() || s.IsCancelled() {
		return
	}

	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.requested = s.requested.Add(demand)
	s.drainLocked()
}

// Cancel 取消订阅并终止读取协程，幂等
func (s *channelSubscription[T]) Cancel() {
	if !atomic.CompareAndSwapInt32(&s.cancelled, 0, 1) {
		return
	}

	s.lifecycle.Kill(nil)

	s.mu.Lock()
	s.terminated = true
	s.buffer = nil
	s.mu.Unlock()
}

// IsCancelled 检查是否已取消
func (s *channelSubscription[T]) IsCancelled() bool {
	return atomic.LoadInt32(&s.cancelled) == 1
}

// drainLocked 蹦床式派发循环。进入时持锁，返回前释放锁。
// 已有活动派发时只留下新增需求，由活动循环消化。
func (s *channelSubscription[T]) drainLocked() {
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true

	for {
		if s.terminated || s.IsCancelled() {
			s.terminated = true
			break
		}

		if len(s.buffer) > 0 && !s.requested.IsNone() {
			value := s.buffer[0]
			s.buffer = s.buffer[1:]
			s.requested = s.requested.minusOne()
			s.mu.Unlock()

			extra := s.subscriber.OnNext(value)

			s.mu.Lock()
			s.requested = s.requested.Add(extra)
			continue
		}

		if s.closed && len(s.buffer) == 0 {
			// 源枯竭：投递完成并终止
			s.terminated = true
			s.delivering = false
			s.mu.Unlock()

			if !s.IsCancelled() {
				s.subscriber.OnComplete(Finished[Never]())
			}
			return
		}
		break
	}

	s.delivering = false
	s.mu.Unlock()
}
