// Sequence subscription engine for flowcore
// 有限序列源的订阅实现：需求跟踪、蹦床式派发与逐次取消检查
package flowcore

import (
	"sync"
	"sync/atomic"
)

// sequenceSubscription 有限序列源与单个订阅者之间的活动链路。
// 游标、未完成需求与派发状态由同一把锁保护。派发期间发生的重入Request
// 只累加需求后立即返回，由活动的派发循环继续消化，避免无界递归。
// 序列耗尽的判定不消耗需求，因此最后一个值投递完即可送出完成信号。
type sequenceSubscription[T, E any] struct {
	mu         sync.Mutex
	subscriber Subscriber[T, E]
	values     []T
	index      int
	completion Completion[E]
	requested  Demand
	delivering bool
	terminated bool
	cancelled  int32
}

func newSequenceSubscription[T, E any](subscriber Subscriber[T, E], values []T, completion Completion[E]) *sequenceSubscription[T, E] {
	return &sequenceSubscription[T, E]{
		subscriber: subscriber,
		values:     values,
		completion: completion,
	}
}

// Request 追加需求；若当前没有活动的派发循环则启动一个
func (s *sequenceSubscription[T, E]) Request(demand Demand) {
	if demand.IsNone() || s.IsCancelled() {
		return
	}

	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}

	s.requested = s.requested.Add(demand)
	if s.delivering {
		// 重入或并发请求：新增需求由活动的派发循环消化
		s.mu.Unlock()
		return
	}

	s.delivering = true
	s.drainLocked()
}

// Cancel 取消订阅，幂等。未来的投递立即停止，在途投递不追回。
func (s *sequenceSubscription[T, E]) Cancel() {
	if !atomic.CompareAndSwapInt32(&s.cancelled, 0, 1) {
		return
	}

	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
}

// IsCancelled 检查是否已取消
func (s *sequenceSubscription[T, E]) IsCancelled() bool {
	return atomic.LoadInt32(&s.cancelled) == 1
}

// drainLocked 派发循环。进入时持锁，返回前释放锁。
// 投递回调在锁外执行；每次投递前都重新检查终止状态。
func (s *sequenceSubscription[T, E]) drainLocked() {
	for {
		if s.terminated || s.IsCancelled() {
			s.terminated = true
			s.delivering = false
			s.mu.Unlock()
			return
		}

		if s.index >= len(s.values) {
			// 序列耗尽：投递终止信号并进入终止态，完成不消耗需求
			s.terminated = true
			s.delivering = false
			completion := s.completion
			s.mu.Unlock()

			if !s.IsCancelled() {
				s.subscriber.OnComplete(completion)
			}
			return
		}

		if s.requested.IsNone() {
			s.delivering = false
			s.mu.Unlock()
			return
		}

		value := s.values[s.index]
		s.index++
		s.requested = s.requested.minusOne()
		s.mu.Unlock()

		// 投递前最后一次取消检查：取消后取出的值直接丢弃
		if s.IsCancelled() {
			s.mu.Lock()
			s.terminated = true
			s.delivering = false
			s.mu.Unlock()
			return
		}

		extra := s.subscriber.OnNext(value)

		s.mu.Lock()
		s.requested = s.requested.Add(extra)
	}
}
