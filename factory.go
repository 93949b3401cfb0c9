// Source publishers for flowcore
// 源Publisher工厂：Just、FromSlice、Range、Empty、Fail与失败类型提升
package flowcore

// sequencePublisher 有限序列源。
// 每个订阅者获得独立的游标，因此同一个Publisher可以被多次订阅。
type sequencePublisher[T, E any] struct {
	values     []T
	completion Completion[E]
}

// Subscribe 为订阅者创建独立的订阅并同步交付
func (p *sequencePublisher[T, E]) Subscribe(subscriber Subscriber[T, E]) {
	subscription := newSequenceSubscription(subscriber, p.values, p.completion)
	subscriber.OnSubscribe(subscription)
}

// Just 从给定的值创建Publisher，发完后正常完成
func Just[T any](values ...T) Publisher[T, Never] {
	return FromSlice(values)
}

// FromSlice 从切片创建Publisher，按序发射后正常完成
func FromSlice[T any](values []T) Publisher[T, Never] {
	return &sequencePublisher[T, Never]{
		values:     values,
		completion: Finished[Never](),
	}
}

// Range 发射[start, start+count)范围内的整数序列
func Range(start, count int) Publisher[int, Never] {
	values := make([]int, 0, count)
	for i := 0; i < count; i++ {
		values = append(values, start+i)
	}
	return &sequencePublisher[int, Never]{
		values:     values,
		completion: Finished[Never](),
	}
}

// Empty 不发射任何值，收到首个正需求后立即正常完成
func Empty[T, E any]() Publisher[T, E] {
	return &sequencePublisher[T, E]{
		completion: Finished[E](),
	}
}

// Fail 不发射任何值，收到首个正需求后立即以给定失败值终止
func Fail[T, E any](failure E) Publisher[T, E] {
	return &sequencePublisher[T, E]{
		completion: Failed[E](failure),
	}
}

// ============================================================================
// 失败类型提升
// ============================================================================

// SetFailureType 把永不失败的Publisher提升为任意失败类型，值原样转发。
// 上游不可能失败，因此终止信号总是正常完成。
func SetFailureType[T, E any](upstream Publisher[T, Never]) Publisher[T, E] {
	return &setFailureTypePublisher[T, E]{upstream: upstream}
}

type setFailureTypePublisher[T, E any] struct {
	upstream Publisher[T, Never]
}

func (p *setFailureTypePublisher[T, E]) Subscribe(downstream Subscriber[T, E]) {
	p.upstream.Subscribe(&setFailureTypeSubscriber[T, E]{downstream: downstream})
}

// setFailureTypeSubscriber 需求与值均为恒等透传，订阅直接共享
type setFailureTypeSubscriber[T, E any] struct {
	downstream Subscriber[T, E]
}

func (s *setFailureTypeSubscriber[T, E]) OnSubscribe(subscription Subscription) {
	s.downstream.OnSubscribe(subscription)
}

func (s *setFailureTypeSubscriber[T, E]) OnNext(value T) Demand {
	return s.downstream.OnNext(value)
}

func (s *setFailureTypeSubscriber[T, E]) OnComplete(Completion[Never]) {
	s.downstream.OnComplete(Finished[E]())
}
