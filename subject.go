// Subject implementations for flowcore
// Subject实现：可命令式发布并按订阅者各自需求扇出的广播Publisher，
// 包含不保留状态的PassthroughSubject与保留最近值的CurrentValueSubject
package flowcore

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// 扇出条目与订阅句柄
// ============================================================================

// subjectEntry 一个已挂接的订阅者及其未完成需求。
// demand与owedValue由broadcaster的锁保护，cancelled为原子标记。
type subjectEntry[T, E any] struct {
	subscriber Subscriber[T, E]
	demand     Demand
	owedValue  bool
	cancelled  int32
}

func (e *subjectEntry[T, E]) isCancelled() bool {
	return atomic.LoadInt32(&e.cancelled) == 1
}

func (e *subjectEntry[T, E]) markCancelled() bool {
	return atomic.CompareAndSwapInt32(&e.cancelled, 0, 1)
}

// subjectSubscription 发给单个订阅者的订阅句柄，取消只摘除自己的条目
type subjectSubscription[T, E any] struct {
	b     *broadcaster[T, E]
	entry *subjectEntry[T, E]
}

func (ss *subjectSubscription[T, E]) Request(demand Demand) {
	if demand.IsNone() || ss.IsCancelled() {
		return
	}
	ss.b.addDemand(ss.entry, demand)
}

func (ss *subjectSubscription[T, E]) Cancel() {
	if ss.entry.markCancelled() {
		ss.b.detach(ss.entry)
	}
}

func (ss *subjectSubscription[T, E]) IsCancelled() bool {
	return ss.entry.isCancelled()
}

// inertSubscription 已终止的Subject发给迟到订阅者的空订阅
type inertSubscription struct{}

func (inertSubscription) Request(Demand) {}

func (inertSubscription) Cancel() {}

func (inertSubscription) IsCancelled() bool {
	return true
}

// ============================================================================
// broadcaster 扇出核心
// ============================================================================

// broadcaster Subject的公共扇出状态：条目列表、终止信号与可选的上游链接。
// 派发前先在锁内做快照与需求记账，锁外执行回调，
// 因此派发期间的挂接与摘除不会影响本轮迭代。
type broadcaster[T, E any] struct {
	mu           sync.Mutex
	entries      []*subjectEntry[T, E]
	completed    bool
	completion   Completion[E]
	upstream     Subscription
	everAttached bool
	retains      bool
	hasValue     bool
	current      T
}

// Subscribe 挂接订阅者，初始需求为零。已终止的Subject立即投递终止信号。
// 首个订阅者挂接时向上游（如已链接）请求一次无限需求。
func (b *broadcaster[T, E]) Subscribe(subscriber Subscriber[T, E]) {
	b.mu.Lock()
	if b.completed {
		completion := b.completion
		b.mu.Unlock()
		subscriber.OnSubscribe(inertSubscription{})
		subscriber.OnComplete(completion)
		return
	}

	entry := &subjectEntry[T, E]{
		subscriber: subscriber,
		owedValue:  b.retains && b.hasValue,
	}
	b.entries = append(b.entries, entry)
	first := !b.everAttached
	b.everAttached = true
	upstream := b.upstream
	b.mu.Unlock()

	subscriber.OnSubscribe(&subjectSubscription[T, E]{b: b, entry: entry})

	if first && upstream != nil {
		upstream.Request(DemandUnlimited())
	}
}

// Send 把值投递给每个未完成需求大于等于1的订阅者，并扣减其需求。
// 需求为零的订阅者错过该值；保留变体把它转为欠投的最近值。
// Subject已终止时返回ErrSendAfterCompletion。
func (b *broadcaster[T, E]) Send(value T) error {
	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		return ErrSendAfterCompletion
	}

	if b.retains {
		b.current = value
		b.hasValue = true
	}

	targets := make([]*subjectEntry[T, E], 0, len(b.entries))
	for _, entry := range b.entries {
		if entry.isCancelled() {
			continue
		}
		if entry.demand.IsNone() {
			if b.retains {
				entry.owedValue = true
			}
			continue
		}
		entry.demand = entry.demand.minusOne()
		entry.owedValue = false
		targets = append(targets, entry)
	}
	b.mu.Unlock()

	for _, entry := range targets {
		if entry.isCancelled() {
			// 本轮派发中被摘除，跳过
			continue
		}
		extra := entry.subscriber.OnNext(value)
		if !extra.IsNone() {
			b.addDemand(entry, extra)
		}
	}
	return nil
}

// Complete 把终止信号恰好一次地投递给每个订阅者并终止Subject。
// 再次调用返回ErrSendAfterCompletion。
func (b *broadcaster[T, E]) Complete(completion Completion[E]) error {
	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		return ErrSendAfterCompletion
	}
	b.completed = true
	b.completion = completion
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()

	for _, entry := range entries {
		if !entry.markCancelled() {
			continue
		}
		entry.subscriber.OnComplete(completion)
	}
	return nil
}

// HasSubscribers 是否仍有挂接的订阅者
func (b *broadcaster[T, E]) HasSubscribers() bool {
	return b.SubscriberCount() > 0
}

// SubscriberCount 当前挂接的订阅者数量
func (b *broadcaster[T, E]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, entry := range b.entries {
		if !entry.isCancelled() {
			count++
		}
	}
	return count
}

// addDemand 追加某个条目的需求；保留变体在需求首次转正时补投欠下的最近值
func (b *broadcaster[T, E]) addDemand(entry *subjectEntry[T, E], demand Demand) {
	b.mu.Lock()
	if b.completed || entry.isCancelled() {
		b.mu.Unlock()
		return
	}

	entry.demand = entry.demand.Add(demand)

	var owed T
	deliver := false
	if entry.owedValue && b.hasValue && !entry.demand.IsNone() {
		entry.owedValue = false
		entry.demand = entry.demand.minusOne()
		owed = b.current
		deliver = true
	}
	b.mu.Unlock()

	if deliver {
		extra := entry.subscriber.OnNext(owed)
		if !extra.IsNone() {
			b.addDemand(entry, extra)
		}
	}
}

// detach 摘除一个条目，不影响其他订阅者与上游订阅
func (b *broadcaster[T, E]) detach(entry *subjectEntry[T, E]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if e == entry {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

// ============================================================================
// 作为Subscriber链接上游
// ============================================================================

// OnSubscribe 记录上游订阅。已有订阅者挂接时立即请求无限需求，
// 否则推迟到首个订阅者挂接；不会按订阅者重复请求。
func (b *broadcaster[T, E]) OnSubscribe(subscription Subscription) {
	b.mu.Lock()
	b.upstream = subscription
	request := b.everAttached
	b.mu.Unlock()

	if request {
		subscription.Request(DemandUnlimited())
	}
}

// OnNext 上游值进入扇出；Subject以无限需求消费上游，不返还增量
func (b *broadcaster[T, E]) OnNext(value T) Demand {
	_ = b.Send(value)
	return DemandNone()
}

// OnComplete 上游终止进入扇出；Subject已终止时迟到的上游信号被忽略
func (b *broadcaster[T, E]) OnComplete(completion Completion[E]) {
	_ = b.Complete(completion)
}

// ============================================================================
// PassthroughSubject 不保留状态的广播Subject
// ============================================================================

// PassthroughSubject 把Send的值实时扇出给当前有需求的订阅者，不做缓冲：
// 需求为零的订阅者直接错过该值
type PassthroughSubject[T, E any] struct {
	broadcaster[T, E]
}

// NewPassthroughSubject 创建不保留状态的Subject
func NewPassthroughSubject[T, E any]() *PassthroughSubject[T, E] {
	return &PassthroughSubject[T, E]{}
}

// ============================================================================
// CurrentValueSubject 保留最近值的广播Subject
// ============================================================================

// CurrentValueSubject 在扇出之外保留最近发布的值：新挂接的订阅者以及
// 因需求为零而错过值的订阅者，会在需求转正时收到当前的最近值
type CurrentValueSubject[T, E any] struct {
	broadcaster[T, E]
}

// NewCurrentValueSubject 以初始值创建保留状态的Subject
func NewCurrentValueSubject[T, E any](initial T) *CurrentValueSubject[T, E] {
	s := &CurrentValueSubject[T, E]{}
	s.retains = true
	s.hasValue = true
	s.current = initial
	return s
}

// Value 当前保留的最近值
func (s *CurrentValueSubject[T, E]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
