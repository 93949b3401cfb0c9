// Operator implementations for flowcore
// 操作符实现：同时作为上游的Subscriber与下游的Publisher，
// 在转发值与终止信号的同时完成需求换算与取消传播
package flowcore

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// 操作符公共结构
// ============================================================================

// operatorSubscription 交给下游的门面订阅：把下游的Request换算后转发给
// 上游，并保证Cancel只向上游传播一次。
type operatorSubscription struct {
	upstream  Subscription
	clamp     func(Demand) Demand
	cancelled int32
}

func newOperatorSubscription(upstream Subscription, clamp func(Demand) Demand) *operatorSubscription {
	return &operatorSubscription{upstream: upstream, clamp: clamp}
}

// Request 换算需求并转发给上游；取消后是no-op
func (os *operatorSubscription) Request(demand Demand) {
	if os.IsCancelled() {
		return
	}
	if os.clamp != nil {
		demand = os.clamp(demand)
	}
	if demand.IsNone() {
		return
	}
	os.upstream.Request(demand)
}

// Cancel 取消下游链路并恰好一次地向上游传播取消
func (os *operatorSubscription) Cancel() {
	if atomic.CompareAndSwapInt32(&os.cancelled, 0, 1) {
		os.upstream.Cancel()
	}
}

// IsCancelled 检查是否已取消
func (os *operatorSubscription) IsCancelled() bool {
	return atomic.LoadInt32(&os.cancelled) == 1
}

// operatorState 操作符订阅者的公共状态：门面订阅与终止标记
type operatorState struct {
	facade *operatorSubscription
	done   int32
}

// arm 基于上游订阅生成门面订阅
func (st *operatorState) arm(upstream Subscription, clamp func(Demand) Demand) *operatorSubscription {
	st.facade = newOperatorSubscription(upstream, clamp)
	return st.facade
}

// finish 尝试进入终止态；返回false表示链路已终止，
// 迟到的上游信号应被忽略（下游取消后到达的完成即属此类）
func (st *operatorState) finish() bool {
	if st.facade != nil && st.facade.IsCancelled() {
		return false
	}
	return atomic.CompareAndSwapInt32(&st.done, 0, 1)
}

// active 是否仍可向下游投递
func (st *operatorState) active() bool {
	if atomic.LoadInt32(&st.done) == 1 {
		return false
	}
	return st.facade == nil || !st.facade.IsCancelled()
}

// ============================================================================
// Map 一对一转换
// ============================================================================

// Map 对每个值应用转换函数后转发，需求原样透传
func Map[T, U, E any](upstream Publisher[T, E], transform func(T) U) Publisher[U, E] {
	return &mapPublisher[T, U, E]{upstream: upstream, transform: transform}
}

type mapPublisher[T, U, E any] struct {
	upstream  Publisher[T, E]
	transform func(T) U
}

func (p *mapPublisher[T, U, E]) Subscribe(downstream Subscriber[U, E]) {
	p.upstream.Subscribe(&mapSubscriber[T, U, E]{downstream: downstream, transform: p.transform})
}

type mapSubscriber[T, U, E any] struct {
	operatorState
	downstream Subscriber[U, E]
	transform  func(T) U
}

func (ms *mapSubscriber[T, U, E]) OnSubscribe(subscription Subscription) {
	ms.downstream.OnSubscribe(ms.arm(subscription, nil))
}

func (ms *mapSubscriber[T, U, E]) OnNext(value T) Demand {
	if !ms.active() {
		return DemandNone()
	}
	// 下游返还的增量需求原样返还给上游
	return ms.downstream.OnNext(ms.transform(value))
}

func (ms *mapSubscriber[T, U, E]) OnComplete(completion Completion[E]) {
	if ms.finish() {
		ms.downstream.OnComplete(completion)
	}
}

// ============================================================================
// TryMap 可失败的一对一转换
// ============================================================================

// TryMap 对每个值应用可失败的转换函数；转换出错时取消上游，
// 并把错误作为失败终止投递给下游，之后不再转发任何值
func TryMap[T, U any](upstream Publisher[T, error], transform func(T) (U, error)) Publisher[U, error] {
	return &tryMapPublisher[T, U]{upstream: upstream, transform: transform}
}

type tryMapPublisher[T, U any] struct {
	upstream  Publisher[T, error]
	transform func(T) (U, error)
}

func (p *tryMapPublisher[T, U]) Subscribe(downstream Subscriber[U, error]) {
	p.upstream.Subscribe(&tryMapSubscriber[T, U]{downstream: downstream, transform: p.transform})
}

type tryMapSubscriber[T, U any] struct {
	operatorState
	downstream Subscriber[U, error]
	transform  func(T) (U, error)
}

func (ts *tryMapSubscriber[T, U]) OnSubscribe(subscription Subscription) {
	ts.downstream.OnSubscribe(ts.arm(subscription, nil))
}

func (ts *tryMapSubscriber[T, U]) OnNext(value T) Demand {
	if !ts.active() {
		return DemandNone()
	}

	result, err := ts.transform(value)
	if err != nil {
		if ts.finish() {
			ts.facade.Cancel()
			ts.downstream.OnComplete(Failed[error](err))
		}
		return DemandNone()
	}
	return ts.downstream.OnNext(result)
}

func (ts *tryMapSubscriber[T, U]) OnComplete(completion Completion[error]) {
	if ts.finish() {
		ts.downstream.OnComplete(completion)
	}
}

// ============================================================================
// Filter 过滤
// ============================================================================

// Filter 只转发谓词为真的值。被丢弃的值向上游返还一个单位的需求，
// 保证下游需求最终能被满足，且绝不向下游超量投递。
func Filter[T, E any](upstream Publisher[T, E], predicate func(T) bool) Publisher[T, E] {
	return &filterPublisher[T, E]{upstream: upstream, predicate: predicate}
}

type filterPublisher[T, E any] struct {
	upstream  Publisher[T, E]
	predicate func(T) bool
}

func (p *filterPublisher[T, E]) Subscribe(downstream Subscriber[T, E]) {
	p.upstream.Subscribe(&filterSubscriber[T, E]{downstream: downstream, predicate: p.predicate})
}

type filterSubscriber[T, E any] struct {
	operatorState
	downstream Subscriber[T, E]
	predicate  func(T) bool
}

func (fs *filterSubscriber[T, E]) OnSubscribe(subscription Subscription) {
	fs.downstream.OnSubscribe(fs.arm(subscription, nil))
}

func (fs *filterSubscriber[T, E]) OnNext(value T) Demand {
	if !fs.active() {
		return DemandNone()
	}
	if !fs.predicate(value) {
		// 丢弃：向上游补一个单位，换取一个替代值
		return DemandOf(1)
	}
	return fs.downstream.OnNext(value)
}

func (fs *filterSubscriber[T, E]) OnComplete(completion Completion[E]) {
	if fs.finish() {
		fs.downstream.OnComplete(completion)
	}
}

// ============================================================================
// MapError 失败类型转换
// ============================================================================

// MapError 值原样转发，失败终止的失败值经转换函数映射为新类型
func MapError[T, E1, E2 any](upstream Publisher[T, E1], transform func(E1) E2) Publisher[T, E2] {
	return &mapErrorPublisher[T, E1, E2]{upstream: upstream, transform: transform}
}

type mapErrorPublisher[T, E1, E2 any] struct {
	upstream  Publisher[T, E1]
	transform func(E1) E2
}

func (p *mapErrorPublisher[T, E1, E2]) Subscribe(downstream Subscriber[T, E2]) {
	p.upstream.Subscribe(&mapErrorSubscriber[T, E1, E2]{downstream: downstream, transform: p.transform})
}

type mapErrorSubscriber[T, E1, E2 any] struct {
	operatorState
	downstream Subscriber[T, E2]
	transform  func(E1) E2
}

func (ms *mapErrorSubscriber[T, E1, E2]) OnSubscribe(subscription Subscription) {
	ms.downstream.OnSubscribe(ms.arm(subscription, nil))
}

func (ms *mapErrorSubscriber[T, E1, E2]) OnNext(value T) Demand {
	if !ms.active() {
		return DemandNone()
	}
	return ms.downstream.OnNext(value)
}

func (ms *mapErrorSubscriber[T, E1, E2]) OnComplete(completion Completion[E1]) {
	if !ms.finish() {
		return
	}
	if failure, ok := completion.Failure(); ok {
		ms.downstream.OnComplete(Failed[E2](ms.transform(failure)))
		return
	}
	ms.downstream.OnComplete(Finished[E2]())
}

// ============================================================================
// Scan 滚动累积
// ============================================================================

// Scan 对每个上游值应用累积函数并转发累积结果，需求计量与Map相同
func Scan[T, U, E any](upstream Publisher[T, E], initial U, accumulate func(U, T) U) Publisher[U, E] {
	return &scanPublisher[T, U, E]{upstream: upstream, initial: initial, accumulate: accumulate}
}

type scanPublisher[T, U, E any] struct {
	upstream   Publisher[T, E]
	initial    U
	accumulate func(U, T) U
}

func (p *scanPublisher[T, U, E]) Subscribe(downstream Subscriber[U, E]) {
	p.upstream.Subscribe(&scanSubscriber[T, U, E]{
		downstream: downstream,
		state:      p.initial,
		accumulate: p.accumulate,
	})
}

type scanSubscriber[T, U, E any] struct {
	operatorState
	downstream Subscriber[U, E]
	state      U
	accumulate func(U, T) U
}

func (ss *scanSubscriber[T, U, E]) OnSubscribe(subscription Subscription) {
	ss.downstream.OnSubscribe(ss.arm(subscription, nil))
}

func (ss *scanSubscriber[T, U, E]) OnNext(value T) Demand {
	if !ss.active() {
		return DemandNone()
	}
	ss.state = ss.accumulate(ss.state, value)
	return ss.downstream.OnNext(ss.state)
}

func (ss *scanSubscriber[T, U, E]) OnComplete(completion Completion[E]) {
	if ss.finish() {
		ss.downstream.OnComplete(completion)
	}
}

// ============================================================================
// Take 截取前缀
// ============================================================================

// Take 只转发前count个值，随后向下游投递正常完成并取消上游。
// 向上游请求的需求被钳制在剩余所需数量以内。
func Take[T, E any](upstream Publisher[T, E], count int64) Publisher[T, E] {
	if count <= 0 {
		return Empty[T, E]()
	}
	return &takePublisher[T, E]{upstream: upstream, count: count}
}

type takePublisher[T, E any] struct {
	upstream Publisher[T, E]
	count    int64
}

func (p *takePublisher[T, E]) Subscribe(downstream Subscriber[T, E]) {
	p.upstream.Subscribe(&takeSubscriber[T, E]{downstream: downstream, remaining: p.count})
}

type takeSubscriber[T, E any] struct {
	operatorState
	downstream Subscriber[T, E]
	mu         sync.Mutex
	remaining  int64
}

func (ts *takeSubscriber[T, E]) OnSubscribe(subscription Subscription) {
	ts.downstream.OnSubscribe(ts.arm(subscription, ts.clampToRemaining))
}

// clampToRemaining 把需求钳制在剩余所需数量以内
func (ts *takeSubscriber[T, E]) clampToRemaining(demand Demand) Demand {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.remaining <= 0 {
		return DemandNone()
	}
	if demand.IsUnlimited() || demand.Count() > ts.remaining {
		return DemandOf(ts.remaining)
	}
	return demand
}

func (ts *takeSubscriber[T, E]) OnNext(value T) Demand {
	if !ts.active() {
		return DemandNone()
	}

	ts.mu.Lock()
	if ts.remaining <= 0 {
		ts.mu.Unlock()
		return DemandNone()
	}
	ts.remaining--
	last := ts.remaining == 0
	ts.mu.Unlock()

	extra := ts.downstream.OnNext(value)

	if last {
		if ts.finish() {
			ts.facade.Cancel()
			ts.downstream.OnComplete(Finished[E]())
		}
		return DemandNone()
	}
	return ts.clampToRemaining(extra)
}

func (ts *takeSubscriber[T, E]) OnComplete(completion Completion[E]) {
	if ts.finish() {
		ts.downstream.OnComplete(completion)
	}
}
