// Sink subscriber for flowcore
// 回调式订阅者：以无限需求消费整条流，并向持有者暴露取消能力
package flowcore

import "sync"

// Sink 回调式订阅者。订阅建立时请求无限需求，
// 值与终止信号分别交给两个回调，任一回调可为nil。
type Sink[T, E any] struct {
	mu                sync.Mutex
	subscription      Subscription
	receiveValue      func(T)
	receiveCompletion func(Completion[E])
}

// NewSink 创建回调式订阅者
func NewSink[T, E any](receiveValue func(T), receiveCompletion func(Completion[E])) *Sink[T, E] {
	return &Sink[T, E]{
		receiveValue:      receiveValue,
		receiveCompletion: receiveCompletion,
	}
}

// OnSubscribe 保存订阅并请求无限需求；重复挂接时取消后来的订阅
func (s *Sink[T, E]) OnSubscribe(subscription Subscription) {
	s.mu.Lock()
	if s.subscription != nil {
		s.mu.Unlock()
		subscription.Cancel()
		return
	}
	s.subscription = subscription
	s.mu.Unlock()

	subscription.Request(DemandUnlimited())
}

func (s *Sink[T, E]) OnNext(value T) Demand {
	if s.receiveValue != nil {
		s.receiveValue(value)
	}
	return DemandNone()
}

func (s *Sink[T, E]) OnComplete(completion Completion[E]) {
	if s.receiveCompletion != nil {
		s.receiveCompletion(completion)
	}
}

// Cancel 取消底层订阅；订阅尚未建立时是no-op
func (s *Sink[T, E]) Cancel() {
	s.mu.Lock()
	subscription := s.subscription
	s.mu.Unlock()

	if subscription != nil {
		subscription.Cancel()
	}
}

// SubscribeWithCallbacks 使用回调函数订阅Publisher，
// 返回类型擦除的取消句柄，持有者无法再请求需求
func SubscribeWithCallbacks[T, E any](publisher Publisher[T, E], receiveValue func(T), receiveCompletion func(Completion[E])) *AnyCancellable {
	sink := NewSink(receiveValue, receiveCompletion)
	publisher.Subscribe(sink)
	return NewAnyCancellable(sink)
}
