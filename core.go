// Core contracts for flowcore
// 核心契约：Publisher、Subscriber、Subscription、Cancellable与终止信号
package flowcore

import "errors"

// ============================================================================
// 错误定义
// ============================================================================

// ErrInvalidDemand 构造负数需求时的协议错误，属于编程错误，立即失败
var ErrInvalidDemand = errors.New("flowcore: demand must not be negative")

// ErrSendAfterCompletion Subject终止后继续Send或Complete时返回给调用者的错误
var ErrSendAfterCompletion = errors.New("flowcore: send after completion")

// ============================================================================
// 角色接口
// ============================================================================

// Cancellable 提前终止一条活动流的能力，Cancel必须幂等
type Cancellable interface {
	Cancel()
}

// Subscription 一个生产者与一个消费者之间的活动链路。
// 需求沿Subscription向上游流动，值与终止信号向下游流动。
// 订阅由接收它的那一个Subscriber独占，进入终止态后不会再激活。
type Subscription interface {
	// Request 追加未完成需求；同步调用，可能在返回前直接触发
	// 零或多次OnNext以及一次终止信号。对终止态订阅调用是no-op。
	Request(demand Demand)

	// Cancel 将订阅置为终止态；同步且幂等。
	// 返回后保证不再有OnNext或终止信号投递。
	Cancel()

	// IsCancelled 检查是否已取消
	IsCancelled() bool
}

// Subscriber 值的消费者，按T（值类型）和E（失败类型）参数化
type Subscriber[T, E any] interface {
	// OnSubscribe 订阅建立时调用，先于任何OnNext
	OnSubscribe(subscription Subscription)

	// OnNext 接收一个值；返回值是追加到未完成需求上的增量需求
	OnNext(value T) Demand

	// OnComplete 接收终止信号，每个订阅至多调用一次，取消后不再调用
	OnComplete(completion Completion[E])
}

// Publisher 值的提供者：接受一个Subscriber并为其创建Subscription。
// Subscribe必须在返回前同步调用subscriber.OnSubscribe。
type Publisher[T, E any] interface {
	Subscribe(subscriber Subscriber[T, E])
}

// ============================================================================
// 终止信号
// ============================================================================

// Never 永不失败的失败类型，用作不会产生失败的Publisher的E参数
type Never struct{}

func (Never) Error() string {
	return "flowcore: never fails"
}

// Completion 终止信号：正常完成，或携带失败值的失败终止
type Completion[E any] struct {
	failed  bool
	failure E
}

// Finished 正常完成信号
func Finished[E any]() Completion[E] {
	return Completion[E]{}
}

// Failed 携带失败值的终止信号
func Failed[E any](failure E) Completion[E] {
	return Completion[E]{failed: true, failure: failure}
}

// IsFailure 是否为失败终止
func (c Completion[E]) IsFailure() bool {
	return c.failed
}

// Failure 返回失败值；正常完成时第二个返回值为false
func (c Completion[E]) Failure() (E, bool) {
	return c.failure, c.failed
}
