// Operator tests for flowcore
// 操作符测试：转换、过滤、失败映射、需求换算与取消传播
package flowcore

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

// ============================================================================
// 测试辅助：可观测的上游桩
// ============================================================================

// countingSubscription 记录请求与取消次数的订阅桩
type countingSubscription struct {
	requests []Demand
	cancels  int32
}

func (cs *countingSubscription) Request(demand Demand) {
	cs.requests = append(cs.requests, demand)
}

func (cs *countingSubscription) Cancel() {
	atomic.AddInt32(&cs.cancels, 1)
}

func (cs *countingSubscription) IsCancelled() bool {
	return atomic.LoadInt32(&cs.cancels) > 0
}

// stubPublisher 由测试手工驱动的上游，用于精确断言操作符的需求换算
type stubPublisher[T any] struct {
	subscriber   Subscriber[T, error]
	subscription *countingSubscription
}

func (sp *stubPublisher[T]) Subscribe(subscriber Subscriber[T, error]) {
	sp.subscriber = subscriber
	sp.subscription = &countingSubscription{}
	subscriber.OnSubscribe(sp.subscription)
}

// ============================================================================
// Map
// ============================================================================

func TestMapClassifiesSequence(t *testing.T) {
	// 一对一转换：9个值、无限需求，恰好9个转换结果加一次正常完成
	classify := func(v int) string {
		switch {
		case v < 1:
			return "none"
		case v == 1:
			return "one"
		case v == 2:
			return "couple"
		case v == 3:
			return "few"
		case v <= 8:
			return "some"
		default:
			return "many"
		}
	}

	subscriber := &recordingSubscriber[string, Never]{initial: DemandUnlimited()}
	Map(Just(1, 2, 3, 4, 5, 6, 7, 8, 9), classify).Subscribe(subscriber)

	want := []string{"one", "couple", "few", "some", "some", "some", "some", "some", "many"}
	assertValues(t, subscriber.values, want)
	if len(subscriber.completions) != 1 || subscriber.completions[0].IsFailure() {
		t.Errorf("期望恰好一次正常完成，实际 %v", subscriber.completions)
	}
}

func TestMapPassesDemandThrough(t *testing.T) {
	upstream := &stubPublisher[int]{}
	subscriber := &recordingSubscriber[int, error]{initial: DemandOf(3), perValue: DemandOf(2)}
	Map[int, int, error](upstream, func(v int) int { return v * 10 }).Subscribe(subscriber)

	if len(upstream.subscription.requests) != 1 || upstream.subscription.requests[0] != DemandOf(3) {
		t.Fatalf("期望需求3原样透传给上游，实际 %v", upstream.subscription.requests)
	}

	// 下游返还的增量需求也应原样透传
	extra := upstream.subscriber.OnNext(1)
	if extra != DemandOf(2) {
		t.Errorf("期望返还增量需求2，实际 %v", extra)
	}
	assertValues(t, subscriber.values, []int{10})
}

// ============================================================================
// Filter
// ============================================================================

func TestFilterEvenWithBoundedDemand(t *testing.T) {
	// [1..10]取偶数，需求恰好3：投递[2,4,6]后暂停，续订后继续
	subscriber := &recordingSubscriber[int, Never]{initial: DemandOf(3)}
	Filter(Range(1, 10), func(v int) bool { return v%2 == 0 }).Subscribe(subscriber)

	assertValues(t, subscriber.values, []int{2, 4, 6})
	if len(subscriber.completions) != 0 {
		t.Error("需求耗尽时不应有终止信号")
	}

	subscriber.subscription.Request(DemandOf(2))
	assertValues(t, subscriber.values, []int{2, 4, 6, 8, 10})
	if len(subscriber.completions) != 1 {
		t.Errorf("期望恰好一次终止信号，实际 %d 次", len(subscriber.completions))
	}
}

func TestFilterReplacesDroppedDemand(t *testing.T) {
	upstream := &stubPublisher[int]{}
	subscriber := &recordingSubscriber[int, error]{initial: DemandOf(1)}
	Filter[int, error](upstream, func(v int) bool { return v%2 == 0 }).Subscribe(subscriber)

	// 丢弃的值向上游补一个单位
	if extra := upstream.subscriber.OnNext(1); extra != DemandOf(1) {
		t.Errorf("期望丢弃后返还需求1，实际 %v", extra)
	}
	// 转发的值返还下游的增量（这里为零）
	if extra := upstream.subscriber.OnNext(2); !extra.IsNone() {
		t.Errorf("期望转发后返还零需求，实际 %v", extra)
	}
	assertValues(t, subscriber.values, []int{2})
}

// ============================================================================
// TryMap
// ============================================================================

func TestTryMapConvertsFailureAndCancelsUpstream(t *testing.T) {
	cause := errors.New("bad element")
	transform := func(v int) (string, error) {
		if v == 3 {
			return "", cause
		}
		return fmt.Sprintf("#%d", v), nil
	}

	subscriber := &recordingSubscriber[string, error]{initial: DemandUnlimited()}
	TryMap(SetFailureType[int, error](Just(1, 2, 3, 4, 5)), transform).Subscribe(subscriber)

	assertValues(t, subscriber.values, []string{"#1", "#2"})
	if len(subscriber.completions) != 1 {
		t.Fatalf("期望恰好一次终止信号，实际 %d 次", len(subscriber.completions))
	}
	failure, ok := subscriber.completions[0].Failure()
	if !ok || !errors.Is(failure, cause) {
		t.Errorf("期望失败终止携带 %v，实际 %v", cause, subscriber.completions[0])
	}
}

func TestTryMapStopsForwardingAfterFailure(t *testing.T) {
	upstream := &stubPublisher[int]{}
	subscriber := &recordingSubscriber[int, error]{initial: DemandUnlimited()}
	TryMap[int, int](upstream, func(v int) (int, error) {
		if v < 0 {
			return 0, errors.New("negative")
		}
		return v, nil
	}).Subscribe(subscriber)

	upstream.subscriber.OnNext(1)
	upstream.subscriber.OnNext(-1)
	// 失败后迟到的值与完成都应被忽略
	upstream.subscriber.OnNext(2)
	upstream.subscriber.OnComplete(Finished[error]())

	assertValues(t, subscriber.values, []int{1})
	if len(subscriber.completions) != 1 || !subscriber.completions[0].IsFailure() {
		t.Fatalf("期望恰好一次失败终止，实际 %v", subscriber.completions)
	}
	if got := atomic.LoadInt32(&upstream.subscription.cancels); got != 1 {
		t.Errorf("期望上游被取消恰好一次，实际 %d 次", got)
	}
}

// ============================================================================
// MapError
// ============================================================================

type codedFailure struct {
	code int
}

func TestMapErrorConvertsFailureType(t *testing.T) {
	subscriber := &recordingSubscriber[string, codedFailure]{initial: DemandOf(1)}
	MapError(Fail[string, error](errors.New("boom")), func(error) codedFailure {
		return codedFailure{code: 502}
	}).Subscribe(subscriber)

	if len(subscriber.completions) != 1 {
		t.Fatalf("期望恰好一次终止信号，实际 %d 次", len(subscriber.completions))
	}
	failure, ok := subscriber.completions[0].Failure()
	if !ok || failure.code != 502 {
		t.Errorf("期望失败码502，实际 %v", subscriber.completions[0])
	}
}

func TestMapErrorRelaysFinished(t *testing.T) {
	subscriber := &recordingSubscriber[int, codedFailure]{initial: DemandUnlimited()}
	MapError(SetFailureType[int, error](Just(1, 2)), func(error) codedFailure {
		return codedFailure{code: 500}
	}).Subscribe(subscriber)

	assertValues(t, subscriber.values, []int{1, 2})
	if len(subscriber.completions) != 1 || subscriber.completions[0].IsFailure() {
		t.Errorf("期望正常完成原样转发，实际 %v", subscriber.completions)
	}
}

// ============================================================================
// Scan
// ============================================================================

func TestScanEmitsRunningTotals(t *testing.T) {
	subscriber := &recordingSubscriber[int, Never]{initial: DemandUnlimited()}
	Scan(Just(1, 2, 3, 4), 0, func(acc, v int) int { return acc + v }).Subscribe(subscriber)

	assertValues(t, subscriber.values, []int{1, 3, 6, 10})
	if len(subscriber.completions) != 1 {
		t.Errorf("期望恰好一次终止信号，实际 %d 次", len(subscriber.completions))
	}
}

// ============================================================================
// Take
// ============================================================================

func TestTakeDeliversPrefixThenFinishes(t *testing.T) {
	subscriber := &recordingSubscriber[int, Never]{initial: DemandUnlimited()}
	Take(Range(0, 100), 3).Subscribe(subscriber)

	assertValues(t, subscriber.values, []int{0, 1, 2})
	if len(subscriber.completions) != 1 || subscriber.completions[0].IsFailure() {
		t.Errorf("期望恰好一次正常完成，实际 %v", subscriber.completions)
	}
}

func TestTakeClampsUpstreamDemandAndCancelsOnce(t *testing.T) {
	upstream := &stubPublisher[int]{}
	subscriber := &recordingSubscriber[int, error]{initial: DemandUnlimited()}
	Take[int, error](upstream, 2).Subscribe(subscriber)

	// 无限需求被钳制为剩余所需的2
	if len(upstream.subscription.requests) != 1 || upstream.subscription.requests[0] != DemandOf(2) {
		t.Fatalf("期望上游需求被钳制为2，实际 %v", upstream.subscription.requests)
	}

	upstream.subscriber.OnNext(10)
	upstream.subscriber.OnNext(11)
	// 截取完成后的迟到信号被忽略
	upstream.subscriber.OnComplete(Finished[error]())

	assertValues(t, subscriber.values, []int{10, 11})
	if len(subscriber.completions) != 1 || subscriber.completions[0].IsFailure() {
		t.Fatalf("期望恰好一次正常完成，实际 %v", subscriber.completions)
	}
	if got := atomic.LoadInt32(&upstream.subscription.cancels); got != 1 {
		t.Errorf("期望上游被取消恰好一次，实际 %d 次", got)
	}
}

func TestTakeZeroIsEmpty(t *testing.T) {
	subscriber := &recordingSubscriber[int, Never]{initial: DemandOf(1)}
	Take(Range(0, 10), 0).Subscribe(subscriber)

	if len(subscriber.values) != 0 {
		t.Errorf("Take(0)不应发射值，实际 %v", subscriber.values)
	}
	if len(subscriber.completions) != 1 {
		t.Errorf("期望恰好一次终止信号，实际 %d 次", len(subscriber.completions))
	}
}

// ============================================================================
// 取消传播
// ============================================================================

func TestOperatorCancelPropagatesUpstreamOnce(t *testing.T) {
	upstream := &stubPublisher[int]{}
	subscriber := &recordingSubscriber[int, error]{}
	Map[int, int, error](upstream, func(v int) int { return v }).Subscribe(subscriber)

	subscriber.subscription.Cancel()
	subscriber.subscription.Cancel()

	if got := atomic.LoadInt32(&upstream.subscription.cancels); got != 1 {
		t.Errorf("期望取消向上游传播恰好一次，实际 %d 次", got)
	}

	// 取消后的上游完成被忽略
	upstream.subscriber.OnComplete(Finished[error]())
	if len(subscriber.completions) != 0 {
		t.Errorf("取消后不应转发终止信号，实际 %v", subscriber.completions)
	}
}

func TestOperatorRequestAfterCancelIsNoop(t *testing.T) {
	upstream := &stubPublisher[int]{}
	subscriber := &recordingSubscriber[int, error]{}
	Map[int, int, error](upstream, func(v int) int { return v }).Subscribe(subscriber)

	subscriber.subscription.Cancel()
	subscriber.subscription.Request(DemandOf(5))

	if len(upstream.subscription.requests) != 0 {
		t.Errorf("取消后不应再向上游请求需求，实际 %v", upstream.subscription.requests)
	}
}

// ============================================================================
// 操作符链
// ============================================================================

func TestOperatorChainComposition(t *testing.T) {
	// Filter → Map → Scan 组合链上的需求与终止传播
	evens := Filter(Range(1, 8), func(v int) bool { return v%2 == 0 })
	doubled := Map(evens, func(v int) int { return v * 2 })
	totals := Scan(doubled, 0, func(acc, v int) int { return acc + v })

	subscriber := &recordingSubscriber[int, Never]{initial: DemandUnlimited()}
	totals.Subscribe(subscriber)

	// 偶数[2,4,6,8] → 翻倍[4,8,12,16] → 累积[4,12,24,40]
	assertValues(t, subscriber.values, []int{4, 12, 24, 40})
	if len(subscriber.completions) != 1 {
		t.Errorf("期望恰好一次终止信号，实际 %d 次", len(subscriber.completions))
	}
}
