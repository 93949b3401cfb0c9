// Demand value type for flowcore
// 需求量值类型：非负计数加上"无限"哨兵值，加法饱和不回绕
package flowcore

import (
	"math"
	"strconv"
)

// unlimitedCount 无限需求的哨兵值
const unlimitedCount = math.MaxInt64

// Demand 消费者当前授权生产者投递的条目数量。
// 需求只会通过Request累加，扣减由Subscription内部跟踪，不对外暴露减法。
type Demand struct {
	count int64
}

// DemandNone 零需求
func DemandNone() Demand {
	return Demand{}
}

// DemandUnlimited 无限需求
func DemandUnlimited() Demand {
	return Demand{count: unlimitedCount}
}

// DemandOf 创建指定数量的需求，n为负数时panic(ErrInvalidDemand)
func DemandOf(n int64) Demand {
	if n < 0 {
		panic(ErrInvalidDemand)
	}
	return Demand{count: n}
}

// Add 饱和相加：无限加任意值仍为无限，普通相加溢出时封顶为无限
func (d Demand) Add(other Demand) Demand {
	if d.count == unlimitedCount || other.count == unlimitedCount {
		return DemandUnlimited()
	}
	sum := d.count + other.count
	if sum < 0 {
		// 溢出，封顶
		return DemandUnlimited()
	}
	return Demand{count: sum}
}

// IsUnlimited 是否为无限需求
func (d Demand) IsUnlimited() bool {
	return d.count == unlimitedCount
}

// IsNone 是否为零需求
func (d Demand) IsNone() bool {
	return d.count == 0
}

// Count 当前授权数量，无限需求时返回math.MaxInt64
func (d Demand) Count() int64 {
	return d.count
}

// String 需求量的字符串表示
func (d Demand) String() string {
	if d.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(d.count, 10)
}

// minusOne 内部扣减一个单位；无限需求与零需求保持不变
func (d Demand) minusOne() Demand {
	if d.count == unlimitedCount || d.count == 0 {
		return d
	}
	return Demand{count: d.count - 1}
}
