package job

import "math/rand"

const (
	// DefaultMaxIncrement 平均每次约 5
	DefaultMaxIncrement = 10.0
	minIncrement        = 0.01
)

// Heartbeat 模拟进度序列：有限、单调不减、以 100 结束。
// 每个任务使用自己的实例，不可在任务之间复用
type Heartbeat struct {
	rng          *rand.Rand
	maxIncrement float64
	progress     float64
	done         bool
}

func NewHeartbeat(rng *rand.Rand, maxIncrement float64) *Heartbeat {
	if maxIncrement <= 0 {
		maxIncrement = DefaultMaxIncrement
	}
	return &Heartbeat{rng: rng, maxIncrement: maxIncrement}
}

// Next 返回下一个进度值；到达 100 之后返回 false
func (h *Heartbeat) Next() (float64, bool) {
	if h.done {
		return h.progress, false
	}

	inc := h.rng.Float64() * h.maxIncrement
	if inc < minIncrement {
		inc = minIncrement
	}
	h.progress += inc
	if h.progress >= 100 {
		h.progress = 100
		h.done = true
	}
	return h.progress, true
}

// Progress 当前进度
func (h *Heartbeat) Progress() float64 {
	return h.progress
}

// Done 是否已到达 100
func (h *Heartbeat) Done() bool {
	return h.done
}
