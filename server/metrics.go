package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount         int64 // 统计的 Tick 次数
	InputsAccepted    int64 // 被接受的输入数
	RateLimited       int64 // 因同帧限流被拒绝的输入数
	ChanFullDiscarded int64 // 因通道满被丢弃的输入数
	Moves             int64 // 产生位移的次数
	Rollbacks         int64 // 执行的输入回滚次数
	Desyncs           int64 // 强制重同步次数
	TotalTickNs       int64 // Tick 累计耗时（纳秒）
}

func (m *RoomMetrics) IncAccepted()          { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *RoomMetrics) IncRateLimited()       { atomic.AddInt64(&m.RateLimited, 1) }
func (m *RoomMetrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *RoomMetrics) IncMoves()             { atomic.AddInt64(&m.Moves, 1) }
func (m *RoomMetrics) IncRollbacks()         { atomic.AddInt64(&m.Rollbacks, 1) }
func (m *RoomMetrics) IncDesyncs()           { atomic.AddInt64(&m.Desyncs, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":          tick,
		"inputs_accepted":     atomic.LoadInt64(&m.InputsAccepted),
		"rate_limited":        atomic.LoadInt64(&m.RateLimited),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
		"moves":               atomic.LoadInt64(&m.Moves),
		"rollbacks":           atomic.LoadInt64(&m.Rollbacks),
		"desyncs":             atomic.LoadInt64(&m.Desyncs),
		"avg_tick_ms":         avgMs,
	}
}
