package client

import "tilesync/tick"

const defaultSkipperCapacity = 64

// TickSkipper 记录某实体由服务器更新（含迟到重放）覆盖的 Tick，
// 插值层据此避免对这些 Tick 重复施加位移。
type TickSkipper struct {
	ticks    []tick.Tick
	capacity int
}

// NewTickSkipper capacity < 1 时使用默认容量
func NewTickSkipper(capacity int) *TickSkipper {
	if capacity < 1 {
		capacity = defaultSkipperCapacity
	}
	return &TickSkipper{capacity: capacity}
}

// QueueSkippedTick 记录 t；超出容量时丢弃最旧的
func (s *TickSkipper) QueueSkippedTick(t tick.Tick) {
	for _, v := range s.ticks {
		if v == t {
			return
		}
	}
	s.ticks = append(s.ticks, t)
	if over := len(s.ticks) - s.capacity; over > 0 {
		s.ticks = append(s.ticks[:0], s.ticks[over:]...)
	}
}

// Consume 若 t 已记录则移除并返回 true；同时清掉比 t 旧的记录
func (s *TickSkipper) Consume(t tick.Tick) bool {
	found := false
	kept := s.ticks[:0]
	for _, v := range s.ticks {
		switch {
		case v == t:
			found = true
		case tick.Newer(v, t):
			kept = append(kept, v)
		}
	}
	s.ticks = kept
	return found
}

// Skipped 是否记录了 t
func (s *TickSkipper) Skipped(t tick.Tick) bool {
	for _, v := range s.ticks {
		if v == t {
			return true
		}
	}
	return false
}

// Len 记录数
func (s *TickSkipper) Len() int { return len(s.ticks) }
