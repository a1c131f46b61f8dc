package client

import "sync/atomic"

// Stats 对账计数器；可在其它协程读取
type Stats struct {
	Applied    int64
	Stale      int64
	Late       int64
	Duplicates int64
	Mispredict int64
	Resyncs    int64
}

func (s *Stats) inc(p *int64) { atomic.AddInt64(p, 1) }

// Snapshot 只读副本
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"applied":    atomic.LoadInt64(&s.Applied),
		"stale":      atomic.LoadInt64(&s.Stale),
		"late":       atomic.LoadInt64(&s.Late),
		"duplicates": atomic.LoadInt64(&s.Duplicates),
		"mispredict": atomic.LoadInt64(&s.Mispredict),
		"resyncs":    atomic.LoadInt64(&s.Resyncs),
	}
}
