package client

import "tilesync/tick"

// RollbackRequest 一次待执行的客户端重算
type RollbackRequest struct {
	From   tick.Tick // 需要重算的最早 Tick
	Full   bool      // 是否需要重算全部本地预测实体
	Reason string
	Events int
}

// RollbackManager 只做记账：记录收到权威修正的 Tick，供外部重算流程读取
type RollbackManager struct {
	earliest tick.Tick
	has      bool
	events   int
	full     bool
	reason   string
}

// NewRollbackManager 空记录
func NewRollbackManager() *RollbackManager { return &RollbackManager{} }

// AddEvent 记录 t 收到权威修正
func (m *RollbackManager) AddEvent(t tick.Tick) {
	if !m.has || tick.Newer(m.earliest, t) {
		m.earliest = t
	}
	m.has = true
	m.events++
}

// AddEvents 批量记录
func (m *RollbackManager) AddEvents(events map[EntityID]tick.Tick) {
	for _, t := range events {
		m.AddEvent(t)
	}
}

// ScheduleFull 要求从 t 起完整重算本地预测实体
func (m *RollbackManager) ScheduleFull(t tick.Tick, reason string) {
	m.AddEvent(t)
	m.full = true
	if m.reason == "" {
		m.reason = reason
	}
}

// Earliest 已记录的最早 Tick
func (m *RollbackManager) Earliest() (tick.Tick, bool) { return m.earliest, m.has }

// Pending 是否有待处理的请求
func (m *RollbackManager) Pending() bool { return m.has }

// Take 取出并清空待处理请求
func (m *RollbackManager) Take() (RollbackRequest, bool) {
	if !m.has {
		return RollbackRequest{}, false
	}
	req := RollbackRequest{From: m.earliest, Full: m.full, Reason: m.reason, Events: m.events}
	*m = RollbackManager{}
	return req, true
}
