package action

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tilesync/tick"
	"tilesync/tile"
)

const (
	// DefaultMoveThreshold 累计按住超过该时长才产生移动
	DefaultMoveThreshold = 150 * time.Millisecond
	// DefaultHistoryTicks 保留的历史 Tick 数，需覆盖服务器最大往返
	DefaultHistoryTicks = 128
)

var (
	// ErrDesync 输入序列已不可信，调用方应强制重同步该实体
	ErrDesync = errors.New("action: desync")
	// ErrTickOutOfSequence Tick 未按 current+1 顺序提交
	ErrTickOutOfSequence = fmt.Errorf("%w: tick out of sequence", ErrDesync)
	// ErrNoHistory 回滚目标没有对应历史
	ErrNoHistory = fmt.Errorf("%w: no history for rollback tick", ErrDesync)
)

// Options Manager 配置
type Options struct {
	MoveThreshold time.Duration
	HistoryTicks  int
	// FourWay 仅允许四方向；两轴同时有输入时保留水平轴
	FourWay bool
	Logger  *zap.Logger
}

type historyEntry struct {
	tick   tick.Tick
	record Record
}

// Manager 单个实体的输入折叠与回滚（服务端）。
// 非并发安全：由房间 Tick 协程独占。
type Manager struct {
	current     Record
	currentTick tick.Tick
	started     bool

	history []historyEntry // 队首最旧

	threshold time.Duration
	capacity  int
	fourWay   bool
	log       *zap.Logger
}

// NewManager 按 opts 创建；零值字段使用默认值
func NewManager(opts Options) *Manager {
	if opts.MoveThreshold <= 0 {
		opts.MoveThreshold = DefaultMoveThreshold
	}
	if opts.HistoryTicks <= 0 {
		opts.HistoryTicks = DefaultHistoryTicks
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		current:   newRecord(),
		threshold: opts.MoveThreshold,
		capacity:  opts.HistoryTicks,
		fourWay:   opts.FourWay,
		log:       opts.Logger,
	}
}

// CurrentTick 当前记录对应的 Tick；尚未收到任何 Tick 时 ok=false
func (m *Manager) CurrentTick() (tick.Tick, bool) { return m.currentTick, m.started }

// Current 当前记录的副本
func (m *Manager) Current() Record { return m.current.Clone() }

// HistoryLen 历史条目数
func (m *Manager) HistoryLen() int { return len(m.history) }

// SetFourWay 切换四方向规则（房间热更新）
func (m *Manager) SetFourWay(v bool) { m.fourWay = v }

// RecvCommandEvents 提交 t 的输入事件。t 必须紧接当前 Tick；首次调用无此限制。
func (m *Manager) RecvCommandEvents(t tick.Tick, events []Event) error {
	if m.started {
		if want := m.currentTick.Next(); t != want {
			return fmt.Errorf("%w: got %d, want %d", ErrTickOutOfSequence, t, want)
		}
		m.archive()
	}
	m.currentTick = t
	m.started = true
	for _, ev := range events {
		m.current.apply(ev, m.threshold)
	}
	return nil
}

func (m *Manager) archive() {
	m.history = append(m.history, historyEntry{tick: m.currentTick, record: m.current.Clone()})
	if over := len(m.history) - m.capacity; over > 0 {
		m.history = append(m.history[:0], m.history[over:]...)
	}
}

// RecvRollback 回滚到 t：t-1 的记录成为当前记录，更新的历史全部丢弃，
// 之后由 RecvCommandEvents(t, ...) 重新向前构建。
func (m *Manager) RecvRollback(t tick.Tick) error {
	target := t.Prev()
	if m.started && m.currentTick == target {
		// 尚未推进到 t，无需回滚
		return nil
	}
	n := len(m.history)
	for n > 0 && tick.Newer(m.history[n-1].tick, target) {
		n--
	}
	if n == 0 || m.history[n-1].tick != target {
		return fmt.Errorf("%w: tick %d", ErrNoHistory, t)
	}
	entry := m.history[n-1]
	m.history = m.history[:n-1]
	m.current = entry.record.Clone()
	m.currentTick = target
	m.started = true
	m.log.Debug("action history rolled back",
		zap.Uint16("tick", uint16(t)), zap.Int("history", len(m.history)))
	return nil
}

// TakeMovement 取出 t 的移动方向。t 必须等于当前 Tick。
// 无论是否返回方向，缓冲位移都会清零。
func (m *Manager) TakeMovement(t tick.Tick) (tile.Direction, bool, error) {
	if !m.started || t != m.currentTick {
		return tile.DirNone, false, fmt.Errorf("%w: take movement at %d, current %d", ErrTickOutOfSequence, t, m.currentTick)
	}
	delta := m.current.Buffered
	m.current.Buffered = tile.Delta{}
	if !m.current.WillMove {
		return tile.DirNone, false, nil
	}
	m.current.WillMove = false
	if m.fourWay && delta.X != 0 && delta.Y != 0 {
		delta.Y = 0
	}
	dir, ok := tile.DirectionFromDelta(int(delta.X), int(delta.Y))
	return dir, ok, nil
}
