package client

import (
	"time"

	"tilesync/tick"
	"tilesync/tile"
)

// Outcome 一次服务器更新与本地确认状态比较的结果
type Outcome int

const (
	// OutcomeStale 不比已应用的 Tick 新，忽略
	OutcomeStale Outcome = iota
	// OutcomeBuffered 正常顺序到达，进入未来格子缓冲
	OutcomeBuffered
	// OutcomeLate 中间缺了 Tick，需要同步重放
	OutcomeLate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStale:
		return "stale"
	case OutcomeBuffered:
		return "buffered"
	case OutcomeLate:
		return "late"
	}
	return "unknown"
}

// Reconciliation Reconcile 的结果
type Reconciliation struct {
	Outcome  Outcome
	Previous tick.Tick // 更新前的最后确认 Tick
	Gap      int       // 新 Tick 与 Previous 的距离
}

// ConfirmedMovement 已确认的格子移动状态与最后应用的服务器 Tick
type ConfirmedMovement struct {
	Movement *tile.Movement
	LastTick tick.Tick
}

// Reconcile 比较 serverTick 与最后确认 Tick；新 Tick 会被记为已确认。
// 距离超过 step 个 Tick 视为迟到更新。
func (c *ConfirmedMovement) Reconcile(serverTick tick.Tick, step int) Reconciliation {
	prev := c.LastTick
	if !tick.Newer(serverTick, prev) {
		return Reconciliation{Outcome: OutcomeStale, Previous: prev}
	}
	gap := tick.Diff(serverTick, prev)
	c.LastTick = serverTick
	if gap > step {
		return Reconciliation{Outcome: OutcomeLate, Previous: prev, Gap: gap}
	}
	return Reconciliation{Outcome: OutcomeBuffered, Previous: prev, Gap: gap}
}

// Physics 连续坐标（tile 单位），由移动状态机推导
type Physics struct {
	X, Y float64
}

// Sync 按移动进度重算坐标
func (p *Physics) Sync(m *tile.Movement) {
	from, to := m.Position(), m.Target()
	prog := m.Progress()
	p.X = float64(from.X) + float64(to.X-from.X)*prog
	p.Y = float64(from.Y) + float64(to.Y-from.Y)*prog
}

// AnimationState 动画状态
type AnimationState int

const (
	AnimIdle AnimationState = iota
	AnimWalk
)

// Animation 朝向与帧计数
type Animation struct {
	State  AnimationState
	Facing tile.Direction
	Frame  int
}

// Step 推进一帧；walked 表示本 Tick 内发生过移动
func (a *Animation) Step(m *tile.Movement, walked bool, facing tile.Direction) {
	if !walked && m.IsStopped() {
		a.State = AnimIdle
		a.Frame = 0
		return
	}
	if a.State != AnimWalk {
		a.Frame = 0
	}
	a.State = AnimWalk
	if facing != tile.DirNone {
		a.Facing = facing
	}
	a.Frame++
}

// RenderPosition 在两个物理坐标之间按墙钟时间线性插值
type RenderPosition struct {
	fromX, fromY float64
	toX, toY     float64
	start        time.Time
	duration     time.Duration
}

// NewRenderPosition 在 (x, y) 静止，时间基准为 at
func NewRenderPosition(x, y float64, at time.Time, duration time.Duration) *RenderPosition {
	return &RenderPosition{fromX: x, fromY: y, toX: x, toY: y, start: at, duration: duration}
}

// At now 时刻的渲染坐标
func (r *RenderPosition) At(now time.Time) (float64, float64) {
	if r.duration <= 0 {
		return r.toX, r.toY
	}
	alpha := float64(now.Sub(r.start)) / float64(r.duration)
	if alpha <= 0 {
		return r.fromX, r.fromY
	}
	if alpha >= 1 {
		return r.toX, r.toY
	}
	return r.fromX + (r.toX-r.fromX)*alpha, r.fromY + (r.toY-r.fromY)*alpha
}

// Retarget 从 now 时刻的渲染坐标出发，向 (x, y) 插值
func (r *RenderPosition) Retarget(now time.Time, x, y float64) {
	r.fromX, r.fromY = r.At(now)
	r.toX, r.toY = x, y
	r.start = now
}

// Target 插值终点
func (r *RenderPosition) Target() (float64, float64) { return r.toX, r.toY }
