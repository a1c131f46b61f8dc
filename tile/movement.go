package tile

// Mover 缓冲区驱动移动状态机所需的最小能力
type Mover interface {
	SetMoving(dir Direction)
	SetContinue(x, y int16, dir Direction)
	IsStopped() bool
}

type continuation struct {
	anchor Position
	dir    Direction
}

// Movement 单个实体的格子移动状态机：停止 / 正在走向相邻格子
type Movement struct {
	pos       Position // 静止时所在格子，移动时为出发格子
	dir       Direction
	moving    bool
	elapsed   int // 当前这一步已走的 Tick 数
	stepTicks int // 走完一格所需 Tick 数
	next      *continuation
}

// NewMovement 在 pos 处创建静止的状态机；stepTicks < 1 视为 1
func NewMovement(pos Position, stepTicks int) *Movement {
	if stepTicks < 1 {
		stepTicks = 1
	}
	return &Movement{pos: pos, stepTicks: stepTicks}
}

// IsStopped 是否静止
func (m *Movement) IsStopped() bool { return !m.moving }

// HasContinuation 是否已排队后续方向
func (m *Movement) HasContinuation() bool { return m.next != nil }

// Direction 当前移动方向，静止时为 DirNone
func (m *Movement) Direction() Direction {
	if !m.moving {
		return DirNone
	}
	return m.dir
}

// Position 出发格子（静止时即所在格子）
func (m *Movement) Position() Position { return m.pos }

// Target 正在前往的格子；静止时等于所在格子
func (m *Movement) Target() Position {
	if !m.moving {
		return m.pos
	}
	return m.pos.Add(m.dir.Delta())
}

// Progress 当前一步的完成比例 [0,1)
func (m *Movement) Progress() float64 {
	if !m.moving {
		return 0
	}
	return float64(m.elapsed) / float64(m.stepTicks)
}

// SetMoving 从当前格子开始向 dir 移动
func (m *Movement) SetMoving(dir Direction) {
	if dir == DirNone {
		return
	}
	m.moving = true
	m.dir = dir
	m.elapsed = 0
}

// SetContinue 到达 (x, y) 时继续向 dir 移动；后一次调用覆盖前一次
func (m *Movement) SetContinue(x, y int16, dir Direction) {
	m.next = &continuation{anchor: Position{X: x, Y: y}, dir: dir}
}

// Reset 丢弃所有移动状态，静止于 pos
func (m *Movement) Reset(pos Position) {
	m.pos = pos
	m.moving = false
	m.dir = DirNone
	m.elapsed = 0
	m.next = nil
}

// Advance 推进一个 Tick；走完一格时返回 true
func (m *Movement) Advance() bool {
	if !m.moving {
		return false
	}
	m.elapsed++
	if m.elapsed < m.stepTicks {
		return false
	}
	m.pos = m.pos.Add(m.dir.Delta())
	m.elapsed = 0
	if m.next != nil && m.next.anchor == m.pos {
		m.dir = m.next.dir
		m.next = nil
		return true
	}
	m.next = nil
	m.moving = false
	m.dir = DirNone
	return true
}
