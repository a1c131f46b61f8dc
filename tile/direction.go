package tile

import "fmt"

// Position 网格坐标（tile 单位）
type Position struct {
	X int16 `json:"x" msgpack:"x"`
	Y int16 `json:"y" msgpack:"y"`
}

// Add 按位移得到相邻坐标
func (p Position) Add(d Delta) Position {
	return Position{X: p.X + int16(d.X), Y: p.Y + int16(d.Y)}
}

// Sub 返回 p 相对 o 的位移（不做截断）
func (p Position) Sub(o Position) (dx, dy int) {
	return int(p.X) - int(o.X), int(p.Y) - int(o.Y)
}

func (p Position) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Delta 单步位移，每个分量取值 {-1,0,1}
type Delta struct {
	X int8 `json:"dx" msgpack:"dx"`
	Y int8 `json:"dy" msgpack:"dy"`
}

// IsZero 无位移
func (d Delta) IsZero() bool { return d.X == 0 && d.Y == 0 }

// Direction 八方向；屏幕坐标系，Y 向下为正
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
	DirUpLeft
	DirUpRight
	DirDownLeft
	DirDownRight
)

var directionNames = [...]string{"none", "up", "down", "left", "right", "up-left", "up-right", "down-left", "down-right"}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Delta 方向对应的单步位移
func (d Direction) Delta() Delta {
	switch d {
	case DirUp:
		return Delta{0, -1}
	case DirDown:
		return Delta{0, 1}
	case DirLeft:
		return Delta{-1, 0}
	case DirRight:
		return Delta{1, 0}
	case DirUpLeft:
		return Delta{-1, -1}
	case DirUpRight:
		return Delta{1, -1}
	case DirDownLeft:
		return Delta{-1, 1}
	case DirDownRight:
		return Delta{1, 1}
	default:
		return Delta{}
	}
}

// Diagonal 是否为斜向
func (d Direction) Diagonal() bool {
	return d >= DirUpLeft && d <= DirDownRight
}

// DirectionFromDelta 将位移映射为方向；零位移或非单步位移返回 false
func DirectionFromDelta(dx, dy int) (Direction, bool) {
	switch {
	case dx == 0 && dy == -1:
		return DirUp, true
	case dx == 0 && dy == 1:
		return DirDown, true
	case dx == -1 && dy == 0:
		return DirLeft, true
	case dx == 1 && dy == 0:
		return DirRight, true
	case dx == -1 && dy == -1:
		return DirUpLeft, true
	case dx == 1 && dy == -1:
		return DirUpRight, true
	case dx == -1 && dy == 1:
		return DirDownLeft, true
	case dx == 1 && dy == 1:
		return DirDownRight, true
	}
	return DirNone, false
}

// Adjacent 两点是否构成一个合法单步（四向或八向）
func Adjacent(a, b Position) bool {
	dx, dy := b.Sub(a)
	_, ok := DirectionFromDelta(dx, dy)
	return ok
}

func clampStep(v int) int {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// StepToward 从 from 向 to 走一步，两轴同时截断到 [-1,1]（斜向优先）
func StepToward(from, to Position) Position {
	dx, dy := to.Sub(from)
	return Position{X: from.X + int16(clampStep(dx)), Y: from.Y + int16(clampStep(dy))}
}
