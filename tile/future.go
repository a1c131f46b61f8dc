package tile

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tilesync/tick"
)

var (
	// ErrDesync 缓冲区状态已不可信，调用方应对该实体强制重同步
	ErrDesync = errors.New("tile: desync")
	// ErrEmptyBuffer 在空缓冲区上弹出
	ErrEmptyBuffer = fmt.Errorf("%w: pop on empty future buffer", ErrDesync)
	// ErrInvalidStep 弹出的格子与当前位置不是单步关系
	ErrInvalidStep = fmt.Errorf("%w: buffered tile is not a single step", ErrDesync)
)

// FutureTile 待走的目标格子；补齐生成的中间格子 Tick 为 0
type FutureTile struct {
	Tick tick.Tick
	X    int16
	Y    int16
}

// Position 格子坐标
func (f FutureTile) Position() Position { return Position{X: f.X, Y: f.Y} }

// FutureBuffer 实体即将经过的格子 FIFO。
// 相邻两项始终是一个合法单步；队列为空时内部切片回到 nil。
type FutureBuffer struct {
	queue []FutureTile
	log   *zap.Logger
}

// NewFutureBuffer logger 为 nil 时不输出日志
func NewFutureBuffer(log *zap.Logger) *FutureBuffer {
	if log == nil {
		log = zap.NewNop()
	}
	return &FutureBuffer{log: log}
}

// HasTiles 是否还有待走格子
func (b *FutureBuffer) HasTiles() bool { return len(b.queue) > 0 }

// Len 待走格子数
func (b *FutureBuffer) Len() int { return len(b.queue) }

// Tiles 返回队列副本（队首在前）
func (b *FutureBuffer) Tiles() []FutureTile {
	if b.queue == nil {
		return nil
	}
	return append([]FutureTile(nil), b.queue...)
}

// Tail 队尾格子
func (b *FutureBuffer) Tail() (FutureTile, bool) {
	if len(b.queue) == 0 {
		return FutureTile{}, false
	}
	return b.queue[len(b.queue)-1], true
}

// Clear 丢弃所有待走格子
func (b *FutureBuffer) Clear() { b.queue = nil }

// BufferNext 追加新的目标格子 next。
// 参照点为队尾，队列为空时为 last。与参照点重合视为重复并丢弃；
// 不相邻时沿直线逐步补齐中间格子。返回追加的格子数。
func (b *FutureBuffer) BufferNext(t tick.Tick, last, next Position) int {
	ref := last
	if tail, ok := b.Tail(); ok {
		ref = tail.Position()
	}
	if next == ref {
		b.log.Debug("duplicate future tile dropped",
			zap.Uint16("tick", uint16(t)), zap.Stringer("tile", next))
		return 0
	}
	if Adjacent(ref, next) {
		b.queue = append(b.queue, FutureTile{Tick: t, X: next.X, Y: next.Y})
		return 1
	}

	added := 0
	cur := ref
	for {
		cur = StepToward(cur, next)
		if cur == next {
			break
		}
		b.queue = append(b.queue, FutureTile{X: cur.X, Y: cur.Y})
		added++
	}
	b.queue = append(b.queue, FutureTile{Tick: t, X: next.X, Y: next.Y})
	added++
	b.log.Debug("future tile gap filled",
		zap.Uint16("tick", uint16(t)), zap.Stringer("from", ref), zap.Stringer("to", next), zap.Int("steps", added))
	return added
}

// PopAndUse 弹出队首格子并驱动 m：静止时开始移动，移动中则在 (x, y) 处排队续走。
// (x, y) 为调用方当前所在（或正前往）的格子。
func (b *FutureBuffer) PopAndUse(m Mover, x, y int16) (Direction, error) {
	if len(b.queue) == 0 {
		return DirNone, ErrEmptyBuffer
	}
	next := b.queue[0]
	b.queue = b.queue[1:]
	if len(b.queue) == 0 {
		b.queue = nil
	}

	dx, dy := next.Position().Sub(Position{X: x, Y: y})
	dir, ok := DirectionFromDelta(dx, dy)
	if !ok {
		return DirNone, fmt.Errorf("%w: from (%d,%d) to %s", ErrInvalidStep, x, y, next.Position())
	}
	if m.IsStopped() {
		m.SetMoving(dir)
	} else {
		m.SetContinue(x, y, dir)
	}
	return dir, nil
}
