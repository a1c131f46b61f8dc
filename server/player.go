package server

import (
	"tilesync/action"
	"tilesync/tick"
	"tilesync/tile"
	"tilesync/wire"
)

// PlayerID 表示玩家唯一标识
type PlayerID string

type positionRecord struct {
	tick tick.Tick
	pos  tile.Position
}

// Player 房间内的玩家实体（服务端权威状态）
type Player struct {
	ID  PlayerID
	Pos tile.Position

	Actions *action.Manager // 输入折叠与回滚
	pending []action.Event  // 本 Tick 收到、尚未提交的输入

	positions []positionRecord // 每个 Tick 结束时的位置，队首最旧
	capacity  int

	Conn *ClientConn // 网络连接的发送端（写协程）
}

// State 广播给客户端的权威目标
func (p *Player) State() wire.TileTarget {
	return wire.TileTarget{ID: string(p.ID), X: p.Pos.X, Y: p.Pos.Y}
}

// recordPosition 记录 t 结束时的位置；重放时覆盖 t 之后的旧记录
func (p *Player) recordPosition(t tick.Tick) {
	n := len(p.positions)
	for n > 0 && tick.NewerOrEqual(p.positions[n-1].tick, t) {
		n--
	}
	p.positions = append(p.positions[:n], positionRecord{tick: t, pos: p.Pos})
	if over := len(p.positions) - p.capacity; over > 0 {
		p.positions = append(p.positions[:0], p.positions[over:]...)
	}
}

// positionAt t 结束时的位置
func (p *Player) positionAt(t tick.Tick) (tile.Position, bool) {
	for i := len(p.positions) - 1; i >= 0; i-- {
		if p.positions[i].tick == t {
			return p.positions[i].pos, true
		}
	}
	return tile.Position{}, false
}
