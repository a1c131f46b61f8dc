package wire

import (
	"fmt"
	"strings"
	"time"

	"tilesync/action"
	"tilesync/tick"
)

// 消息类型
const (
	TypeCommand  = "cmd"      // 客户端 → 服务端：本 Tick 的输入事件
	TypeRollback = "rollback" // 客户端 → 服务端：从 Tick 起修正输入
	TypeWelcome  = "welcome"  // 服务端 → 客户端：接入时的 Tick 基准
	TypeTargets  = "targets"  // 服务端 → 客户端：权威格子目标
	TypeRemove   = "remove"   // 服务端 → 客户端：实体离开
	TypeResync   = "resync"   // 服务端 → 客户端：实体失步，已重置
)

// CommandEvent 输入事件的网络表示
// 示例：{"command":"right","kind":"press","held_ms":50}
type CommandEvent struct {
	Command string `json:"command" msgpack:"command"`
	Kind    string `json:"kind" msgpack:"kind"`
	HeldMs  int    `json:"held_ms,omitempty" msgpack:"held_ms,omitempty"`
}

// TileTarget 某玩家的权威目标格子
type TileTarget struct {
	ID string `json:"id" msgpack:"id"`
	X  int16  `json:"x" msgpack:"x"`
	Y  int16  `json:"y" msgpack:"y"`
}

// Message 所有消息共用的信封
type Message struct {
	Type    string         `json:"type" msgpack:"type"`
	Tick    uint16         `json:"tick,omitempty" msgpack:"tick,omitempty"`
	Player  string         `json:"player,omitempty" msgpack:"player,omitempty"`
	TickMs  int            `json:"tick_ms,omitempty" msgpack:"tick_ms,omitempty"`
	Reason  string         `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Events  []CommandEvent `json:"events,omitempty" msgpack:"events,omitempty"`
	Players []TileTarget   `json:"players,omitempty" msgpack:"players,omitempty"`
}

// TickValue 消息中的 Tick
func (m Message) TickValue() tick.Tick { return tick.Tick(m.Tick) }

// ToAction 转换为 action.Event
func (e CommandEvent) ToAction() (action.Event, error) {
	cmd, ok := action.ParseCommand(e.Command)
	if !ok {
		return action.Event{}, fmt.Errorf("wire: unknown command %q", e.Command)
	}
	var kind action.EventKind
	switch strings.ToLower(e.Kind) {
	case "press":
		kind = action.Press
	case "release":
		kind = action.Release
	default:
		return action.Event{}, fmt.Errorf("wire: unknown event kind %q", e.Kind)
	}
	if e.HeldMs < 0 {
		return action.Event{}, fmt.Errorf("wire: negative held_ms %d", e.HeldMs)
	}
	return action.Event{Command: cmd, Kind: kind, Held: time.Duration(e.HeldMs) * time.Millisecond}, nil
}

// FromAction action.Event 的网络表示
func FromAction(ev action.Event) CommandEvent {
	kind := "press"
	if ev.Kind == action.Release {
		kind = "release"
	}
	return CommandEvent{Command: ev.Command.String(), Kind: kind, HeldMs: int(ev.Held / time.Millisecond)}
}
