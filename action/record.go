package action

import (
	"fmt"
	"strings"
	"time"

	"tilesync/tile"
)

// Command 玩家输入指令
type Command int

const (
	CommandNone Command = iota
	CommandUp
	CommandDown
	CommandLeft
	CommandRight
	CommandUse // 非方向指令，只累计按住时长
)

var commandNames = map[Command]string{
	CommandUp:    "up",
	CommandDown:  "down",
	CommandLeft:  "left",
	CommandRight: "right",
	CommandUse:   "use",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand 解析网络上的指令名（大小写不敏感）
func ParseCommand(s string) (Command, bool) {
	s = strings.ToLower(s)
	for c, name := range commandNames {
		if name == s {
			return c, true
		}
	}
	return CommandNone, false
}

// axis 方向指令作用的轴与分量；ok=false 表示非方向指令
func (c Command) axis() (horizontal bool, v int8, ok bool) {
	switch c {
	case CommandUp:
		return false, -1, true
	case CommandDown:
		return false, 1, true
	case CommandLeft:
		return true, -1, true
	case CommandRight:
		return true, 1, true
	}
	return false, 0, false
}

// EventKind 按下 / 松开
type EventKind int

const (
	Press EventKind = iota + 1
	Release
)

// Event 一个 Tick 内的单条输入事件；Held 为本 Tick 内按住的时长
type Event struct {
	Command Command
	Kind    EventKind
	Held    time.Duration
}

// Record 某实体在某 Tick 的意图移动快照
type Record struct {
	WillMove bool
	Buffered tile.Delta
	Pressed  map[Command]time.Duration
}

func newRecord() Record {
	return Record{Pressed: make(map[Command]time.Duration)}
}

// Clone 深拷贝（Pressed 不共享）
func (r Record) Clone() Record {
	c := Record{WillMove: r.WillMove, Buffered: r.Buffered, Pressed: make(map[Command]time.Duration, len(r.Pressed))}
	for k, v := range r.Pressed {
		c.Pressed[k] = v
	}
	return c
}

// apply 将一条事件折叠进记录；threshold 为开始移动所需的累计按住时长
func (r *Record) apply(ev Event, threshold time.Duration) {
	horizontal, v, isAxis := ev.Command.axis()
	switch ev.Kind {
	case Press:
		held := r.Pressed[ev.Command] + ev.Held
		r.Pressed[ev.Command] = held
		if isAxis {
			if horizontal {
				r.Buffered.X = v
			} else {
				r.Buffered.Y = v
			}
		}
		if held >= threshold {
			r.WillMove = true
		}
	case Release:
		if isAxis {
			if horizontal && r.Buffered.X == v {
				r.Buffered.X = 0
			}
			if !horizontal && r.Buffered.Y == v {
				r.Buffered.Y = 0
			}
		}
		delete(r.Pressed, ev.Command)
	}
}
