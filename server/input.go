package server

import (
	"tilesync/action"
	"tilesync/tick"
)

// Input 客户端输入（意图），由服务端在 Tick 中解释并驱动世界状态
type Input struct {
	PlayerID PlayerID
	Events   []action.Event

	// Rollback 为 true 时，Events 是 From 这一 Tick 的修正输入
	Rollback bool
	From     tick.Tick
}

type joinRequest struct {
	id   PlayerID
	conn *ClientConn
}

// leaveRequest 由发起连接提交；连接已被替换时忽略
type leaveRequest struct {
	id   PlayerID
	conn *ClientConn
}
