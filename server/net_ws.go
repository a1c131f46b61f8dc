package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tilesync/action"
	"tilesync/wire"
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws    *websocket.Conn
	send  chan []byte
	codec wire.Codec
}

func NewClientConn(ws *websocket.Conn, codec wire.Codec) *ClientConn {
	return &ClientConn{
		ws:    ws,
		send:  make(chan []byte, 64),
		codec: codec,
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) {
	select {
	case c.send <- b:
	default:
		// 为了实时性，丢弃消息（防止阻塞 Tick），客户端按迟到更新处理
	}
}

// Send 编码后入队
func (c *ClientConn) Send(msg wire.Message) {
	b, err := c.codec.Encode(msg)
	if err != nil {
		Log.Errorw("encode failed", "type", msg.Type, "codec", c.codec.Name(), "err", err)
		return
	}
	c.Enqueue(b)
}

// Close 关闭底层连接与发送队列
func (c *ClientConn) Close() {
	if c.send != nil {
		// 关闭发送通道以结束写协程
		close(c.send)
		c.send = nil
	}
	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// writePump 独立协程，负责从 send 队列写出到 WS
func (c *ClientConn) writePump(send <-chan []byte) {
	defer c.ws.Close()
	frame := websocket.TextMessage
	if c.codec.Binary() {
		frame = websocket.BinaryMessage
	}
	for msg := range send {
		c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.ws.WriteMessage(frame, msg); err != nil {
			return
		}
	}
}

// readPump 读取客户端输入，转换为 Input 注入房间
func (c *ClientConn) readPump(room *Room, playerID PlayerID) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在 Tick 线程中移除该玩家
	defer room.RequestLeave(playerID, c)
	c.ws.SetReadLimit(1 << 20) // 1MB
	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		var msg wire.Message
		if err := c.codec.Decode(payload, &msg); err != nil {
			Log.Debugw("undecodable message dropped", "player", playerID, "err", err)
			continue
		}
		in, ok := toInput(playerID, msg)
		if !ok {
			continue
		}
		room.OnInput(in)
	}
}

// toInput 把入站消息转为房间输入；未知类型或非法事件整条丢弃
func toInput(playerID PlayerID, msg wire.Message) (Input, bool) {
	var in Input
	switch strings.ToLower(msg.Type) {
	case wire.TypeCommand:
	case wire.TypeRollback:
		in.Rollback = true
		in.From = msg.TickValue()
	default:
		return in, false
	}
	in.PlayerID = playerID
	in.Events = make([]action.Event, 0, len(msg.Events))
	for _, e := range msg.Events {
		ev, err := e.ToAction()
		if err != nil {
			Log.Debugw("invalid command event", "player", playerID, "err", err)
			return in, false
		}
		in.Events = append(in.Events, ev)
	}
	return in, true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：?room=room-1&player=alice&codec=json|msgpack
func HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = "room-1"
	}
	playerID := r.URL.Query().Get("player")
	if playerID == "" {
		http.Error(w, "missing player query", http.StatusBadRequest)
		return
	}
	rm := GetRoomManager()
	codecName := r.URL.Query().Get("codec")
	if codecName == "" {
		codecName = rm.Config().Codec
	}
	codec, err := wire.ParseCodec(codecName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "err", err)
		return
	}

	room := rm.GetOrCreateRoom(roomID)

	client := NewClientConn(ws, codec)
	go client.writePump(client.send)
	room.JoinPlayer(PlayerID(playerID), client)
	go client.readPump(room, PlayerID(playerID))
}
