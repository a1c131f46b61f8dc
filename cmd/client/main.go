package main

import (
	"context"
	"flag"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tilesync/action"
	"tilesync/client"
	"tilesync/tick"
	"tilesync/wire"
)

// 无界面客户端：随机游走发送输入，按服务器权威目标对账并打印统计
func main() {
	var (
		addr     string
		room     string
		player   string
		codecArg string
		seconds  int
	)
	flag.StringVar(&addr, "addr", "localhost:8080", "server address")
	flag.StringVar(&room, "room", "room-1", "room id")
	flag.StringVar(&player, "player", "bot", "player id")
	flag.StringVar(&codecArg, "codec", "json", "json or msgpack")
	flag.IntVar(&seconds, "seconds", 30, "run time, 0 = until interrupted")
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	codec, err := wire.ParseCodec(codecArg)
	if err != nil {
		log.Fatal("bad codec", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if seconds > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
		defer cancel()
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws", RawQuery: url.Values{
		"room": {room}, "player": {player}, "codec": {codec.Name()},
	}.Encode()}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		log.Fatal("dial failed", zap.String("url", u.String()), zap.Error(err))
	}
	defer ws.Close()

	inbox := make(chan wire.Message, 256)
	go readLoop(ws, codec, inbox, log)

	if err := run(ctx, ws, codec, inbox, client.EntityID(player), log); err != nil {
		log.Error("client stopped", zap.Error(err))
	}
}

func readLoop(ws *websocket.Conn, codec wire.Codec, inbox chan<- wire.Message, log *zap.Logger) {
	defer close(inbox)
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			log.Info("connection closed", zap.Error(err))
			return
		}
		var msg wire.Message
		if err := codec.Decode(payload, &msg); err != nil {
			log.Debug("undecodable frame", zap.Error(err))
			continue
		}
		inbox <- msg
	}
}

func run(ctx context.Context, ws *websocket.Conn, codec wire.Codec, inbox <-chan wire.Message, self client.EntityID, log *zap.Logger) error {
	// 等待 welcome 以对齐 Tick
	var welcome wire.Message
	for welcome.Type != wire.TypeWelcome {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-inbox:
			if !ok {
				return nil
			}
			welcome = m
		}
	}
	tickDur := time.Duration(welcome.TickMs) * time.Millisecond
	if tickDur <= 0 {
		tickDur = 50 * time.Millisecond
	}

	rec := client.NewReconciler(client.Config{TickDuration: tickDur, LocalID: self, Logger: log.Named("reconcile")})
	rec.SetTick(welcome.TickValue())
	predictor := action.NewManager(action.Options{Logger: log.Named("predict")})
	frame := websocket.TextMessage
	if codec.Binary() {
		frame = websocket.BinaryMessage
	}

	ticker := time.NewTicker(tickDur)
	defer ticker.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	var (
		heading = action.CommandRight
		pressed bool
	)
	for {
		select {
		case <-ctx.Done():
			log.Info("final stats", zap.Any("stats", rec.Stats().Snapshot()))
			return nil
		case <-report.C:
			log.Info("stats", zap.Any("stats", rec.Stats().Snapshot()), zap.Int("entities", rec.Len()))
			continue
		case <-ticker.C:
		}

		closed, err := applyInbox(rec, inbox)
		if err != nil {
			log.Warn("reconcile errors", zap.Error(err))
		}
		if closed {
			log.Info("final stats", zap.Any("stats", rec.Stats().Snapshot()))
			return nil
		}
		if req, ok := rec.Rollback().Take(); ok && req.Full {
			log.Debug("full rollback requested", zap.Uint16("from", uint16(req.From)), zap.String("reason", req.Reason))
		}

		// 随机游走：偶尔换方向或松开
		var events []action.Event
		if rand.Intn(20) == 0 {
			if pressed {
				events = append(events, action.Event{Command: heading, Kind: action.Release})
			}
			heading = action.Command(1 + rand.Intn(4))
			pressed = rand.Intn(3) != 0
		}
		if pressed {
			events = append(events, action.Event{Command: heading, Kind: action.Press, Held: tickDur})
		}

		next := rec.Tick().Next()
		if err := predictor.RecvCommandEvents(next, events); err != nil {
			predictor = action.NewManager(action.Options{Logger: log.Named("predict")})
			_ = predictor.RecvCommandEvents(next, events)
		}
		if dir, ok, _ := predictor.TakeMovement(next); ok {
			_ = rec.PredictLocal(dir)
		}
		if len(events) > 0 {
			if err := send(ws, codec, frame, wire.Message{Type: wire.TypeCommand, Events: toWire(events)}); err != nil {
				return err
			}
		}
		if err := rec.Step(); err != nil {
			log.Warn("step errors", zap.Error(err))
		}
	}
}

// applyInbox 把已到达的帧整理成插入 / 更新 / 移除三个批次交给对账器
func applyInbox(rec *client.Reconciler, inbox <-chan wire.Message) (closed bool, err error) {
	var inserts, updates, removes []client.Update
	for drained := false; !drained; {
		select {
		case m, ok := <-inbox:
			if !ok {
				closed = true
				drained = true
				break
			}
			t := tick.Tick(m.Tick)
			switch m.Type {
			case wire.TypeTargets:
				for _, p := range m.Players {
					u := client.Update{Tick: t, Entity: client.EntityID(p.ID)}
					u.Target.X, u.Target.Y = p.X, p.Y
					if _, known := rec.Entity(u.Entity); known {
						updates = append(updates, u)
					} else {
						inserts = append(inserts, u)
					}
				}
			case wire.TypeRemove:
				for _, p := range m.Players {
					removes = append(removes, client.Update{Tick: t, Entity: client.EntityID(p.ID)})
				}
			case wire.TypeResync:
				// 服务端已重置该实体，丢弃镜像等待下一帧重建
				removes = append(removes, client.Update{Tick: t, Entity: client.EntityID(m.Player)})
			}
		default:
			drained = true
		}
	}
	rec.HandleInserts(inserts)
	err = rec.HandleUpdates(updates)
	rec.HandleRemoves(removes)
	return closed, err
}

func toWire(events []action.Event) []wire.CommandEvent {
	out := make([]wire.CommandEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, wire.FromAction(ev))
	}
	return out
}

func send(ws *websocket.Conn, codec wire.Codec, frame int, msg wire.Message) error {
	b, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteMessage(frame, b)
}
