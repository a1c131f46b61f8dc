package server

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tilesync/action"
	"tilesync/journal"
	"tilesync/tick"
	"tilesync/tile"
	"tilesync/wire"
)

// RoomSettings 可热更新的房间规则
type RoomSettings struct {
	AllowDiagonal    bool `json:"allowDiagonal"`
	MaxInputsPerTick int  `json:"maxInputsPerTick"`
}

// Room 房间世界：权威状态维护在内存，单线程 Tick 推进
type Room struct {
	ID string

	Players   map[PlayerID]*Player
	inputChan chan Input
	leaveChan chan leaveRequest
	joinChan  chan joinRequest

	cfg      Config
	mu       sync.RWMutex // 仅保护 settings
	settings RoomSettings
	metrics  *RoomMetrics
	journal  *journal.Writer

	tickSeq  tick.Tick
	lastTick atomic.Uint32 // 最近完成的 Tick，供 HTTP 读取

	tickerStarted bool
	stopOnce      sync.Once
	stop          chan struct{}
	done          chan struct{} // Tick 协程退出后关闭

	// 单个 Tick 内的临时状态，BeginTick 时重置
	inputCounts map[PlayerID]int
	removed     []PlayerID
	rollbacks   []journal.Rollback
	desyncs     []string
}

// NewRoom 创建房间，初始化数据结构；j 可为 nil
func NewRoom(id string, cfg Config, j *journal.Writer) *Room {
	return &Room{
		ID:        id,
		Players:   make(map[PlayerID]*Player),
		inputChan: make(chan Input, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		leaveChan: make(chan leaveRequest, 64),
		joinChan:  make(chan joinRequest, 64),
		cfg:       cfg,
		settings: RoomSettings{
			AllowDiagonal:    cfg.AllowDiagonal,
			MaxInputsPerTick: cfg.MaxInputsPerTick,
		},
		metrics:     &RoomMetrics{},
		journal:     j,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		inputCounts: make(map[PlayerID]int),
	}
}

// Settings 当前规则副本
func (r *Room) Settings() RoomSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// UpdateSettings 在锁内修改规则
func (r *Room) UpdateSettings(fn func(*RoomSettings)) RoomSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.settings)
	return r.settings
}

// Metrics 运行指标
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Tick 最近完成的 Tick
func (r *Room) Tick() tick.Tick { return tick.Tick(r.lastTick.Load()) }

// JoinPlayer 请求在 Tick 线程中加入玩家；已在房间内则只替换连接
func (r *Room) JoinPlayer(id PlayerID, conn *ClientConn) {
	r.joinChan <- joinRequest{id: id, conn: conn}
}

// RequestLeave 请求在 Tick 线程中移除玩家，避免并发改动房间状态。
// conn 为发起请求的连接；同 ID 重连后旧连接的离开请求不会移除玩家。
func (r *Room) RequestLeave(pid PlayerID, conn *ClientConn) {
	// 为保证移除一定生效，这里采用阻塞式写入（通道有容量，避免死锁）
	r.leaveChan <- leaveRequest{id: pid, conn: conn}
}

// OnInput 入站输入（不立即改变位置），仅记录意图，等下一次 Tick 处理
func (r *Room) OnInput(in Input) {
	select {
	case r.inputChan <- in:
	default:
		// 丢弃：为了实时性，避免背压影响世界推进
		r.metrics.IncChanFullDiscarded()
	}
}

// Step 推进一个 Tick：处理输入 → 更新世界 → 广播结果
func (r *Room) Step() {
	r.BeginTick()
	r.ProcessInputs()
	r.UpdateWorld()
	r.BroadcastDelta()
}

// BeginTick 进入下一个 Tick，重置帧内状态
func (r *Room) BeginTick() {
	r.tickSeq = r.tickSeq.Next()
	for k := range r.inputCounts {
		delete(r.inputCounts, k)
	}
	r.removed = r.removed[:0]
	r.rollbacks = r.rollbacks[:0]
	r.desyncs = r.desyncs[:0]
}

// ProcessInputs 处理当前帧的加入、输入与离开（非阻塞 drain）
func (r *Room) ProcessInputs() {
	for drained := false; !drained; {
		select {
		case j := <-r.joinChan:
			r.addPlayer(j)
		default:
			drained = true
		}
	}
	for drained := false; !drained; {
		select {
		case in := <-r.inputChan:
			r.acceptInput(in)
		default:
			drained = true
		}
	}
	for drained := false; !drained; {
		select {
		case req := <-r.leaveChan:
			r.leave(req)
		default:
			drained = true
		}
	}
}

func (r *Room) newActions(id PlayerID) *action.Manager {
	return action.NewManager(action.Options{
		MoveThreshold: r.cfg.MoveThreshold(),
		HistoryTicks:  r.cfg.HistoryTicks,
		FourWay:       !r.Settings().AllowDiagonal,
		Logger:        Log.Desugar().With(zap.String("room", r.ID), zap.String("player", string(id))),
	})
}

func (r *Room) addPlayer(j joinRequest) {
	p, ok := r.Players[j.id]
	if ok {
		if p.Conn != nil && p.Conn != j.conn {
			p.Conn.Close()
		}
		p.Conn = j.conn
	} else {
		p = &Player{
			ID:       j.id,
			Pos:      tile.Position{X: int16(r.cfg.Width / 2), Y: int16(r.cfg.Height / 2)},
			Actions:  r.newActions(j.id),
			capacity: r.cfg.HistoryTicks + 1,
			Conn:     j.conn,
		}
		r.Players[j.id] = p
		Log.Infow("player joined", "room", r.ID, "player", j.id, "tick", r.tickSeq, "pos", p.Pos)
	}
	if p.Conn != nil {
		p.Conn.Send(wire.Message{
			Type:   wire.TypeWelcome,
			Tick:   uint16(r.tickSeq),
			Player: string(j.id),
			TickMs: int(r.cfg.TickInterval() / time.Millisecond),
		})
	}
}

func (r *Room) leave(req leaveRequest) {
	p, ok := r.Players[req.id]
	if !ok {
		return
	}
	if p.Conn != req.conn {
		Log.Debugw("leave from replaced connection ignored", "room", r.ID, "player", req.id)
		return
	}
	r.LeavePlayer(req.id)
}

// LeavePlayer 将玩家移出房间
func (r *Room) LeavePlayer(id PlayerID) {
	if p, ok := r.Players[id]; ok {
		if p.Conn != nil {
			p.Conn.Close()
		}
		delete(r.Players, id)
		r.removed = append(r.removed, id)
		Log.Infow("player left", "room", r.ID, "player", id, "tick", r.tickSeq)
	}
}

func (r *Room) acceptInput(in Input) {
	p, ok := r.Players[in.PlayerID]
	if !ok {
		return
	}
	if r.inputCounts[p.ID] >= r.Settings().MaxInputsPerTick {
		r.metrics.IncRateLimited()
		return
	}
	r.inputCounts[p.ID]++
	r.metrics.IncAccepted()
	if in.Rollback {
		r.rollback(p, in.From, in.Events)
		return
	}
	p.pending = append(p.pending, in.Events...)
}

// rollback 用 from 的修正输入重算 from..当前已完成的 Tick；之后的原始输入不保留
func (r *Room) rollback(p *Player, from tick.Tick, events []action.Event) {
	applied := r.tickSeq.Prev()
	if from == r.tickSeq {
		p.pending = append(p.pending, events...)
		return
	}
	if !tick.NewerOrEqual(applied, from) {
		Log.Debugw("rollback to future tick ignored", "room", r.ID, "player", p.ID, "from", from, "tick", r.tickSeq)
		return
	}
	if err := p.Actions.RecvRollback(from); err != nil {
		r.desync(p, err)
		return
	}
	base, ok := p.positionAt(from.Prev())
	if !ok {
		r.desync(p, fmt.Errorf("%w: no position at %d", action.ErrNoHistory, from.Prev()))
		return
	}
	p.Pos = base
	for t := from; ; t = t.Next() {
		var evs []action.Event
		if t == from {
			evs = events
		}
		if err := r.simulate(p, t, evs); err != nil {
			r.desync(p, err)
			return
		}
		if t == applied {
			break
		}
	}
	r.metrics.IncRollbacks()
	r.rollbacks = append(r.rollbacks, journal.Rollback{Player: string(p.ID), From: uint16(from), To: uint16(applied)})
	Log.Debugw("player rolled back", "room", r.ID, "player", p.ID, "from", from, "to", applied, "pos", p.Pos)
}

// simulate 提交 t 的输入并执行移动
func (r *Room) simulate(p *Player, t tick.Tick, events []action.Event) error {
	if err := p.Actions.RecvCommandEvents(t, events); err != nil {
		return err
	}
	dir, ok, err := p.Actions.TakeMovement(t)
	if err != nil {
		return err
	}
	if ok {
		r.applyMove(p, dir)
	}
	p.recordPosition(t)
	return nil
}

// desync 重置玩家的输入状态并通知客户端重同步
func (r *Room) desync(p *Player, cause error) {
	Log.Errorw("player desync, actions reset", "room", r.ID, "player", p.ID, "tick", r.tickSeq, "err", cause)
	r.metrics.IncDesyncs()
	p.Actions = r.newActions(p.ID)
	p.positions = nil
	p.pending = nil
	r.desyncs = append(r.desyncs, string(p.ID))
	if p.Conn != nil {
		p.Conn.Send(wire.Message{Type: wire.TypeResync, Tick: uint16(r.tickSeq), Player: string(p.ID), Reason: cause.Error()})
	}
}

func (r *Room) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateWorld 提交每个玩家本 Tick 的输入并执行移动
func (r *Room) UpdateWorld() {
	fourWay := !r.Settings().AllowDiagonal
	for _, p := range r.sortedPlayers() {
		p.Actions.SetFourWay(fourWay)
		events := p.pending
		p.pending = nil
		if err := r.simulate(p, r.tickSeq, events); err != nil {
			r.desync(p, err)
		}
	}
}

// BroadcastDelta 将本 Tick 的权威目标广播给所有玩家，并写入 Tick 日志
func (r *Room) BroadcastDelta() {
	players := r.sortedPlayers()
	targets := make([]wire.TileTarget, 0, len(players))
	for _, p := range players {
		targets = append(targets, p.State())
	}
	r.broadcast(wire.Message{Type: wire.TypeTargets, Tick: uint16(r.tickSeq), Players: targets})

	if len(r.removed) > 0 {
		gone := make([]wire.TileTarget, 0, len(r.removed))
		for _, id := range r.removed {
			gone = append(gone, wire.TileTarget{ID: string(id)})
		}
		r.broadcast(wire.Message{Type: wire.TypeRemove, Tick: uint16(r.tickSeq), Players: gone})
	}

	if r.journal != nil {
		entry := journal.Entry{
			Room:      r.ID,
			Tick:      uint16(r.tickSeq),
			At:        time.Now(),
			Targets:   targets,
			Rollbacks: append([]journal.Rollback(nil), r.rollbacks...),
			Desyncs:   append([]string(nil), r.desyncs...),
		}
		if err := r.journal.Write(entry); err != nil {
			Log.Warnw("journal write failed", "room", r.ID, "tick", r.tickSeq, "err", err)
		}
	}
	r.lastTick.Store(uint32(r.tickSeq))
}

// broadcast 每种编解码只编码一次
func (r *Room) broadcast(msg wire.Message) {
	encoded := make(map[string][]byte, 2)
	for _, p := range r.Players {
		if p.Conn == nil {
			continue
		}
		codec := p.Conn.codec
		b, ok := encoded[codec.Name()]
		if !ok {
			var err error
			b, err = codec.Encode(msg)
			if err != nil {
				Log.Errorw("encode failed", "room", r.ID, "type", msg.Type, "codec", codec.Name(), "err", err)
				continue
			}
			encoded[codec.Name()] = b
		}
		p.Conn.Enqueue(b)
	}
}

// applyMove 执行一次移动并进行越界裁剪
func (r *Room) applyMove(p *Player, dir tile.Direction) {
	next := p.Pos.Add(dir.Delta())
	if next.X < 0 {
		next.X = 0
	}
	if next.Y < 0 {
		next.Y = 0
	}
	if int(next.X) > r.cfg.Width-1 {
		next.X = int16(r.cfg.Width - 1)
	}
	if int(next.Y) > r.cfg.Height-1 {
		next.Y = int16(r.cfg.Height - 1)
	}
	if next != p.Pos {
		p.Pos = next
		r.metrics.IncMoves()
	}
}
