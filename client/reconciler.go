package client

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tilesync/tick"
	"tilesync/tile"
)

// ErrUnknownEntity 操作的实体没有本地镜像
var ErrUnknownEntity = errors.New("client: unknown entity")

// EntityID 网络实体标识（与服务端玩家 ID 一致）
type EntityID string

// Update 复制层投递的一条 TileTarget 事件
type Update struct {
	Tick   tick.Tick
	Entity EntityID
	Target tile.Position
}

// Entity 单个网络实体的本地镜像
type Entity struct {
	ID        EntityID
	Local     bool
	Confirmed ConfirmedMovement
	Future    *tile.FutureBuffer
	Physics   Physics
	Animation Animation
	Render    *RenderPosition
	Skipper   *TickSkipper
	Target    tile.Position // 最近收到的权威目标（含过期更新）

	predicted []prediction // 本地预测但尚未确认的步
}

// prediction 一次本地预测：在客户端 Tick 发出，从 From 朝 Dir 走到 To
type prediction struct {
	Tick tick.Tick
	From tile.Position
	Dir  tile.Direction
	To   tile.Position
}

// DefaultPredictionWindow 默认预测确认窗口（20 TPS 下约 1 秒）
const DefaultPredictionWindow = 20

// Config Reconciler 配置
type Config struct {
	TickDuration     time.Duration
	StepTicks        int // 走一格所需 Tick 数
	LocalID          EntityID
	PredictionWindow int // 预测等待服务器确认的最长 Tick 数，超过即视为预测失败
	Logger           *zap.Logger
	Now              func() time.Time
}

// Reconciler 客户端移动对账：持有所有实体镜像，单协程驱动
type Reconciler struct {
	entities map[EntityID]*Entity
	rollback *RollbackManager
	stats    Stats

	clientTick tick.Tick
	localID    EntityID
	tickDur    time.Duration
	stepTicks  int
	window     int
	log        *zap.Logger
	now        func() time.Time
}

// NewReconciler 按 cfg 创建
func NewReconciler(cfg Config) *Reconciler {
	if cfg.TickDuration <= 0 {
		cfg.TickDuration = 50 * time.Millisecond
	}
	if cfg.StepTicks < 1 {
		cfg.StepTicks = 1
	}
	if cfg.PredictionWindow <= 0 {
		cfg.PredictionWindow = DefaultPredictionWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		entities:  make(map[EntityID]*Entity),
		rollback:  NewRollbackManager(),
		localID:   cfg.LocalID,
		tickDur:   cfg.TickDuration,
		stepTicks: cfg.StepTicks,
		window:    cfg.PredictionWindow,
		log:       cfg.Logger,
		now:       cfg.Now,
	}
}

// Entity 查询镜像
func (r *Reconciler) Entity(id EntityID) (*Entity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// Len 实体数
func (r *Reconciler) Len() int { return len(r.entities) }

// Rollback 回滚记账
func (r *Reconciler) Rollback() *RollbackManager { return r.rollback }

// Stats 计数器
func (r *Reconciler) Stats() *Stats { return &r.stats }

// Tick 客户端当前 Tick
func (r *Reconciler) Tick() tick.Tick { return r.clientTick }

// SetTick 对齐客户端 Tick（通常在收到首帧时）
func (r *Reconciler) SetTick(t tick.Tick) { r.clientTick = t }

// tickInstant 估算服务器 Tick t 对应的本地墙钟时间
func (r *Reconciler) tickInstant(t tick.Tick) time.Time {
	return r.now().Add(time.Duration(tick.Diff(t, r.clientTick)) * r.tickDur)
}

// NewestPerEntity 同一批次中每个实体只保留 Tick 最新的一条，按实体 ID 排序返回
func NewestPerEntity(batch []Update) []Update {
	newest := make(map[EntityID]Update, len(batch))
	for _, u := range batch {
		cur, ok := newest[u.Entity]
		if !ok || tick.Newer(u.Tick, cur.Tick) {
			newest[u.Entity] = u
		}
	}
	out := make([]Update, 0, len(newest))
	for _, u := range newest {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

// HandleInserts 为新实体建立完整镜像，并登记到回滚记账
func (r *Reconciler) HandleInserts(batch []Update) {
	for _, u := range NewestPerEntity(batch) {
		r.insert(u)
		r.rollback.AddEvent(u.Tick)
	}
}

func (r *Reconciler) insert(u Update) *Entity {
	at := r.tickInstant(u.Tick)
	e := &Entity{
		ID:    u.Entity,
		Local: u.Entity == r.localID && r.localID != "",
		Confirmed: ConfirmedMovement{
			Movement: tile.NewMovement(u.Target, r.stepTicks),
			LastTick: u.Tick,
		},
		Future:  tile.NewFutureBuffer(r.log.With(zap.String("entity", string(u.Entity)))),
		Physics: Physics{X: float64(u.Target.X), Y: float64(u.Target.Y)},
		Render:  NewRenderPosition(float64(u.Target.X), float64(u.Target.Y), at, r.tickDur),
		Skipper: NewTickSkipper(0),
		Target:  u.Target,
	}
	e.Skipper.QueueSkippedTick(u.Tick)
	r.entities[u.Entity] = e
	r.log.Debug("entity inserted",
		zap.String("entity", string(u.Entity)), zap.Uint16("tick", uint16(u.Tick)), zap.Stringer("tile", u.Target))
	return e
}

// HandleUpdates 处理一批更新。每个实体只应用最新一条；
// 出现失步的实体会被丢弃镜像，等待下一次快照重建，错误合并返回。
func (r *Reconciler) HandleUpdates(batch []Update) error {
	var errs error
	applied := make(map[EntityID]tick.Tick)
	for _, u := range NewestPerEntity(batch) {
		e, ok := r.entities[u.Entity]
		if !ok {
			// 重同步后的首个快照，或插入事件丢失
			r.insert(u)
			applied[u.Entity] = u.Tick
			continue
		}
		e.Target = u.Target

		rec := e.Confirmed.Reconcile(u.Tick, r.stepTicks)
		if rec.Outcome == OutcomeStale {
			r.stats.inc(&r.stats.Stale)
			r.log.Debug("stale tile target ignored",
				zap.String("entity", string(u.Entity)),
				zap.Uint16("tick", uint16(u.Tick)), zap.Uint16("last", uint16(rec.Previous)))
			continue
		}

		outcome := rec.Outcome
		var replay []prediction
		if e.Local && len(e.predicted) > 0 {
			switch r.checkPrediction(e, u) {
			case predictionConfirmed, predictionPending:
				// 本地模拟已领先，只推进已确认基线
				outcome = OutcomeStale
			case predictionMissed:
				r.stats.inc(&r.stats.Mispredict)
				replay = r.unappliedPredictions(e, u.Tick)
				e.predicted = nil
				outcome = OutcomeLate
			}
		}

		var err error
		switch outcome {
		case OutcomeBuffered:
			if e.Future.BufferNext(u.Tick, e.anchor(), u.Target) == 0 {
				r.stats.inc(&r.stats.Duplicates)
			}
		case OutcomeLate:
			err = r.replayLate(e, u, rec)
			if err == nil {
				r.reapply(e, replay)
			}
		}
		if err != nil {
			errs = multierr.Append(errs, r.resync(e.ID, err))
			continue
		}
		e.Skipper.QueueSkippedTick(u.Tick)
		applied[u.Entity] = u.Tick
		r.stats.inc(&r.stats.Applied)
	}
	r.rollback.AddEvents(applied)
	return errs
}

// anchor 新目标的参照格子：缓冲队尾，否则为当前正前往的格子
func (e *Entity) anchor() tile.Position {
	if tail, ok := e.Future.Tail(); ok {
		return tail.Position()
	}
	return e.Confirmed.Movement.Target()
}

type predictionCheck int

const (
	predictionConfirmed predictionCheck = iota
	predictionPending
	predictionMissed
)

// checkPrediction 用服务器目标核对本地预测。
// 命中某一步时丢弃该步及之前的记录；服务器仍停在最早一步的起点
// （或更新早于最早一步）说明输入尚未被处理，预测继续等待，直到超出窗口。
func (r *Reconciler) checkPrediction(e *Entity, u Update) predictionCheck {
	for i, p := range e.predicted {
		if p.To == u.Target {
			e.predicted = e.predicted[i+1:]
			return predictionConfirmed
		}
	}
	oldest := e.predicted[0]
	if tick.Diff(r.clientTick, oldest.Tick) > r.window {
		return predictionMissed
	}
	if tick.Newer(oldest.Tick, u.Tick) || u.Target == oldest.From {
		return predictionPending
	}
	return predictionMissed
}

// unappliedPredictions 服务器在 Tick t 还不可能体现的预测（发出于 t 及之后且未超窗）
func (r *Reconciler) unappliedPredictions(e *Entity, t tick.Tick) []prediction {
	var out []prediction
	for _, p := range e.predicted {
		if tick.NewerOrEqual(p.Tick, t) && tick.Diff(r.clientTick, p.Tick) <= r.window {
			out = append(out, p)
		}
	}
	return out
}

// reapply 纠正后从新的队尾重新叠加尚未被服务器处理的预测
func (r *Reconciler) reapply(e *Entity, preds []prediction) {
	for _, p := range preds {
		r.predict(e, p.Tick, p.Dir)
	}
}

// replayLate 迟到更新：丢弃预测，朝权威目标补齐路径，同步执行缺失的 Tick，
// 最后从当前渲染位置重新插值，避免画面跳变。
func (r *Reconciler) replayLate(e *Entity, u Update, rec Reconciliation) error {
	r.stats.inc(&r.stats.Late)
	m := e.Confirmed.Movement
	from := m.Target()
	e.Future.Clear()
	m.Reset(from)
	e.Future.BufferNext(u.Tick, from, u.Target)

	missed := rec.Gap - 1
	if missed < 0 {
		missed = 0
	}
	skipped := rec.Previous.Next()
	for i := 0; i < missed; i++ {
		if err := r.stepEntity(e); err != nil {
			return err
		}
		e.Skipper.QueueSkippedTick(skipped)
		skipped = skipped.Next()
	}
	e.Render.Retarget(r.now(), e.Physics.X, e.Physics.Y)

	r.log.Info("late tile target replayed",
		zap.String("entity", string(e.ID)),
		zap.Uint16("tick", uint16(u.Tick)), zap.Uint16("last", uint16(rec.Previous)),
		zap.Int("missed", missed), zap.Stringer("target", u.Target))
	return nil
}

// resync 丢弃失步实体的镜像；下一次快照会重新建立
func (r *Reconciler) resync(id EntityID, cause error) error {
	delete(r.entities, id)
	r.stats.inc(&r.stats.Resyncs)
	r.rollback.ScheduleFull(r.clientTick, "desync")
	r.log.Error("entity desync, mirror dropped", zap.String("entity", string(id)), zap.Error(cause))
	return fmt.Errorf("entity %s: %w", id, cause)
}

// HandleRemoves 拆除实体镜像；权威镜像消失会使本地预测失效，安排完整回滚
func (r *Reconciler) HandleRemoves(batch []Update) {
	for _, u := range batch {
		if _, ok := r.entities[u.Entity]; !ok {
			continue
		}
		delete(r.entities, u.Entity)
		r.rollback.ScheduleFull(u.Tick, "entity removed")
		for _, e := range r.entities {
			if e.Local {
				e.Future.Clear()
				e.predicted = nil
			}
		}
		r.log.Debug("entity removed", zap.String("entity", string(u.Entity)), zap.Uint16("tick", uint16(u.Tick)))
	}
}

// PredictLocal 为本地实体预测一步，立即进入未来格子缓冲
func (r *Reconciler) PredictLocal(dir tile.Direction) error {
	e, ok := r.entities[r.localID]
	if !ok || r.localID == "" {
		return fmt.Errorf("%w: local %q", ErrUnknownEntity, r.localID)
	}
	if dir == tile.DirNone {
		return nil
	}
	r.predict(e, r.clientTick, dir)
	return nil
}

func (r *Reconciler) predict(e *Entity, t tick.Tick, dir tile.Direction) {
	from := e.anchor()
	next := from.Add(dir.Delta())
	e.Future.BufferNext(t, from, next)
	e.predicted = append(e.predicted, prediction{Tick: t, From: from, Dir: dir, To: next})
}

// Step 推进一个客户端 Tick：每个实体最多消费一个缓冲格子
func (r *Reconciler) Step() error {
	r.clientTick = r.clientTick.Next()
	now := r.now()
	ids := make([]EntityID, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs error
	for _, id := range ids {
		e := r.entities[id]
		if err := r.stepEntity(e); err != nil {
			errs = multierr.Append(errs, r.resync(id, err))
			continue
		}
		e.Render.Retarget(now, e.Physics.X, e.Physics.Y)
	}
	return errs
}

func (r *Reconciler) stepEntity(e *Entity) error {
	m := e.Confirmed.Movement
	facing := tile.DirNone
	if e.Future.HasTiles() && (m.IsStopped() || !m.HasContinuation()) {
		cur := m.Target()
		dir, err := e.Future.PopAndUse(m, cur.X, cur.Y)
		if err != nil {
			return err
		}
		facing = dir
	}
	if facing == tile.DirNone {
		facing = m.Direction()
	}
	walked := m.Advance()
	e.Physics.Sync(m)
	e.Animation.Step(m, walked, facing)
	return nil
}
