package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilesync/action"
	"tilesync/journal"
	"tilesync/tick"
	"tilesync/tile"
	"tilesync/wire"
)

func newTestRoom(mutate func(*Config)) *Room {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 10, 10
	if mutate != nil {
		mutate(&cfg)
	}
	return NewRoom("test", cfg, nil)
}

func testConn() *ClientConn {
	return &ClientConn{send: make(chan []byte, 256), codec: wire.JSON}
}

func drainMessages(t *testing.T, c *ClientConn) []wire.Message {
	t.Helper()
	var out []wire.Message
	for {
		select {
		case b := <-c.send:
			var m wire.Message
			require.NoError(t, c.codec.Decode(b, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func ofType(msgs []wire.Message, typ string) []wire.Message {
	var out []wire.Message
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func pressInput(id PlayerID, c action.Command, ms int) Input {
	return Input{PlayerID: id, Events: []action.Event{{Command: c, Kind: action.Press, Held: time.Duration(ms) * time.Millisecond}}}
}

func TestRoomMovesOnceThresholdReached(t *testing.T) {
	r := newTestRoom(nil)
	conn := testConn()
	r.JoinPlayer("alice", conn)
	r.Step()

	msgs := drainMessages(t, conn)
	welcome := ofType(msgs, wire.TypeWelcome)
	require.Len(t, welcome, 1)
	assert.Equal(t, uint16(1), welcome[0].Tick)
	assert.Equal(t, 50, welcome[0].TickMs)

	r.OnInput(pressInput("alice", action.CommandRight, 100))
	r.Step()
	assert.Equal(t, tile.Position{X: 5, Y: 5}, r.Players["alice"].Pos)

	r.OnInput(pressInput("alice", action.CommandRight, 60))
	r.Step()
	assert.Equal(t, tile.Position{X: 6, Y: 5}, r.Players["alice"].Pos)
	assert.Equal(t, tick.Tick(3), r.Tick())

	targets := ofType(drainMessages(t, conn), wire.TypeTargets)
	require.Len(t, targets, 2)
	assert.Equal(t, uint16(3), targets[1].Tick)
	assert.Equal(t, []wire.TileTarget{{ID: "alice", X: 6, Y: 5}}, targets[1].Players)
	assert.Equal(t, int64(1), r.Metrics().Moves)
}

func TestRoomRollbackReplaysCorrectedInput(t *testing.T) {
	r := newTestRoom(nil)
	r.JoinPlayer("alice", nil)
	r.Step()
	r.OnInput(pressInput("alice", action.CommandRight, 200))
	r.Step()
	r.OnInput(pressInput("alice", action.CommandRight, 200))
	r.Step()
	require.Equal(t, tile.Position{X: 7, Y: 5}, r.Players["alice"].Pos)

	corrected := pressInput("alice", action.CommandDown, 200)
	corrected.Rollback = true
	corrected.From = 2
	r.OnInput(corrected)
	r.Step()

	assert.Equal(t, tile.Position{X: 5, Y: 6}, r.Players["alice"].Pos)
	assert.Equal(t, int64(1), r.Metrics().Rollbacks)
	cur, _ := r.Players["alice"].Actions.CurrentTick()
	assert.Equal(t, tick.Tick(4), cur)
	pos, ok := r.Players["alice"].positionAt(3)
	assert.True(t, ok)
	assert.Equal(t, tile.Position{X: 5, Y: 6}, pos)
}

func TestRoomRollbackForCurrentTickIsPending(t *testing.T) {
	r := newTestRoom(nil)
	r.JoinPlayer("alice", nil)
	r.Step()

	in := pressInput("alice", action.CommandUp, 200)
	in.Rollback = true
	in.From = 2
	r.OnInput(in)
	r.Step()
	assert.Equal(t, tile.Position{X: 5, Y: 4}, r.Players["alice"].Pos)
	assert.Equal(t, int64(0), r.Metrics().Rollbacks)
}

func TestRoomRollbackBeyondHistoryForcesResync(t *testing.T) {
	r := newTestRoom(func(c *Config) { c.HistoryTicks = 2 })
	conn := testConn()
	r.JoinPlayer("alice", conn)
	for i := 0; i < 6; i++ {
		r.Step()
	}
	drainMessages(t, conn)

	in := Input{PlayerID: "alice", Rollback: true, From: 2}
	r.OnInput(in)
	r.Step()

	resync := ofType(drainMessages(t, conn), wire.TypeResync)
	require.Len(t, resync, 1)
	assert.Equal(t, "alice", resync[0].Player)
	assert.Equal(t, int64(1), r.Metrics().Desyncs)

	r.OnInput(pressInput("alice", action.CommandLeft, 200))
	r.Step()
	assert.Equal(t, tile.Position{X: 4, Y: 5}, r.Players["alice"].Pos)
}

func TestRoomLeaveBroadcastsRemove(t *testing.T) {
	r := newTestRoom(nil)
	a, b := testConn(), testConn()
	r.JoinPlayer("a", a)
	r.JoinPlayer("b", b)
	r.Step()
	drainMessages(t, a)

	r.RequestLeave("b", b)
	r.Step()
	removes := ofType(drainMessages(t, a), wire.TypeRemove)
	require.Len(t, removes, 1)
	assert.Equal(t, []wire.TileTarget{{ID: "b"}}, removes[0].Players)
	_, ok := r.Players["b"]
	assert.False(t, ok)
}

func TestRoomReconnectKeepsNewConnection(t *testing.T) {
	r := newTestRoom(nil)
	old, fresh := testConn(), testConn()
	r.JoinPlayer("alice", old)
	r.Step()

	r.JoinPlayer("alice", fresh)
	// 旧连接被关闭后，其读协程退出时提交离开请求
	r.RequestLeave("alice", old)
	r.Step()

	p, ok := r.Players["alice"]
	require.True(t, ok)
	assert.Same(t, fresh, p.Conn)
	msgs := drainMessages(t, fresh)
	assert.Len(t, ofType(msgs, wire.TypeWelcome), 1)
	assert.Len(t, ofType(msgs, wire.TypeTargets), 1)
	assert.Empty(t, ofType(msgs, wire.TypeRemove))

	r.RequestLeave("alice", fresh)
	r.Step()
	_, ok = r.Players["alice"]
	assert.False(t, ok)
}

func TestRoomClampsToBounds(t *testing.T) {
	r := newTestRoom(func(c *Config) { c.Width, c.Height = 1, 1 })
	r.JoinPlayer("a", nil)
	r.OnInput(pressInput("a", action.CommandRight, 200))
	r.Step()
	assert.Equal(t, tile.Position{}, r.Players["a"].Pos)
	assert.Equal(t, int64(0), r.Metrics().Moves)
}

func TestRoomRateLimitsInputsPerTick(t *testing.T) {
	r := newTestRoom(func(c *Config) { c.MaxInputsPerTick = 1 })
	r.JoinPlayer("a", nil)
	r.Step()
	r.OnInput(pressInput("a", action.CommandRight, 10))
	r.OnInput(pressInput("a", action.CommandRight, 10))
	r.Step()
	assert.Equal(t, int64(1), r.Metrics().RateLimited)
	assert.Equal(t, int64(1), r.Metrics().InputsAccepted)
}

func TestRoomFourWaySetting(t *testing.T) {
	r := newTestRoom(nil)
	r.UpdateSettings(func(s *RoomSettings) { s.AllowDiagonal = false })
	r.JoinPlayer("a", nil)
	r.OnInput(Input{PlayerID: "a", Events: []action.Event{
		{Command: action.CommandUp, Kind: action.Press, Held: 200 * time.Millisecond},
		{Command: action.CommandRight, Kind: action.Press, Held: 200 * time.Millisecond},
	}})
	r.Step()
	assert.Equal(t, tile.Position{X: 6, Y: 5}, r.Players["a"].Pos)
}

func TestRoomWritesJournal(t *testing.T) {
	dir := t.TempDir()
	j := journal.NewWriter(dir, "ticks")
	cfg := DefaultConfig()
	r := NewRoom("room-j", cfg, j)
	r.JoinPlayer("a", nil)
	r.Step()
	r.Step()
	require.NoError(t, j.Close())

	files, err := filepath.Glob(filepath.Join(dir, "ticks-*.jsonl.zst"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	var entries []journal.Entry
	for _, f := range files {
		got, err := journal.ReadFile(f)
		require.NoError(t, err)
		entries = append(entries, got...)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "room-j", entries[0].Room)
	assert.Equal(t, []wire.TileTarget{{ID: "a", X: 32, Y: 32}}, entries[1].Targets)
}

func TestRoomStopWaitsForTickLoop(t *testing.T) {
	dir := t.TempDir()
	j := journal.NewWriter(dir, "ticks")
	cfg := DefaultConfig()
	cfg.TicksPerSecond = 200
	r := NewRoom("room-stop", cfg, j)
	r.StartTicker()
	require.Eventually(t, func() bool { return r.Tick() >= 3 }, 2*time.Second, time.Millisecond)

	r.Stop()
	last := r.Tick()
	require.NoError(t, j.Close())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, last, r.Tick())
	r.Stop()

	files, err := filepath.Glob(filepath.Join(dir, "ticks-*.jsonl.zst"))
	require.NoError(t, err)
	var entries []journal.Entry
	for _, f := range files {
		got, err := journal.ReadFile(f)
		require.NoError(t, err)
		entries = append(entries, got...)
	}
	require.NotEmpty(t, entries)
	assert.Equal(t, uint16(last), entries[len(entries)-1].Tick)
}

func TestToInput(t *testing.T) {
	in, ok := toInput("a", wire.Message{Type: wire.TypeRollback, Tick: 9, Events: []wire.CommandEvent{{Command: "up", Kind: "press", HeldMs: 20}}})
	require.True(t, ok)
	assert.True(t, in.Rollback)
	assert.Equal(t, tick.Tick(9), in.From)
	require.Len(t, in.Events, 1)
	assert.Equal(t, action.CommandUp, in.Events[0].Command)

	_, ok = toInput("a", wire.Message{Type: wire.TypeCommand, Events: []wire.CommandEvent{{Command: "fly", Kind: "press"}}})
	assert.False(t, ok)
	_, ok = toInput("a", wire.Message{Type: "chat"})
	assert.False(t, ok)
}
