package action

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilesync/tick"
	"tilesync/tile"
)

func press(c Command, ms int) Event {
	return Event{Command: c, Kind: Press, Held: time.Duration(ms) * time.Millisecond}
}

func release(c Command) Event { return Event{Command: c, Kind: Release} }

func TestWillMoveCrossesThresholdOnSecondTick(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.RecvCommandEvents(10, []Event{press(CommandRight, 100)}))
	assert.False(t, m.Current().WillMove)

	require.NoError(t, m.RecvCommandEvents(11, []Event{press(CommandRight, 60)}))
	rec := m.Current()
	assert.True(t, rec.WillMove)
	assert.Equal(t, 160*time.Millisecond, rec.Pressed[CommandRight])
	assert.Equal(t, tile.Delta{X: 1}, rec.Buffered)
}

func TestFirstCallAcceptsAnyTick(t *testing.T) {
	m := NewManager(Options{})
	_, ok := m.CurrentTick()
	assert.False(t, ok)
	require.NoError(t, m.RecvCommandEvents(65535, nil))
	require.NoError(t, m.RecvCommandEvents(0, nil))
	cur, ok := m.CurrentTick()
	assert.True(t, ok)
	assert.Equal(t, tick.Tick(0), cur)
	assert.Equal(t, 1, m.HistoryLen())
}

func TestRecvCommandEventsRejectsGapAndReplay(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.RecvCommandEvents(5, nil))

	err := m.RecvCommandEvents(7, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTickOutOfSequence))
	assert.True(t, errors.Is(err, ErrDesync))

	err = m.RecvCommandEvents(5, nil)
	assert.True(t, errors.Is(err, ErrTickOutOfSequence))
}

func TestReleaseClearsOnlyContributingAxis(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.RecvCommandEvents(1, []Event{press(CommandLeft, 10), press(CommandUp, 10)}))
	assert.Equal(t, tile.Delta{X: -1, Y: -1}, m.Current().Buffered)

	require.NoError(t, m.RecvCommandEvents(2, []Event{release(CommandRight), release(CommandUp)}))
	rec := m.Current()
	assert.Equal(t, tile.Delta{X: -1, Y: 0}, rec.Buffered)
	_, held := rec.Pressed[CommandUp]
	assert.False(t, held)
	assert.Contains(t, rec.Pressed, CommandLeft)
}

func TestNonAxisCommandOnlyAccumulates(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.RecvCommandEvents(1, []Event{press(CommandUse, 200)}))
	rec := m.Current()
	assert.True(t, rec.WillMove)
	assert.True(t, rec.Buffered.IsZero())

	dir, ok, err := m.TakeMovement(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, tile.DirNone, dir)
	assert.False(t, m.Current().WillMove)
}

func TestTakeMovement(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.RecvCommandEvents(1, []Event{press(CommandDown, 150), press(CommandRight, 5)}))

	_, _, err := m.TakeMovement(2)
	assert.True(t, errors.Is(err, ErrTickOutOfSequence))

	dir, ok, err := m.TakeMovement(1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tile.DirDownRight, dir)

	rec := m.Current()
	assert.False(t, rec.WillMove)
	assert.True(t, rec.Buffered.IsZero())

	dir, ok, err = m.TakeMovement(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, tile.DirNone, dir)
}

func TestTakeMovementResetsBufferedWithoutWillMove(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.RecvCommandEvents(1, []Event{press(CommandLeft, 20)}))
	_, ok, err := m.TakeMovement(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, m.Current().Buffered.IsZero())
}

func TestTakeMovementFourWayKeepsHorizontal(t *testing.T) {
	m := NewManager(Options{FourWay: true})
	require.NoError(t, m.RecvCommandEvents(1, []Event{press(CommandUp, 200), press(CommandLeft, 200)}))
	dir, ok, err := m.TakeMovement(1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tile.DirLeft, dir)
}

func TestRollbackRoundTrip(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.RecvCommandEvents(65533, []Event{press(CommandRight, 40)}))
	require.NoError(t, m.RecvCommandEvents(65534, []Event{press(CommandRight, 40)}))
	want := m.Current()

	require.NoError(t, m.RecvCommandEvents(65535, []Event{press(CommandRight, 100), press(CommandUp, 10)}))
	require.NoError(t, m.RecvCommandEvents(0, []Event{release(CommandRight)}))
	require.NoError(t, m.RecvCommandEvents(1, nil))

	require.NoError(t, m.RecvRollback(65535))
	cur, _ := m.CurrentTick()
	assert.Equal(t, tick.Tick(65534), cur)
	assert.Equal(t, 1, m.HistoryLen())

	require.NoError(t, m.RecvCommandEvents(65535, nil))
	assert.Equal(t, want, m.Current())
}

func TestRollbackWithoutHistoryFails(t *testing.T) {
	m := NewManager(Options{HistoryTicks: 2})
	for tk := tick.Tick(1); tk <= 6; tk++ {
		require.NoError(t, m.RecvCommandEvents(tk, nil))
	}
	assert.Equal(t, 2, m.HistoryLen())

	err := m.RecvRollback(3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoHistory))
	assert.True(t, errors.Is(err, ErrDesync))
	assert.Equal(t, 2, m.HistoryLen())

	require.NoError(t, m.RecvRollback(5))
	cur, _ := m.CurrentTick()
	assert.Equal(t, tick.Tick(4), cur)
}

func TestRollbackToNextTickIsNoop(t *testing.T) {
	m := NewManager(Options{})
	require.NoError(t, m.RecvCommandEvents(8, []Event{press(CommandUp, 30)}))
	before := m.Current()
	require.NoError(t, m.RecvRollback(9))
	assert.Equal(t, before, m.Current())
}

func TestParseCommand(t *testing.T) {
	c, ok := ParseCommand("RIGHT")
	assert.True(t, ok)
	assert.Equal(t, CommandRight, c)
	_, ok = ParseCommand("jump")
	assert.False(t, ok)
}
