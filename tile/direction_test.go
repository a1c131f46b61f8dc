package tile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionDeltaRoundTrip(t *testing.T) {
	for d := DirUp; d <= DirDownRight; d++ {
		delta := d.Delta()
		got, ok := DirectionFromDelta(int(delta.X), int(delta.Y))
		assert.True(t, ok, d.String())
		assert.Equal(t, d, got)
	}
}

func TestDirectionFromDeltaRejectsNonSteps(t *testing.T) {
	for _, c := range [][2]int{{0, 0}, {2, 0}, {0, -2}, {2, 2}, {1, 3}} {
		_, ok := DirectionFromDelta(c[0], c[1])
		assert.False(t, ok, "%v", c)
	}
}

func TestStepTowardClampsBothAxes(t *testing.T) {
	assert.Equal(t, Position{X: 1, Y: 1}, StepToward(Position{}, Position{X: 5, Y: 2}))
	assert.Equal(t, Position{X: -1, Y: 0}, StepToward(Position{}, Position{X: -4, Y: 0}))
	assert.Equal(t, Position{}, StepToward(Position{}, Position{}))
}

func TestMovementAdvanceStopsWithoutContinuation(t *testing.T) {
	m := NewMovement(Position{X: 1, Y: 1}, 3)
	m.SetMoving(DirDownLeft)
	assert.Equal(t, Position{X: 0, Y: 2}, m.Target())
	assert.False(t, m.Advance())
	assert.InDelta(t, 1.0/3.0, m.Progress(), 1e-9)
	assert.False(t, m.Advance())
	assert.True(t, m.Advance())
	assert.True(t, m.IsStopped())
	assert.Equal(t, Position{X: 0, Y: 2}, m.Position())
}

func TestMovementContinuationWithWrongAnchorIsDropped(t *testing.T) {
	m := NewMovement(Position{}, 1)
	m.SetMoving(DirRight)
	m.SetContinue(7, 7, DirDown)
	assert.True(t, m.Advance())
	assert.True(t, m.IsStopped())
	assert.False(t, m.HasContinuation())
}
