package motion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_BoundedFIFO(t *testing.T) {
	t.Parallel()

	ch := NewChannel(RightWrist, WindowSize)
	for i := 0; i <= WindowSize; i++ {
		ch.Push(Point{X: float64(i), Y: 0})
		require.LessOrEqual(t, ch.Len(), WindowSize)
	}

	pts := ch.Points()
	require.Len(t, pts, WindowSize)
	assert.Equal(t, 1.0, pts[0].X, "oldest point should have been evicted")
	assert.Equal(t, float64(WindowSize), pts[len(pts)-1].X)

	// Many more pushes keep the bound and the ordering.
	for i := 0; i < 3*WindowSize; i++ {
		ch.Push(Point{X: float64(1000 + i)})
	}
	pts = ch.Points()
	require.Len(t, pts, WindowSize)
	for i := 1; i < len(pts); i++ {
		assert.Less(t, pts[i-1].X, pts[i].X)
	}
}

func TestChannel_Variance(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		ch := NewChannel(LeftWrist, WindowSize)
		assert.Equal(t, 0.0, ch.Variance())
	})

	t.Run("single point", func(t *testing.T) {
		ch := NewChannel(LeftWrist, WindowSize)
		ch.Push(Point{X: 0.2, Y: 0.9})
		assert.Equal(t, 0.0, ch.Variance())
	})

	t.Run("identical points", func(t *testing.T) {
		for _, p := range []Point{{0.5, 0.5}, {0.3, 0.7}, {0.1, 0.123456789}} {
			ch := NewChannel(LeftWrist, WindowSize)
			for i := 0; i < 37; i++ {
				ch.Push(p)
			}
			assert.Equal(t, 0.0, ch.Variance(), "point %+v", p)
		}
	})

	t.Run("isotropic spread", func(t *testing.T) {
		ch := NewChannel(LeftWrist, WindowSize)
		// x population variance 1, y population variance 4
		ch.Push(Point{X: 0, Y: 0})
		ch.Push(Point{X: 2, Y: 4})
		assert.InDelta(t, math.Sqrt(1+4), ch.Variance(), 1e-12)
	})
}

// A stationary wrist reads zero spread and the amplitude decays
// toward zero.
func TestChannel_StationaryWrist(t *testing.T) {
	ch := NewChannel(RightWrist, WindowSize)
	for i := 0; i < WindowSize; i++ {
		ch.Push(Point{X: 0.5, Y: 0.5})
	}
	require.Equal(t, 0.0, ch.Variance())

	amp := 0.6
	for i := 0; i < 200; i++ {
		next := SmoothAmplitude(ch.Variance(), amp)
		assert.LessOrEqual(t, next, amp)
		amp = next
	}
	assert.InDelta(t, 0.0, amp, 1e-12)
}

// An alternating wrist settles on a fixed non-zero spread.
func TestChannel_AlternatingWrist(t *testing.T) {
	ch := NewChannel(RightWrist, WindowSize)
	amp := 0.0
	var prevAmp float64
	for i := 0; i < WindowSize; i++ {
		y := 0.5
		if i%2 == 1 {
			y = 0.6
		}
		ch.Push(Point{X: 0.5, Y: y})
		prevAmp = amp
		amp = SmoothAmplitude(ch.Variance(), amp)
		assert.GreaterOrEqual(t, amp, prevAmp)
	}

	settled := ch.Variance()
	assert.InDelta(t, 0.05, settled, 1e-9)

	// More of the same pattern does not move the spread.
	for i := 0; i < 2*WindowSize; i++ {
		y := 0.5
		if i%2 == 1 {
			y = 0.6
		}
		ch.Push(Point{X: 0.5, Y: y})
		assert.InDelta(t, settled, ch.Variance(), 1e-9)
	}

	assert.Greater(t, amp, 0.0)
	assert.Less(t, amp, 1.0, "the EMA approaches but does not reach saturation")
}

func TestChannel_Clear(t *testing.T) {
	ch := NewChannel(LeftAnkle, 4)
	for i := 0; i < 6; i++ {
		ch.Push(Point{X: float64(i)})
	}
	ch.Clear()
	assert.Equal(t, 0, ch.Len())
	assert.Nil(t, ch.Points())
	assert.Equal(t, 4, ch.Cap())

	ch.Push(Point{X: 9})
	assert.Equal(t, []Point{{X: 9}}, ch.Points())
}
