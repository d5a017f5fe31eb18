package motion

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Channel is the bounded position history for one tracked joint.
type Channel struct {
	role   JointRole
	points *ring[Point]

	// scratch space reused by Variance
	xs, ys []float64
}

// NewChannel returns an empty channel holding at most capacity points.
func NewChannel(role JointRole, capacity int) *Channel {
	r := newRing[Point](capacity)
	return &Channel{
		role:   role,
		points: r,
		xs:     make([]float64, 0, r.capacity()),
		ys:     make([]float64, 0, r.capacity()),
	}
}

// Role returns the joint this channel tracks.
func (c *Channel) Role() JointRole { return c.role }

// Push appends p, evicting the oldest point once the channel is full.
func (c *Channel) Push(p Point) { c.points.push(p) }

// Len returns the number of stored points.
func (c *Channel) Len() int { return c.points.len() }

// Cap returns the channel capacity.
func (c *Channel) Cap() int { return c.points.capacity() }

// Points returns a copy of the stored points, oldest first.
func (c *Channel) Points() []Point { return c.points.values() }

// Clear drops all stored points.
func (c *Channel) Clear() { c.points.clear() }

// Variance returns the isotropic spread of the stored points: the square root
// of the sum of the population variances of x and y. With fewer than two
// points the spread is undefined and 0 is returned.
//
// This is not a covariance measure and has no cross term. The amplitude scale
// factor is calibrated against this exact formula.
func (c *Channel) Variance() float64 {
	if c.points.len() < 2 {
		return 0
	}
	c.xs = c.xs[:0]
	c.ys = c.ys[:0]
	spread := false
	c.points.each(func(i int, p Point) {
		if i > 0 && (p.X != c.xs[0] || p.Y != c.ys[0]) {
			spread = true
		}
		c.xs = append(c.xs, p.X)
		c.ys = append(c.ys, p.Y)
	})
	if !spread {
		// a stationary joint reads exactly 0, free of rounding residue
		return 0
	}
	v := stat.PopVariance(c.xs, nil) + stat.PopVariance(c.ys, nil)
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
