package motion

// stepCounter counts alternations of the vertically leading ankle. Image y
// grows downward, so the ankle with the larger y is the lower (planted) one.
// A switch only registers once the separation exceeds the hysteresis band.
type stepCounter struct {
	hysteresis float64
	leader     JointRole
	count      uint
}

func (s *stepCounter) observe(left, right Point) {
	d := left.Y - right.Y
	var next JointRole
	switch {
	case d > s.hysteresis:
		next = LeftAnkle
	case d < -s.hysteresis:
		next = RightAnkle
	default:
		return
	}
	if s.leader != "" && next != s.leader {
		s.count++
	}
	s.leader = next
}

func (s *stepCounter) reset() {
	s.leader = ""
	s.count = 0
}
