package model

import "math"

// Position is a point in the frame of the owning pose.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Orientation is a unit quaternion.
type Orientation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is a position and orientation in a named frame.
type Pose struct {
	Position    Position    `json:"position"`
	Orientation Orientation `json:"orientation"`
	Frame       string      `json:"frame,omitempty"`
}

// Distance returns the Euclidean distance between the positions of p and q.
func (p Pose) Distance(q Pose) float64 {
	dx := p.Position.X - q.Position.X
	dy := p.Position.Y - q.Position.Y
	dz := p.Position.Z - q.Position.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Nearest returns the pose in candidates closest to p. Ties keep the first
// candidate. ok is false when candidates is empty.
func (p Pose) Nearest(candidates []Pose) (nearest Pose, ok bool) {
	best := math.Inf(1)
	for _, c := range candidates {
		if d := p.Distance(c); d < best {
			best = d
			nearest = c
			ok = true
		}
	}
	return nearest, ok
}
