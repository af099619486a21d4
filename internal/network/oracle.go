package network

import (
	"fmt"

	"signal-testbed/internal/mesh"
)

// OpenSpace never obstructs.
type OpenSpace struct{}

func (OpenSpace) IsObstructed(_, _ mesh.Coordinates, _ float64) (bool, error) {
	return false, nil
}

// Sphere is a spherical obstacle.
type Sphere struct {
	Center mesh.Coordinates `yaml:"center" json:"center"`
	Radius float64          `yaml:"radius" json:"radius"`
}

// SphereObstacles blocks any segment passing strictly inside one of its
// spheres.
type SphereObstacles []Sphere

func (o SphereObstacles) IsObstructed(a, b mesh.Coordinates, _ float64) (bool, error) {
	for i, s := range o {
		if s.Radius < 0 {
			return false, fmt.Errorf("obstacle %d: negative radius %g", i, s.Radius)
		}
		if segmentHitsSphere(a, b, s) {
			return true, nil
		}
	}
	return false, nil
}

// segmentHitsSphere projects the centre onto ab, clamps to the segment and
// compares the closest point against the radius.
func segmentHitsSphere(a, b mesh.Coordinates, s Sphere) bool {
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	t := 0.0
	if lenSq > 0 {
		t = s.Center.Sub(a).Dot(ab) / lenSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	closest := a.Add(ab.Scale(t))
	return closest.DistanceTo(s.Center) < s.Radius
}
