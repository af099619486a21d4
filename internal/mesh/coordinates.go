package mesh

import "math"

// Coordinates is a point in simulation space.
type Coordinates struct {
	X float64 `json:"x" yaml:"x" msgpack:"x"`
	Y float64 `json:"y" yaml:"y" msgpack:"y"`
	Z float64 `json:"z" yaml:"z" msgpack:"z"`
}

func (c Coordinates) DistanceTo(other Coordinates) float64 {
	return math.Sqrt(math.Pow(c.X-other.X, 2) + math.Pow(c.Y-other.Y, 2) + math.Pow(c.Z-other.Z, 2))
}

func (c Coordinates) Equals(other Coordinates) bool {
	return c.X == other.X && c.Y == other.Y && c.Z == other.Z
}

// Sub returns c - other.
func (c Coordinates) Sub(other Coordinates) Coordinates {
	return Coordinates{X: c.X - other.X, Y: c.Y - other.Y, Z: c.Z - other.Z}
}

// Add returns c + other.
func (c Coordinates) Add(other Coordinates) Coordinates {
	return Coordinates{X: c.X + other.X, Y: c.Y + other.Y, Z: c.Z + other.Z}
}

// Scale returns c multiplied by f.
func (c Coordinates) Scale(f float64) Coordinates {
	return Coordinates{X: c.X * f, Y: c.Y * f, Z: c.Z * f}
}

func (c Coordinates) Dot(other Coordinates) float64 {
	return c.X*other.X + c.Y*other.Y + c.Z*other.Z
}

func CreateCoordinates(x, y, z float64) Coordinates {
	return Coordinates{X: x, Y: y, Z: z}
}
