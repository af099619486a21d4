package mesh

// Oracle answers whether the straight line between two positions is blocked.
// maxDistance is the cutoff the caller is building edges with (0 = unlimited);
// implementations may use it to bound their query. An error is treated by
// callers as "obstructed".
type Oracle interface {
	IsObstructed(a, b Coordinates, maxDistance float64) (bool, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(a, b Coordinates, maxDistance float64) (bool, error)

func (f OracleFunc) IsObstructed(a, b Coordinates, maxDistance float64) (bool, error) {
	return f(a, b, maxDistance)
}
