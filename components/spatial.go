package components

// Position is a well's cell on the grid. Coordinates may lie outside the grid
// and wrap like every other grid access.
type Position struct {
	X, Y int
}
