// Package curve implements the 256-entry curve table used to shape
// controller values before they enter the modulation matrix
// (spec.md §4.4): a handful of built-in curves plus slots for
// user-defined ones, each a 128-point lookup table interpolated linearly.
package curve

const (
	// NumCurves is the size of the curve table.
	NumCurves = 256
	// TablePoints is the resolution of each curve's lookup table.
	TablePoints = 128

	// Built-in curve indices.
	Linear  = 0
	Concave = 1
	Convex  = 2
)

// Curve is a 1-D lookup table mapping a normalized [0,1] input to a
// normalized [0,1] output.
type Curve struct {
	points [TablePoints]float32
}

// Apply interpolates the curve at x (expected in [0,1], clamped otherwise).
func (c *Curve) Apply(x float32) float32 {
	if x <= 0 {
		return c.points[0]
	}
	if x >= 1 {
		return c.points[TablePoints-1]
	}
	pos := x * float32(TablePoints-1)
	i := int(pos)
	frac := pos - float32(i)
	if i >= TablePoints-1 {
		return c.points[TablePoints-1]
	}
	return c.points[i] + frac*(c.points[i+1]-c.points[i])
}

// Table holds the full set of 256 curves, loaded once at engine setup and
// read-only thereafter (realtime-safe).
type Table struct {
	curves [NumCurves]Curve
}

// NewDefaultTable builds the table with the built-in linear/concave/convex
// curves populated and the remaining slots defaulted to linear (callers
// load user-defined curves into the unused slots before going realtime).
func NewDefaultTable() *Table {
	t := &Table{}
	for i := range t.curves {
		fillLinear(&t.curves[i])
	}
	fillConcave(&t.curves[Concave])
	fillConvex(&t.curves[Convex])
	return t
}

// SetCurve installs a caller-defined curve at any index i in 0..NumCurves-1.
// Indices 0, 1 and 2 hold the built-ins by convention; overwriting them is
// not prevented. An out-of-range i is ignored.
func (t *Table) SetCurve(i int, points [TablePoints]float32) {
	if i < 0 || i >= NumCurves {
		return
	}
	t.curves[i].points = points
}

// Get returns the curve at index i, or the linear curve if out of range.
func (t *Table) Get(i int) *Curve {
	if i < 0 || i >= NumCurves {
		return &t.curves[Linear]
	}
	return &t.curves[i]
}

// Apply is a convenience that looks up curve i and applies it to x.
func (t *Table) Apply(i int, x float32) float32 {
	return t.Get(i).Apply(x)
}

func fillLinear(c *Curve) {
	for i := 0; i < TablePoints; i++ {
		c.points[i] = float32(i) / float32(TablePoints-1)
	}
}

func fillConcave(c *Curve) {
	for i := 0; i < TablePoints; i++ {
		x := float32(i) / float32(TablePoints-1)
		c.points[i] = x * x
	}
}

func fillConvex(c *Curve) {
	for i := 0; i < TablePoints; i++ {
		x := float32(i) / float32(TablePoints-1)
		c.points[i] = 1 - (1-x)*(1-x)
	}
}
