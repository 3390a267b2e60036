package nn

import (
	"github.com/chewxy/math32"
)

// Box is an axis-aligned bounding box in normalized [0,1] coordinates,
// top-left origin. X1 <= X2 and Y1 <= Y2 after Clip.
type Box struct {
	X1 float32
	Y1 float32
	X2 float32
	Y2 float32
}

func (b Box) Width() float32 {
	return b.X2 - b.X1
}

func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

func (b Box) Area() float32 {
	return math32.Max(0, b.Width()) * math32.Max(0, b.Height())
}

func (b Box) Intersection(o Box) Box {
	return Box{
		X1: math32.Max(b.X1, o.X1),
		Y1: math32.Max(b.Y1, o.Y1),
		X2: math32.Min(b.X2, o.X2),
		Y2: math32.Min(b.Y2, o.Y2),
	}
}

// Intersection over Union
func (b Box) IOU(o Box) float32 {
	in := b.Intersection(o)
	if in.X2 <= in.X1 || in.Y2 <= in.Y1 {
		return 0
	}
	inArea := in.Area()
	return inArea / (b.Area() + o.Area() - inArea)
}

// Clip clamps the box to the unit square and repairs inverted edges.
func (b Box) Clip() Box {
	c := Box{
		X1: math32.Max(0, math32.Min(1, b.X1)),
		Y1: math32.Max(0, math32.Min(1, b.Y1)),
		X2: math32.Max(0, math32.Min(1, b.X2)),
		Y2: math32.Max(0, math32.Min(1, b.Y2)),
	}
	if c.X2 < c.X1 {
		c.X1, c.X2 = c.X2, c.X1
	}
	if c.Y2 < c.Y1 {
		c.Y1, c.Y2 = c.Y2, c.Y1
	}
	return c
}
