// Package geom provides float32 points, rectangles and polygons in frame pixel space.
package geom

import (
	"github.com/chewxy/math32"
)

type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y))
}

type Rect struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

func (r Rect) X2() float32 {
	return r.X + r.Width
}

func (r Rect) Y2() float32 {
	return r.Y + r.Height
}

func (r Rect) Area() float32 {
	return r.Width * r.Height
}

// IsNormal returns true if width and height are both positive
func (r Rect) IsNormal() bool {
	return r.Width > 0 && r.Height > 0
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := math32.Max(r.X, b.X)
	y1 := math32.Max(r.Y, b.Y)
	x2 := math32.Min(r.X2(), b.X2())
	y2 := math32.Min(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  math32.Max(0, x2-x1),
		Height: math32.Max(0, y2-y1),
	}
}

func (r Rect) Union(b Rect) Rect {
	x1 := math32.Min(r.X, b.X)
	y1 := math32.Min(r.Y, b.Y)
	x2 := math32.Max(r.X2(), b.X2())
	y2 := math32.Max(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

// Intersection over Union
func (r Rect) IOU(b Rect) float32 {
	intersection := r.Intersection(b).Area()
	union := r.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

// Polygon is an ordered list of vertices forming a simple polygon.
// Vertex order may be clockwise or counter-clockwise.
type Polygon []Point

// Contains runs a ray-casting test: count crossings of a horizontal ray from p
// toward +x. Odd count means inside. Points that lie exactly on an edge or vertex
// are not guaranteed to be inside; treat the boundary as outside. Polygons with
// fewer than 3 vertices contain nothing.
func (pg Polygon) Contains(p Point) bool {
	if len(pg) < 3 {
		return false
	}
	inside := false
	j := len(pg) - 1
	for i := 0; i < len(pg); i++ {
		a := pg[i]
		b := pg[j]
		// The (a.Y > p.Y) != (b.Y > p.Y) guard skips horizontal edges and avoids
		// double-counting when the ray passes through a vertex.
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xCross := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Area returns the absolute polygon area via the shoelace formula.
// Degenerate polygons (fewer than 3 vertices, or collinear) return 0.
func (pg Polygon) Area() float32 {
	if len(pg) < 3 {
		return 0
	}
	sum := float32(0)
	j := len(pg) - 1
	for i := 0; i < len(pg); i++ {
		sum += pg[j].X*pg[i].Y - pg[i].X*pg[j].Y
		j = i
	}
	return math32.Abs(sum) / 2
}

// Centroid returns the arithmetic mean of the vertices.
// This is not the area-weighted centroid, but it is cheap, and good enough for
// labeling a parking zone and measuring distance to an entrance.
func (pg Polygon) Centroid() Point {
	if len(pg) == 0 {
		return Point{}
	}
	c := Point{}
	for _, p := range pg {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float32(len(pg))
	c.Y /= float32(len(pg))
	return c
}

// Bounds returns the axis-aligned bounding box of the polygon.
func (pg Polygon) Bounds() Rect {
	if len(pg) == 0 {
		return Rect{}
	}
	x1 := pg[0].X
	y1 := pg[0].Y
	x2 := pg[0].X
	y2 := pg[0].Y
	for _, p := range pg[1:] {
		x1 = math32.Min(x1, p.X)
		y1 = math32.Min(y1, p.Y)
		x2 = math32.Max(x2, p.X)
		y2 = math32.Max(y2, p.Y)
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// BoxOverlapRatio returns the IoU of box against the polygon's axis-aligned
// bounding box. This is an approximation of true box-vs-polygon overlap: we skip
// polygon clipping and pay O(1) per test. For parking zones, which are close to
// rectangular, the error is small, but the ratio can overstate overlap for
// polygons that fill little of their bounding box.
func BoxOverlapRatio(box Rect, pg Polygon) float32 {
	bounds := pg.Bounds()
	if !bounds.IsNormal() || !box.IsNormal() {
		return 0
	}
	return box.IOU(bounds)
}
