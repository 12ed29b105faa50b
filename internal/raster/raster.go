// Package raster fills solid shapes into textures.
package raster

import (
	"math"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/texture"
)

// Point is a vertex in texture pixel coordinates.
type Point struct {
	X, Y int
}

// Rectangle fills the w*h block at (x, y), clipped to t. Nothing is drawn
// when the origin lies outside t.
func Rectangle(t *texture.Texture, x, y, w, h int, c color.Color) {
	if x < 0 || y < 0 || x >= t.Width || y >= t.Height || w <= 0 || h <= 0 {
		return
	}
	endX := min(x+w, t.Width)
	endY := min(y+h, t.Height)
	for row := y; row < endY; row++ {
		span := t.Row(row)[x:endX]
		for i := range span {
			span[i] = c
		}
	}
}

type edge struct {
	from  Point
	slope float64
}

func newEdge(from, to Point) edge {
	dy := to.Y - from.Y
	if dy == 0 {
		return edge{from: from}
	}
	return edge{from: from, slope: float64(to.X-from.X) / float64(dy)}
}

// Triangle scan-fills the triangle p0 p1 p2. Rows are walked from the top
// vertex, tracking the long edge (top to bottom) and the short edge, which
// switches from top-mid to mid-bottom at the middle vertex.
func Triangle(t *texture.Texture, p0, p1, p2 Point, c color.Color) {
	top, mid, bottom := sortByY(p0, p1, p2)

	long := newEdge(top, bottom)
	short := newEdge(top, mid)
	longX := float64(top.X)
	shortX := float64(top.X)

	for y := top.Y; y <= bottom.Y; y++ {
		if y >= t.Height {
			break
		}
		if y == mid.Y {
			short = newEdge(mid, bottom)
			shortX = float64(mid.X)
		}

		if y >= 0 {
			fillSpan(t, y, shortX, longX, c)
		}

		shortX += short.slope
		longX += long.slope
	}
}

func fillSpan(t *texture.Texture, y int, a, b float64, c color.Color) {
	start := int(math.Min(a, b))
	width := int(math.Abs(b - a))
	if start < 0 {
		width += start
		start = 0
	}
	if start >= t.Width || width < 0 {
		return
	}
	end := min(start+width, t.Width-1)
	span := t.Row(y)[start : end+1]
	for i := range span {
		span[i] = c
	}
}

func sortByY(a, b, c Point) (Point, Point, Point) {
	if a.Y > b.Y {
		a, b = b, a
	}
	if c.Y < a.Y {
		return c, a, b
	}
	if c.Y < b.Y {
		return a, c, b
	}
	return a, b, c
}
