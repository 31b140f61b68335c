package viz

import (
	"math"
	"strings"
)

const brailleBase = 0x2800

// Braille cells are 2 dots wide and 4 tall:
//
//	1 4
//	2 5
//	3 6
//	7 8
var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a grid of Braille cells addressed in dots. A Width x Height
// canvas has (2*Width) x (4*Height) dots.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Dots returns the canvas size in dots.
func (c *Canvas) Dots() (int, int) { return c.Width * 2, c.Height * 4 }

// Set lights the dot at (x, y). Out-of-range dots are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= pixelMap[y%4][x%2]
}

// IsSet reports whether the dot at (x, y) is lit.
func (c *Canvas) IsSet(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.Grid[y/4][x/2]&pixelMap[y%4][x%2] != 0
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBase
		}
	}
}

// DrawLine draws a line with Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Cross draws a small plus centred on (x, y).
func (c *Canvas) Cross(x, y int) {
	c.Set(x, y)
	c.Set(x-1, y)
	c.Set(x+1, y)
	c.Set(x, y-1)
	c.Set(x, y+1)
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// Viewport maps world coordinates onto canvas dots with y pointing up.
type Viewport struct {
	MinX, MaxX, MinY, MaxY float64
}

// Fit grows v to cover (x, y). A zero Viewport fitted to one point becomes
// that point.
func (v *Viewport) Fit(x, y float64, first bool) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return
	}
	if first {
		*v = Viewport{MinX: x, MaxX: x, MinY: y, MaxY: y}
		return
	}
	v.MinX = math.Min(v.MinX, x)
	v.MaxX = math.Max(v.MaxX, x)
	v.MinY = math.Min(v.MinY, y)
	v.MaxY = math.Max(v.MaxY, y)
}

// Pad widens each side by frac of the span, with a minimum span of minSpan.
func (v Viewport) Pad(frac, minSpan float64) Viewport {
	spanX := math.Max(v.MaxX-v.MinX, minSpan)
	spanY := math.Max(v.MaxY-v.MinY, minSpan)
	cx, cy := (v.MinX+v.MaxX)/2, (v.MinY+v.MaxY)/2
	hx, hy := spanX*(0.5+frac), spanY*(0.5+frac)
	return Viewport{MinX: cx - hx, MaxX: cx + hx, MinY: cy - hy, MaxY: cy + hy}
}

// Project returns the dot for (x, y) on a canvas of w x h dots.
func (v Viewport) Project(x, y float64, w, h int) (int, int) {
	spanX, spanY := v.MaxX-v.MinX, v.MaxY-v.MinY
	if spanX <= 0 {
		spanX = 1
	}
	if spanY <= 0 {
		spanY = 1
	}
	px := int(math.Round((x - v.MinX) / spanX * float64(w-1)))
	py := int(math.Round((v.MaxY - y) / spanY * float64(h-1)))
	return px, py
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
