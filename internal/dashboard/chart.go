package dashboard

import (
	"fmt"
	"math"
	"strings"
)

// Chart layout in SVG user units
const (
	ColumnWidth = 72
	ChartHeight = 92
	chartPad    = 6
	minWidth    = 200
)

// Point is a plotted day
type Point struct {
	X, Y  int
	Value int
	Label string
}

// Chart is the geometry of the daily line chart
type Chart struct {
	Width  int
	Height int
	Points []Point
	Line   string // SVG path data
	Area   string // closed SVG path under the line
}

// NewChart lays out one column per day, scaled to the busiest day
func NewChart(s Stats) Chart {
	c := Chart{
		Width:  max(len(s.Days)*ColumnWidth, minWidth),
		Height: ChartHeight + 2*chartPad,
	}

	for i, d := range s.Days {
		y := ChartHeight + chartPad
		if s.Max > 0 {
			y = int(math.Round((1-float64(d.Count)/float64(s.Max))*ChartHeight)) + chartPad
		}
		c.Points = append(c.Points, Point{
			X:     i*ColumnWidth + ColumnWidth/2,
			Y:     y,
			Value: d.Count,
			Label: d.Label(),
		})
	}

	if len(c.Points) == 0 {
		return c
	}

	var line strings.Builder
	for i, p := range c.Points {
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		if i > 0 {
			line.WriteByte(' ')
		}
		fmt.Fprintf(&line, "%s %d %d", cmd, p.X, p.Y)
	}
	c.Line = line.String()

	base := ChartHeight + chartPad + 2
	first, last := c.Points[0], c.Points[len(c.Points)-1]
	c.Area = fmt.Sprintf("%s L %d %d L %d %d Z", c.Line, last.X, base, first.X, base)
	return c
}
