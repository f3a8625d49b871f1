package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"
	"golang.org/x/term"
)

// Series is one named line on a plot.
type Series struct {
	Name   string
	Values []float64
}

// PlotOptions sizes and decorates a plot. Zero Width fits the terminal and
// zero Height uses a default.
type PlotOptions struct {
	Title  string
	Width  int
	Height int
	Color  bool
}

type dash struct {
	name   string
	period int
	on     int
}

const (
	defaultPlotHeight = 8
	minPlotWidth      = 10
	fallbackTermWidth = 80
	axisTop           = "max"
	axisMid           = "mid"
	axisBottom        = "min"
	axisSeparator     = " │ "
	ansiReset         = "\x1b[0m"
)

var dashes = []dash{
	{name: "solid", period: 1, on: 1},
	{name: "dashed", period: 6, on: 3},
	{name: "dotted", period: 4, on: 1},
}

var seriesColors = []string{"\x1b[36m", "\x1b[33m", "\x1b[35m", "\x1b[32m"}

// canvas holds braille dot masks, one per terminal cell. Dot coordinates
// are two per cell horizontally and four vertically.
type canvas [][]uint8

func newCanvas(width, height int) canvas {
	c := make(canvas, height)
	for y := range c {
		c[y] = make([]uint8, width)
	}
	return c
}

func (c canvas) dot(x, y int) {
	cy, cx := y/4, x/2
	if x < 0 || y < 0 || cy >= len(c) || cx >= len(c[cy]) {
		return
	}
	c[cy][cx] |= dotBit(x%2, y%4)
}

// dotBit maps a dot inside a cell to its bit in the U+2800 block.
func dotBit(col, row int) uint8 {
	if row == 3 {
		return 0x40 << col
	}
	return 1 << (row + 3*col)
}

// PlotSeries draws series as braille lines, each scaled to its own range.
func PlotSeries(w io.Writer, series []Series, opts PlotOptions) error {
	series = lo.Filter(series, func(s Series, _ int) bool { return len(s.Values) > 0 })
	if len(series) == 0 {
		return nil
	}
	width := opts.Width
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	width = max(width, minPlotWidth)
	height := opts.Height
	if height <= 0 {
		height = defaultPlotHeight
	}

	layers := make([]canvas, len(series))
	ranges := make([][2]float64, len(series))
	for i, s := range series {
		values := resample(s.Values, width)
		low, high := valueRange(values)
		ranges[i] = [2]float64{low, high}
		layers[i] = newCanvas(width, height)
		traceLine(layers[i], values, low, high, dashes[i%len(dashes)])
	}

	if opts.Title != "" {
		if _, err := fmt.Fprintln(w, opts.Title); err != nil {
			return err
		}
	}
	labels := axisLabels(height)
	labelWidth := runewidth.StringWidth(axisTop)
	for y := 0; y < height; y++ {
		var row strings.Builder
		row.WriteString(runewidth.FillLeft(labels[y], labelWidth))
		row.WriteString(axisSeparator)
		for x := 0; x < width; x++ {
			mask, owner := mergeCell(layers, x, y)
			ch := string(rune(0x2800 + int(mask)))
			if opts.Color && owner >= 0 {
				ch = seriesColors[owner%len(seriesColors)] + ch + ansiReset
			}
			row.WriteString(ch)
		}
		if _, err := fmt.Fprintln(w, row.String()); err != nil {
			return err
		}
	}
	for i, s := range series {
		label := fmt.Sprintf("%s (%s) %.0f..%.0f", s.Name, dashes[i%len(dashes)].name, ranges[i][0], ranges[i][1])
		if opts.Color {
			label = seriesColors[i%len(seriesColors)] + label + ansiReset
		}
		if _, err := fmt.Fprintln(w, "  "+label); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// PlotWidthFor returns the plot area that fits in totalWidth columns next to
// the axis.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	axis := runewidth.StringWidth(axisTop) + runewidth.StringWidth(axisSeparator)
	return max(totalWidth-axis, minPlotWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return fallbackTermWidth
	}
	return width
}

func axisLabels(height int) []string {
	labels := make([]string, height)
	labels[0] = axisTop
	if height > 2 {
		labels[height/2] = axisMid
	}
	if height > 1 {
		labels[height-1] = axisBottom
	}
	return labels
}

// valueRange widens a flat series so it draws through the middle.
func valueRange(values []float64) (float64, float64) {
	low, high := lo.Min(values), lo.Max(values)
	if math.Abs(high-low) < 1e-9 {
		return low - 1, high + 1
	}
	return low, high
}

func traceLine(c canvas, values []float64, low, high float64, d dash) {
	rows := len(c) * 4
	prevX, prevY := -1, -1
	for i, v := range values {
		x := i * 2
		y := int(math.Round((high - v) / (high - low) * float64(rows-1)))
		y = max(0, min(rows-1, y))
		if prevX < 0 {
			if d.draws(x) {
				c.dot(x, y)
			}
		} else {
			bresenham(prevX, prevY, x, y, func(px, py int) {
				if d.draws(px) {
					c.dot(px, py)
				}
			})
		}
		prevX, prevY = x, y
	}
}

func (d dash) draws(x int) bool {
	if d.period <= 1 {
		return true
	}
	return x%d.period < d.on
}

func mergeCell(layers []canvas, x, y int) (uint8, int) {
	var mask uint8
	owner := -1
	for i, c := range layers {
		if bits := c[y][x]; bits != 0 {
			if owner < 0 {
				owner = i
			}
			mask |= bits
		}
	}
	return mask, owner
}

// resample fits values to width points: buckets are averaged when there
// are more values than columns, and interpolated when there are fewer.
func resample(values []float64, width int) []float64 {
	n := len(values)
	out := make([]float64, width)
	switch {
	case n == width:
		copy(out, values)
	case n > width:
		for i := range out {
			start := i * n / width
			end := max((i+1)*n/width, start+1)
			out[i] = lo.Sum(values[start:end]) / float64(end-start)
		}
	case n == 1 || width == 1:
		for i := range out {
			out[i] = values[0]
		}
	default:
		for i := range out {
			pos := float64(i) * float64(n-1) / float64(width-1)
			idx := min(int(pos), n-2)
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

func bresenham(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
