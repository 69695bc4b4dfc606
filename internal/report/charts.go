package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Palette colors pie slices in order.
var Palette = []string{"#3b82f6", "#ef4444", "#10b981", "#f59e0b", "#8b5cf6", "#ec4899"}

const fullCirclePath = "M 1 0 A 1 1 0 1 1 -1 0 A 1 1 0 1 1 1 0 Z"

type Count struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Slice is one pie sector drawn in a unit circle viewBox centred on 0,0.
type Slice struct {
	Label   string  `json:"label"`
	Value   int     `json:"value"`
	Percent float64 `json:"percent"`
	Color   string  `json:"color"`
	Path    string  `json:"path"`
}

// Bar is one bar of a chart; Height is a percentage of the tallest bar.
type Bar struct {
	Label  string  `json:"label"`
	Value  int     `json:"value"`
	Height float64 `json:"height"`
}

// sortCounts orders by value descending, then label.
func sortCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for label, v := range m {
		out = append(out, Count{Label: label, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Pie turns counts into sectors, walking clockwise from angle 0.
func Pie(counts []Count) []Slice {
	total := 0
	for _, c := range counts {
		total += c.Value
	}
	if total == 0 {
		return []Slice{}
	}

	slices := make([]Slice, 0, len(counts))
	cumulative := 0.0
	for i, c := range counts {
		percent := float64(c.Value) / float64(total)
		s := Slice{
			Label:   c.Label,
			Value:   c.Value,
			Percent: percent * 100,
			Color:   Palette[i%len(Palette)],
		}

		if c.Value == total {
			s.Path = fullCirclePath
			slices = append(slices, s)
			cumulative += percent
			continue
		}

		x0, y0 := point(cumulative)
		cumulative += percent
		x1, y1 := point(cumulative)

		large := 0
		if percent > 0.5 {
			large = 1
		}
		s.Path = fmt.Sprintf("M 0 0 L %s %s A 1 1 0 %d 1 %s %s Z", x0, y0, large, x1, y1)
		slices = append(slices, s)
	}
	return slices
}

func point(fraction float64) (string, string) {
	angle := 2 * math.Pi * fraction
	return coord(math.Cos(angle)), coord(math.Sin(angle))
}

func coord(v float64) string {
	v = math.Round(v*1e4) / 1e4
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Bars scales counts against the largest one.
func Bars(counts []Count) []Bar {
	peak := 1
	for _, c := range counts {
		if c.Value > peak {
			peak = c.Value
		}
	}

	bars := make([]Bar, len(counts))
	for i, c := range counts {
		bars[i] = Bar{Label: c.Label, Value: c.Value, Height: float64(c.Value) / float64(peak) * 100}
	}
	return bars
}
