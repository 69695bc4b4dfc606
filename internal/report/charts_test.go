package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPieSingleSliceIsFullCircle(t *testing.T) {
	slices := Pie([]Count{{Label: "Cardiology", Value: 4}})
	require.Len(t, slices, 1)
	assert.Equal(t, fullCirclePath, slices[0].Path)
	assert.Equal(t, 100.0, slices[0].Percent)
	assert.Equal(t, "#3b82f6", slices[0].Color)
}

func TestPieQuarters(t *testing.T) {
	slices := Pie([]Count{{Label: "A", Value: 3}, {Label: "B", Value: 1}})
	require.Len(t, slices, 2)

	assert.Equal(t, "M 0 0 L 1 0 A 1 1 0 1 1 0 -1 Z", slices[0].Path)
	assert.Equal(t, "M 0 0 L 0 -1 A 1 1 0 0 1 1 0 Z", slices[1].Path)
	assert.Equal(t, "#ef4444", slices[1].Color)
	assert.Equal(t, 25.0, slices[1].Percent)
}

func TestPieColorsWrap(t *testing.T) {
	var counts []Count
	for i := 0; i < 7; i++ {
		counts = append(counts, Count{Label: string(rune('A' + i)), Value: 1})
	}
	slices := Pie(counts)
	assert.Equal(t, Palette[0], slices[6].Color)
}

func TestPieEmpty(t *testing.T) {
	assert.Empty(t, Pie(nil))
}

func TestBarsScaleToPeak(t *testing.T) {
	bars := Bars([]Count{{Label: "a", Value: 4}, {Label: "b", Value: 1}, {Label: "c", Value: 0}})
	assert.Equal(t, []Bar{
		{Label: "a", Value: 4, Height: 100},
		{Label: "b", Value: 1, Height: 25},
		{Label: "c", Value: 0, Height: 0},
	}, bars)
}

func TestSortCounts(t *testing.T) {
	got := sortCounts(map[string]int{"b": 2, "a": 2, "c": 5})
	assert.Equal(t, []Count{{"c", 5}, {"a", 2}, {"b", 2}}, got)
}
