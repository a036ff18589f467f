// Package render turns rates into colored cells and places them on a grid.
package render

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Style is the background band of a run of characters.
type Style int

const (
	Plain Style = iota
	Low
	Mid
	High
	Saturated
)

// Span is a run of text drawn with one style.
type Span struct {
	Text  string
	Style Style
}

// Cell is a rendered rate: a fixed-width label whose leading Fill
// characters are highlighted.
type Cell struct {
	Spans     []Span
	Fill      int
	Saturated bool
}

// Text returns the label without styling.
func (c Cell) Text() string {
	var b strings.Builder
	for _, s := range c.Spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Reference banding: 12 thresholds for a 19 MB/s maximum. Low rates get
// finer steps than high ones.
var referenceThresholds = []float64{
	100e3, 200e3, 400e3, 600e3, 1.0e6, 1.4e6,
	2.2e6, 3.0e6, 4.6e6, 6.2e6, 9.4e6, 12.6e6,
}

const referenceMax = 19e6

// Scale maps a rate in bytes/s to a Cell Width characters wide.
type Scale struct {
	Max   float64
	Width int

	thresholds []float64
}

// NewScale returns a Scale saturating at saturation. The reference banding
// is rescaled to it and interpolated to width steps.
func NewScale(saturation float64, width int) *Scale {
	s := &Scale{
		Max:        saturation,
		Width:      width,
		thresholds: make([]float64, width),
	}
	n := float64(len(referenceThresholds))
	for k := 1; k <= width; k++ {
		s.thresholds[k-1] = referenceAt(float64(k)*n/float64(width)) * saturation / referenceMax
	}
	return s
}

// referenceAt interpolates the reference curve at the fractional step x in
// [0, len(referenceThresholds)]. Step 0 is a zero rate.
func referenceAt(x float64) float64 {
	at := func(k int) float64 {
		if k == 0 {
			return 0
		}
		return referenceThresholds[k-1]
	}
	n := len(referenceThresholds)
	lo := int(math.Floor(x))
	if lo >= n {
		return at(n)
	}
	frac := x - float64(lo)
	return at(lo) + (at(lo+1)-at(lo))*frac
}

// Fill returns how many characters of the label are highlighted for speed.
// It never decreases as speed grows.
func (s *Scale) Fill(speed float64) int {
	if math.IsNaN(speed) || speed <= 0 {
		return 0
	}
	if speed >= s.Max {
		return s.Width
	}
	// Number of thresholds strictly below speed.
	return sort.SearchFloat64s(s.thresholds, speed)
}

// band returns the style of the i-th highlighted character.
func (s *Scale) band(i int) Style {
	switch {
	case i < s.Width/2:
		return Low
	case i < s.Width*3/4:
		return Mid
	default:
		return High
	}
}

// Label formats speed as a human readable rate, padded or truncated to
// exactly Width characters.
func (s *Scale) Label(speed float64) string {
	if math.IsNaN(speed) || speed < 0 {
		speed = 0
	}
	text := humanize.Bytes(uint64(speed)) + "/s"
	text = fmt.Sprintf("%-*s", s.Width, text)
	return text[:s.Width]
}

// Cell renders speed.
func (s *Scale) Cell(speed float64) Cell {
	label := s.Label(speed)
	if speed >= s.Max {
		return Cell{
			Spans:     []Span{{Text: label, Style: Saturated}},
			Fill:      s.Width,
			Saturated: true,
		}
	}
	fill := s.Fill(speed)
	c := Cell{Fill: fill}
	start := 0
	for i := 1; i <= s.Width; i++ {
		if i < s.Width && s.styleAt(i, fill) == s.styleAt(start, fill) {
			continue
		}
		c.Spans = append(c.Spans, Span{Text: label[start:i], Style: s.styleAt(start, fill)})
		start = i
	}
	return c
}

func (s *Scale) styleAt(i, fill int) Style {
	if i >= fill {
		return Plain
	}
	return s.band(i)
}
