package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/robertodauria/speedmatrix/pkg/probe"
)

func TestScaleReferenceThresholds(t *testing.T) {
	s := NewScale(19e6, 12)
	for i, want := range referenceThresholds {
		if got := s.thresholds[i]; got < want-1 || got > want+1 {
			t.Errorf("threshold %d = %v, want %v", i, got, want)
		}
	}
	tests := []struct {
		speed float64
		fill  int
	}{
		{0, 0},
		{100_000, 0},
		{100_001, 1},
		{500_000, 3},
		{12_600_001, 12},
		{18_999_999, 12},
	}
	for _, tt := range tests {
		if got := s.Fill(tt.speed); got != tt.fill {
			t.Errorf("Fill(%v) = %d, want %d", tt.speed, got, tt.fill)
		}
	}
}

func TestScaleFillMonotonic(t *testing.T) {
	for _, width := range []int{6, 12, 20} {
		s := NewScale(50e6, width)
		prev := 0
		for speed := 0.0; speed <= 60e6; speed += 25_000 {
			fill := s.Fill(speed)
			if fill < prev {
				t.Fatalf("width %d: Fill(%v) = %d < %d", width, speed, fill, prev)
			}
			if fill > width {
				t.Fatalf("width %d: Fill(%v) = %d exceeds width", width, speed, fill)
			}
			prev = fill
		}
		if prev != width {
			t.Errorf("width %d: fill at max = %d", width, prev)
		}
	}
}

func TestScaleSaturated(t *testing.T) {
	s := NewScale(19e6, 12)
	for _, speed := range []float64{19e6, 100e6} {
		c := s.Cell(speed)
		if !c.Saturated || c.Fill != 12 {
			t.Errorf("Cell(%v) = %+v, want saturated", speed, c)
		}
		if len(c.Spans) != 1 || c.Spans[0].Style != Saturated {
			t.Errorf("Cell(%v) spans = %+v", speed, c.Spans)
		}
	}
	if s.Cell(18e6).Saturated {
		t.Errorf("Cell below max reported saturated")
	}
}

func TestScaleLabelWidth(t *testing.T) {
	for _, width := range []int{4, 12, 30} {
		s := NewScale(19e6, width)
		for _, speed := range []float64{0, 999, 1.5e6, 19e6, 123e9, -1} {
			if got := s.Label(speed); len(got) != width {
				t.Errorf("Label(%v) = %q, want width %d", speed, got, width)
			}
			if got := s.Cell(speed).Text(); len(got) != width {
				t.Errorf("Cell(%v).Text() = %q, want width %d", speed, got, width)
			}
		}
	}
	if got := NewScale(19e6, 12).Label(1_500_000); got != "1.5 MB/s    " {
		t.Errorf("Label(1.5e6) = %q", got)
	}
}

func TestScaleBands(t *testing.T) {
	s := NewScale(19e6, 12)
	c := s.Cell(13e6)
	want := []Style{Low, Mid, High}
	if len(c.Spans) != len(want) {
		t.Fatalf("spans = %+v", c.Spans)
	}
	for i, span := range c.Spans {
		if span.Style != want[i] {
			t.Errorf("span %d style = %v, want %v", i, span.Style, want[i])
		}
	}
	if len(c.Spans[0].Text) != 6 || len(c.Spans[1].Text) != 3 || len(c.Spans[2].Text) != 3 {
		t.Errorf("band widths = %d/%d/%d, want 6/3/3",
			len(c.Spans[0].Text), len(c.Spans[1].Text), len(c.Spans[2].Text))
	}

	c = s.Cell(500_000)
	if len(c.Spans) != 2 || c.Spans[0].Style != Low || c.Spans[1].Style != Plain {
		t.Errorf("partial cell spans = %+v", c.Spans)
	}
}

// recordingGrid records every call it receives.
type recordingGrid struct {
	calls []string
	fail  error
}

func (g *recordingGrid) Reset(names []string) error {
	g.calls = append(g.calls, "reset "+strings.Join(names, ","))
	return g.fail
}

func (g *recordingGrid) Label(row int, text string) error {
	g.calls = append(g.calls, fmt.Sprintf("label %d %q", row, text))
	return g.fail
}

func (g *recordingGrid) Draw(col, row int, cell Cell) error {
	g.calls = append(g.calls, fmt.Sprintf("draw %d,%d", col, row))
	return g.fail
}

func TestMatrixPlacement(t *testing.T) {
	g := &recordingGrid{}
	m := NewMatrix(g, NewScale(19e6, 12), []string{"a", "b"}, 2, 2)
	ts := time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC)
	rows := []probe.Row{
		{Endpoint: 0, Slot: 0, Time: ts},
		{Endpoint: 1, Slot: 0, Time: ts},
		{Endpoint: 0, Slot: 1, Time: ts},
		{Endpoint: 0, Slot: 1, Kind: probe.Average, Time: ts},
		{Endpoint: 1, Slot: 2, Time: ts},
		// Stale: block 0 is gone.
		{Endpoint: 1, Slot: 1, Time: ts},
	}
	if err := m.Render(rows); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"reset a,b",
		`label 0 "12:30:45"`,
		"draw 0,0",
		"draw 1,0",
		`label 1 ""`,
		"draw 0,1",
		"draw 0,1",
		"reset a,b",
		`label 0 "12:30:45"`,
		"draw 1,0",
	}
	if strings.Join(g.calls, "\n") != strings.Join(want, "\n") {
		t.Errorf("calls:\n%s\nwant:\n%s", strings.Join(g.calls, "\n"), strings.Join(want, "\n"))
	}
}

func TestMatrixPropagatesGridErrors(t *testing.T) {
	boom := errors.New("boom")
	m := NewMatrix(&recordingGrid{fail: boom}, NewScale(19e6, 12), []string{"a"}, 10, 5)
	err := m.Render([]probe.Row{{Endpoint: 0, Slot: 0}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected grid error, got %v", err)
	}
}

func TestANSIGridAddressing(t *testing.T) {
	var out bytes.Buffer
	g := NewANSIGrid(&out, 10, 12)
	if err := g.Reset([]string{"ams", "tokyo"}); err != nil {
		t.Fatal(err)
	}
	header := out.String()
	if !strings.Contains(header, "\x1b[2J") {
		t.Errorf("reset does not clear the screen: %q", header)
	}
	if !strings.Contains(header, "\x1b[1;11H    ams     ") || !strings.Contains(header, "\x1b[1;24H   tokyo    ") {
		t.Errorf("header not centered at absolute columns: %q", header)
	}

	out.Reset()
	s := NewScale(19e6, 12)
	if err := g.Draw(1, 3, s.Cell(500_000)); err != nil {
		t.Fatal(err)
	}
	cell := out.String()
	if !strings.HasPrefix(cell, "\x1b[5;24H") {
		t.Errorf("cell not addressed absolutely: %q", cell)
	}
	if !strings.Contains(cell, ansiStyles[Low]+"500") {
		t.Errorf("low band style missing: %q", cell)
	}

	out.Reset()
	if err := g.Label(3, "12:00:00"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "\x1b[5;1H12:00:00  " {
		t.Errorf("label = %q", out.String())
	}

	out.Reset()
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "\x1b[6;1H") {
		t.Errorf("close did not park the cursor below the grid: %q", out.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("closed")
}

func TestANSIGridWriteError(t *testing.T) {
	g := NewANSIGrid(failingWriter{}, 10, 12)
	if err := g.Draw(0, 0, Cell{}); err == nil {
		t.Fatal("expected a write error")
	}
}

func TestTableGrid(t *testing.T) {
	g := NewTableGrid(nil)
	if err := g.Reset([]string{"ams", "tokyo"}); err != nil {
		t.Fatal(err)
	}
	s := NewScale(19e6, 12)
	if err := g.Draw(1, 0, s.Cell(19e6)); err != nil {
		t.Fatal(err)
	}
	if err := g.Label(0, "12:00:00"); err != nil {
		t.Fatal(err)
	}
	table := g.Table()
	if got := table.GetCell(0, 2).Text; got != "tokyo" {
		t.Errorf("header = %q", got)
	}
	if got := table.GetCell(1, 2).Text; !strings.HasPrefix(got, tableStyles[Saturated]) {
		t.Errorf("saturated cell = %q", got)
	}
	if got := table.GetCell(1, 0).Text; got != "12:00:00" {
		t.Errorf("label = %q", got)
	}

	g.Stop()
	if err := g.Draw(0, 0, Cell{}); !errors.Is(err, ErrStopped) {
		t.Errorf("draw after stop = %v", err)
	}
}
