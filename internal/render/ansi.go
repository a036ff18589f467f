package render

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

const (
	csi         = "\x1b["
	clearScreen = csi + "2J" + csi + "H"
	hideCursor  = csi + "?25l"
	showCursor  = csi + "?25h"
	resetStyle  = csi + "0m"
)

var ansiStyles = map[Style]string{
	Low:       csi + "0;30;47m",
	Mid:       csi + "0;30;45m",
	High:      csi + "0;30;41m",
	Saturated: csi + "0;37;41m",
}

// ANSIGrid draws on a terminal using absolute cursor addressing. Line 1 is
// the header; grid row r is on line r+2. Column c starts at
// headerWidth + c*(columnWidth+1) + 1.
type ANSIGrid struct {
	mu          sync.Mutex
	w           io.Writer
	headerWidth int
	columnWidth int
	buf         bytes.Buffer
	rows        int
}

// NewANSIGrid returns a grid writing escape sequences to w.
func NewANSIGrid(w io.Writer, headerWidth, columnWidth int) *ANSIGrid {
	return &ANSIGrid{
		w:           w,
		headerWidth: headerWidth,
		columnWidth: columnWidth,
	}
}

func (g *ANSIGrid) column(col int) int {
	return g.headerWidth + col*(g.columnWidth+1) + 1
}

func (g *ANSIGrid) moveTo(x, y int) {
	fmt.Fprintf(&g.buf, "%s%d;%dH", csi, y, x)
}

// flush writes the buffered sequence with a single Write.
func (g *ANSIGrid) flush() error {
	defer g.buf.Reset()
	_, err := g.w.Write(g.buf.Bytes())
	return err
}

// Reset clears the screen and draws the centered endpoint names.
func (g *ANSIGrid) Reset(names []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buf.WriteString(hideCursor + resetStyle + clearScreen)
	for i, name := range names {
		g.moveTo(g.column(i), 1)
		g.buf.WriteString(center(name, g.columnWidth))
	}
	g.rows = 0
	return g.flush()
}

// Label writes text left-aligned in the label column of row.
func (g *ANSIGrid) Label(row int, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.moveTo(1, row+2)
	g.buf.WriteString(fit(text, g.headerWidth))
	g.track(row)
	return g.flush()
}

// Draw writes cell at (col, row).
func (g *ANSIGrid) Draw(col, row int, cell Cell) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.moveTo(g.column(col), row+2)
	for _, s := range cell.Spans {
		if code, ok := ansiStyles[s.Style]; ok {
			g.buf.WriteString(code)
			g.buf.WriteString(s.Text)
			g.buf.WriteString(resetStyle)
			continue
		}
		g.buf.WriteString(s.Text)
	}
	g.track(row)
	return g.flush()
}

func (g *ANSIGrid) track(row int) {
	if row+1 > g.rows {
		g.rows = row + 1
	}
}

// Close moves the cursor below the last drawn row and shows it again.
func (g *ANSIGrid) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buf.WriteString(resetStyle)
	g.moveTo(1, g.rows+2)
	g.buf.WriteString(showCursor)
	return g.flush()
}

// fit pads or truncates s to exactly width bytes.
func fit(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return fmt.Sprintf("%-*s", width, s)
}

// center centers s in width bytes, truncating it if needed.
func center(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	left := (width - len(s)) / 2
	return fmt.Sprintf("%*s%s%*s", left, "", s, width-len(s)-left, "")
}
