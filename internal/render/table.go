package render

import (
	"errors"
	"strings"
	"sync"

	"github.com/rivo/tview"
)

// ErrStopped is returned by TableGrid once its application has stopped.
var ErrStopped = errors.New("table application stopped")

var tableStyles = map[Style]string{
	Low:       "[black:white]",
	Mid:       "[black:purple]",
	High:      "[black:red]",
	Saturated: "[white:red]",
}

// TableGrid draws on a tview table. Updates run on the application's event
// loop; without an application they are applied directly.
type TableGrid struct {
	app   *tview.Application
	table *tview.Table

	mu      sync.Mutex
	stopped bool
}

// NewTableGrid returns a grid drawing into a new table. When app is not nil
// the table becomes its root.
func NewTableGrid(app *tview.Application) *TableGrid {
	table := tview.NewTable().
		SetFixed(1, 1).
		SetSelectable(false, false)
	table.SetBorder(true).SetTitle(" speedmatrix ")
	if app != nil {
		app.SetRoot(table, true)
	}
	return &TableGrid{app: app, table: table}
}

// Table returns the underlying table.
func (g *TableGrid) Table() *tview.Table {
	return g.table
}

// Stop makes later updates fail with ErrStopped.
func (g *TableGrid) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
}

func (g *TableGrid) update(f func()) error {
	g.mu.Lock()
	stopped := g.stopped
	g.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if g.app == nil {
		f()
		return nil
	}
	g.app.QueueUpdateDraw(f)
	return nil
}

// Reset clears the table and draws the header.
func (g *TableGrid) Reset(names []string) error {
	return g.update(func() {
		g.table.Clear()
		g.table.SetCell(0, 0, tview.NewTableCell(""))
		for i, name := range names {
			g.table.SetCell(0, i+1, tview.NewTableCell(tview.Escape(name)).
				SetAlign(tview.AlignCenter))
		}
	})
}

// Label sets the label column of row.
func (g *TableGrid) Label(row int, text string) error {
	return g.update(func() {
		g.table.SetCell(row+1, 0, tview.NewTableCell(tview.Escape(text)))
	})
}

// Draw sets the cell at (col, row).
func (g *TableGrid) Draw(col, row int, cell Cell) error {
	text := markup(cell)
	return g.update(func() {
		g.table.SetCell(row+1, col+1, tview.NewTableCell(text))
	})
}

// markup converts cell to tview color tags.
func markup(cell Cell) string {
	var b strings.Builder
	for _, s := range cell.Spans {
		text := tview.Escape(s.Text)
		if tag, ok := tableStyles[s.Style]; ok {
			b.WriteString(tag)
			b.WriteString(text)
			b.WriteString("[-:-]")
			continue
		}
		b.WriteString(text)
	}
	return b.String()
}
