package render

import (
	"github.com/robertodauria/speedmatrix/pkg/probe"
)

// Grid is a display surface with a header row, a label column and one
// column per endpoint. Positions are absolute: row 0 is the first row under
// the header.
type Grid interface {
	// Reset clears the surface and draws the header.
	Reset(names []string) error
	// Label writes the label of row.
	Label(row int, text string) error
	// Draw writes cell at (col, row).
	Draw(col, row int, cell Cell) error
}

// Matrix places rows on a Grid: one column per endpoint, one row per slot.
// Slots are grouped in blocks of blockRows; each new block starts from a
// fresh grid.
type Matrix struct {
	grid       Grid
	scale      *Scale
	names      []string
	blockRows  int
	labelEvery int

	block   int
	labeled int
}

// NewMatrix returns a Matrix drawing on grid.
func NewMatrix(grid Grid, scale *Scale, names []string, blockRows, labelEvery int) *Matrix {
	if blockRows < 1 {
		blockRows = 1
	}
	return &Matrix{
		grid:       grid,
		scale:      scale,
		names:      names,
		blockRows:  blockRows,
		labelEvery: labelEvery,
		block:      -1,
		labeled:    -1,
	}
}

// Render draws rows in order. A later row for the same cell overwrites the
// earlier one. Rows of a block that was already replaced are dropped.
func (m *Matrix) Render(rows []probe.Row) error {
	for _, r := range rows {
		block := r.Slot / m.blockRows
		if block < m.block {
			continue
		}
		if block > m.block {
			if err := m.grid.Reset(m.names); err != nil {
				return err
			}
			m.block = block
		}
		row := r.Slot % m.blockRows
		if r.Slot > m.labeled {
			text := ""
			if m.labelEvery > 0 && r.Slot%m.labelEvery == 0 {
				text = r.Time.Format("15:04:05")
			}
			if err := m.grid.Label(row, text); err != nil {
				return err
			}
			m.labeled = r.Slot
		}
		if err := m.grid.Draw(r.Endpoint, row, m.scale.Cell(r.Rate)); err != nil {
			return err
		}
	}
	return nil
}
