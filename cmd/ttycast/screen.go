package main

import (
	"github.com/hinshun/vt10x"
	"github.com/mattn/go-runewidth"
)

// rowCells is the sparse non-empty content of one terminal row.
type rowCells map[int]Cell

// cursorState is a snapshot of the emulator cursor after a frame.
type cursorState struct {
	row    int
	col    int
	hidden bool
}

// termScreen adapts the vt10x terminal emulator. Instead of exposing a
// mutable dirty set that downstream stages clear in place, advance
// returns the set of rows whose rendered content changed, computed by
// diffing the rendered rows against the previous frame.
type termScreen struct {
	vt   vt10x.Terminal
	cols int
	rows int
	prev []rowCells // rendered rows after the previous advance
}

func newTermScreen(cols, rows int) *termScreen {
	return &termScreen{
		vt:   vt10x.New(vt10x.WithSize(cols, rows)),
		cols: cols,
		rows: rows,
		prev: make([]rowCells, rows),
	}
}

// advance feeds one frame of output into the emulator and returns the
// rows that now render differently, the full rendered view, and the
// cursor snapshot. The returned row maps are fresh each call; callers
// may keep references but must not mutate them.
func (s *termScreen) advance(data []byte) (changed []int, view []rowCells, cur cursorState) {
	if len(data) > 0 {
		s.vt.Write(data)
	}

	view = make([]rowCells, s.rows)
	for row := 0; row < s.rows; row++ {
		view[row] = s.renderRow(row)
		if !equalRowCells(view[row], s.prev[row]) {
			changed = append(changed, row)
		}
	}
	s.prev = view

	c := s.vt.Cursor()
	cur = cursorState{row: c.Y, col: s.displayCol(c.Y, c.X), hidden: !s.vt.CursorVisible()}
	return changed, view, cur
}

// renderRow collects the non-empty cells of a row. A cell is empty when
// it holds a blank rune with default colors. The emulator stores one
// rune per grid slot, so cells are keyed by display column: a wide rune
// occupies one entry and pushes everything after it right by two.
func (s *termScreen) renderRow(row int) rowCells {
	var line rowCells
	col := 0
	for x := 0; x < s.cols; x++ {
		g := s.vt.Cell(x, row)
		if g.Char == 0 || (g.Char == ' ' && g.FG == vt10x.DefaultFG && g.BG == vt10x.DefaultBG) {
			col++
			continue
		}
		if line == nil {
			line = make(rowCells)
		}
		line[col] = Cell{Ch: string(g.Char), FG: colorName(g.FG), BG: colorName(g.BG)}
		col += runeCols(g.Char)
	}
	return line
}

// displayCol maps the emulator's per-rune cursor position to the display
// column, accounting for wide runes earlier in the row.
func (s *termScreen) displayCol(row, x int) int {
	col := 0
	for i := 0; i < x && i < s.cols; i++ {
		col += runeCols(s.vt.Cell(i, row).Char)
	}
	return col
}

func runeCols(r rune) int {
	if w := runewidth.RuneWidth(r); w > 1 {
		return w
	}
	return 1
}

func equalRowCells(a, b rowCells) bool {
	if len(a) != len(b) {
		return false
	}
	for col, c := range a {
		if b[col] != c {
			return false
		}
	}
	return true
}
