package main

import (
	"maps"
	"slices"
	"time"
)

// lineTracker turns per-frame change sets into row visibility
// intervals. Each row has at most one open event at a time; it is
// closed when the row is next redrawn, cleared, or the session ends.
// For any row the closed events form a non-overlapping, time-ordered
// sequence.
type lineTracker struct {
	lastCursor *cursorState
	open       map[int]DisplayLine
}

func newLineTracker() *lineTracker {
	return &lineTracker{open: make(map[int]DisplayLine)}
}

// feed processes one frame rendered at time now. It returns the closing
// events for redrawn rows followed by the opening events for rows that
// now show content.
//
// A cursor move (or visibility toggle) forces both the old and the new
// cursor rows to be reconsidered even when the grid under them did not
// change, so the cursor glyph never lingers on a stale row.
func (t *lineTracker) feed(view []rowCells, changed []int, cur cursorState, now time.Duration) []DisplayLine {
	redraw := make(map[int]rowCells, len(changed))
	for _, row := range changed {
		redraw[row] = cloneRow(view[row])
	}

	cursorMoved := t.lastCursor == nil || *t.lastCursor != cur
	if cursorMoved {
		if !cur.hidden {
			if _, ok := redraw[cur.row]; !ok {
				redraw[cur.row] = cloneRow(view[cur.row])
			}
		}
		if t.lastCursor != nil && !t.lastCursor.hidden {
			if _, ok := redraw[t.lastCursor.row]; !ok {
				redraw[t.lastCursor.row] = cloneRow(view[t.lastCursor.row])
			}
		}
	}

	// Overlay the cursor as a reverse-video glyph atop whatever cell
	// it covers, a blank if the position is empty.
	if !cur.hidden {
		if line, ok := redraw[cur.row]; ok {
			under, covered := line[cur.col]
			if !covered {
				under = Cell{Ch: " ", FG: "foreground", BG: "background"}
			}
			line[cur.col] = Cell{Ch: under.Ch, FG: under.BG, BG: under.FG}
		}
	}

	var evs []DisplayLine
	rowsDue := slices.Sorted(maps.Keys(redraw))

	// A redrawn row ends its previous interval even when its new
	// content is empty: the old cells are no longer visible.
	for _, row := range rowsDue {
		if ev, ok := t.open[row]; ok {
			ev.Dur = now - ev.Start
			ev.Open = false
			evs = append(evs, ev)
			delete(t.open, row)
		}
	}

	for _, row := range rowsDue {
		line := redraw[row]
		if len(line) == 0 {
			continue
		}
		ev := DisplayLine{Row: row, Cells: line, Start: now, Open: true}
		t.open[row] = ev
		evs = append(evs, ev)
	}

	c := cur
	t.lastCursor = &c
	return evs
}

// finish closes every still-open row at the end of the compacted
// timeline.
func (t *lineTracker) finish(end time.Duration) []DisplayLine {
	var evs []DisplayLine
	for _, row := range slices.Sorted(maps.Keys(t.open)) {
		ev := t.open[row]
		ev.Dur = end - ev.Start
		ev.Open = false
		evs = append(evs, ev)
	}
	t.open = make(map[int]DisplayLine)
	return evs
}

func cloneRow(line rowCells) rowCells {
	out := make(rowCells, len(line))
	maps.Copy(out, line)
	return out
}
