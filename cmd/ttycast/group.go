package main

import (
	"fmt"
	"time"
)

// frame is one compacted unit of terminal output: the bytes that became
// visible at start, held on screen for dur until the next frame.
type frame struct {
	data  []byte
	start time.Duration
	dur   time.Duration
}

// frameGrouper merges timestamped output chunks into frames no shorter
// than min. Chunks arriving closer together than min are accumulated
// into the pending frame; this avoids zero-duration frames, which break
// SVG animation timing. When max is set, any longer gap is clamped to
// max and the excess is dropped from the emitted timeline for good.
//
// Every emitted frame except the final one has dur >= min, and frame
// start times strictly increase, partitioning the compacted timeline
// without gaps.
type frameGrouper struct {
	min  time.Duration
	max  time.Duration // 0 means no cap
	last time.Duration // duration assigned to the final frame

	acc     []byte
	emitted time.Duration // timeline position of the pending frame
	dropped time.Duration // idle time removed by clamping
}

func newFrameGrouper(min, max, last time.Duration) *frameGrouper {
	if min <= 0 {
		panic(fmt.Sprintf("frameGrouper: min duration must be positive, got %v", min))
	}
	return &frameGrouper{min: min, max: max, last: last}
}

// add feeds one chunk, timestamped relative to the first chunk of the
// stream. It returns the completed frame, if this chunk finished one.
// Chunk times must be non-decreasing; anything else is a caller bug.
func (g *frameGrouper) add(t time.Duration, data []byte) (frame, bool) {
	elapsed := t - (g.emitted + g.dropped)
	if elapsed < 0 {
		panic(fmt.Sprintf("frameGrouper: chunk at %v arrived after timeline position %v", t, g.emitted+g.dropped))
	}

	var out frame
	emit := false
	if elapsed >= g.min {
		if g.max > 0 && elapsed > g.max {
			g.dropped += elapsed - g.max
			elapsed = g.max
		}
		out = frame{data: g.acc, start: g.emitted, dur: elapsed}
		emit = true
		g.acc = nil
		g.emitted += elapsed
	}

	g.acc = append(g.acc, data...)
	return out, emit
}

// flush emits the trailing frame once input is exhausted. Nothing
// bounds the final frame from behind, so it gets the configured last
// duration.
func (g *frameGrouper) flush() (frame, bool) {
	if len(g.acc) == 0 {
		return frame{}, false
	}
	out := frame{data: g.acc, start: g.emitted, dur: g.last}
	g.acc = nil
	return out, true
}
