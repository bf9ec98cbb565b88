package main

import (
	"time"
)

// timedChunk is one piece of child output, timestamped relative to the
// first chunk of its stream.
type timedChunk struct {
	data []byte
	time time.Duration
}

// chunkSource yields output chunks in time order. Sources are one-shot:
// once Next returns false the stream is exhausted for good.
type chunkSource interface {
	Next() (timedChunk, bool)
}

// sliceSource replays an in-memory chunk sequence.
type sliceSource struct {
	chunks []timedChunk
	i      int
}

func (s *sliceSource) Next() (timedChunk, bool) {
	if s.i >= len(s.chunks) {
		return timedChunk{}, false
	}
	c := s.chunks[s.i]
	s.i++
	return c, true
}

// sessionOpts are the compaction parameters exposed to callers.
type sessionOpts struct {
	minFrame  time.Duration // floor under emitted frame durations; default 1ms
	maxFrame  time.Duration // idle cap; 0 falls back to the recording's idle-time hint
	lastFrame time.Duration // duration of the final frame; default 1s
}

// sessionEvents computes the line-event stream of a recorded session:
// one Config followed by DisplayLine open/close events, pulled one at a
// time. Frames are compacted, fed through the terminal emulator, and
// diffed into row intervals as the caller consumes the stream.
type sessionEvents struct {
	src     chunkSource
	grouper *frameGrouper
	screen  *termScreen
	tracker *lineTracker

	queue []Event
	clock time.Duration // end of the last processed frame
	done  bool
}

func newSessionEvents(h castHeader, src chunkSource, opts sessionOpts) *sessionEvents {
	min := opts.minFrame
	if min <= 0 {
		min = time.Millisecond
	}
	last := opts.lastFrame
	if last <= 0 {
		last = time.Second
	}
	max := opts.maxFrame
	if max <= 0 && h.IdleTimeLimit > 0 {
		max = time.Duration(h.IdleTimeLimit * float64(time.Second))
	}

	return &sessionEvents{
		src:     src,
		grouper: newFrameGrouper(min, max, last),
		screen:  newTermScreen(h.Width, h.Height),
		tracker: newLineTracker(),
		queue:   []Event{Config{Width: h.Width, Height: h.Height}},
	}
}

// Next returns the next event, or false once the stream is exhausted.
func (s *sessionEvents) Next() (Event, bool) {
	for len(s.queue) == 0 && !s.done {
		s.pump()
	}
	if len(s.queue) == 0 {
		return nil, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

// pump pulls one chunk from the source and advances the pipeline. When
// the source dries up it flushes the trailing frame and closes every
// row still open at the end of the timeline.
func (s *sessionEvents) pump() {
	chunk, ok := s.src.Next()
	if !ok {
		if f, ok := s.grouper.flush(); ok {
			s.process(f)
		}
		for _, ev := range s.tracker.finish(s.clock) {
			s.queue = append(s.queue, ev)
		}
		s.done = true
		return
	}
	if f, ok := s.grouper.add(chunk.time, chunk.data); ok {
		s.process(f)
	}
}

func (s *sessionEvents) process(f frame) {
	changed, view, cur := s.screen.advance(f.data)
	for _, ev := range s.tracker.feed(view, changed, cur, f.start) {
		s.queue = append(s.queue, ev)
	}
	s.clock = f.start + f.dur
}
