package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
)

// castHeader is the first line of an asciicast v2 recording.
type castHeader struct {
	Version       int        `json:"version"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	Timestamp     int64      `json:"timestamp,omitempty"`
	IdleTimeLimit float64    `json:"idle_time_limit,omitempty"`
	Command       string     `json:"command,omitempty"`
	Theme         *castTheme `json:"theme,omitempty"`
}

// castTheme carries the recording terminal's default colors and its
// colon-separated 8- or 16-color palette.
type castTheme struct {
	FG      string `json:"fg"`
	BG      string `json:"bg"`
	Palette string `json:"palette"`
}

// castEvent is one `[time, type, data]` line of a recording. Type "o"
// is child output; anything else (input, markers, resizes) is carried
// but ignored by the event pipeline.
type castEvent struct {
	Time float64
	Type string
	Data string
}

func (e castEvent) MarshalJSON() ([]byte, error) {
	return sonic.Marshal([]interface{}{e.Time, e.Type, e.Data})
}

func (e *castEvent) UnmarshalJSON(data []byte) error {
	var tuple []interface{}
	if err := sonic.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) < 3 {
		return fmt.Errorf("event line has %d fields, want 3", len(tuple))
	}
	t, ok := tuple[0].(float64)
	if !ok {
		return fmt.Errorf("event time is %T, want number", tuple[0])
	}
	kind, ok := tuple[1].(string)
	if !ok {
		return fmt.Errorf("event type is %T, want string", tuple[1])
	}
	payload, ok := tuple[2].(string)
	if !ok {
		return fmt.Errorf("event data is %T, want string", tuple[2])
	}
	e.Time, e.Type, e.Data = t, kind, payload
	return nil
}

// castWriter streams an asciicast v2 recording: one JSON line for the
// header, then one per captured chunk.
type castWriter struct {
	w *bufio.Writer
}

func newCastWriter(w io.Writer, h castHeader) (*castWriter, error) {
	cw := &castWriter{w: bufio.NewWriter(w)}
	line, err := sonic.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if err := cw.writeLine(line); err != nil {
		return nil, err
	}
	return cw, nil
}

// WriteChunk appends one output chunk, timestamped relative to the
// start of the recording.
func (cw *castWriter) WriteChunk(t time.Duration, data []byte) error {
	line, err := sonic.Marshal(castEvent{Time: t.Seconds(), Type: "o", Data: string(data)})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return cw.writeLine(line)
}

func (cw *castWriter) writeLine(line []byte) error {
	if _, err := cw.w.Write(line); err != nil {
		return err
	}
	return cw.w.WriteByte('\n')
}

func (cw *castWriter) Flush() error {
	return cw.w.Flush()
}

// castReader parses a recording and yields its output chunks. Blank
// lines are tolerated; a malformed line stops the stream and is
// reported by Err.
type castReader struct {
	sc     *bufio.Scanner
	header castHeader
	err    error
}

func newCastReader(r io.Reader) (*castReader, error) {
	sc := bufio.NewScanner(r)
	// Large pastes produce long event lines; raise the scanner limit
	// well past its 64KB default.
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, fmt.Errorf("empty recording")
	}
	var h castHeader
	if err := sonic.Unmarshal(sc.Bytes(), &h); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if h.Version != 2 {
		return nil, fmt.Errorf("unsupported asciicast version %d", h.Version)
	}
	if h.Width <= 0 || h.Height <= 0 {
		return nil, fmt.Errorf("invalid terminal size %dx%d", h.Width, h.Height)
	}
	return &castReader{sc: sc, header: h}, nil
}

func (r *castReader) Header() castHeader {
	return r.header
}

// Next yields the next output chunk of the recording.
func (r *castReader) Next() (timedChunk, bool) {
	if r.err != nil {
		return timedChunk{}, false
	}
	for r.sc.Scan() {
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev castEvent
		if err := sonic.Unmarshal(line, &ev); err != nil {
			r.err = fmt.Errorf("parse event line: %w", err)
			return timedChunk{}, false
		}
		if ev.Type != "o" {
			continue
		}
		return timedChunk{
			data: []byte(ev.Data),
			time: time.Duration(ev.Time * float64(time.Second)),
		}, true
	}
	r.err = r.sc.Err()
	return timedChunk{}, false
}

// Err reports why the stream stopped, nil on clean end of file.
func (r *castReader) Err() error {
	return r.err
}
