package main

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hinshun/vt10x"
)

// Cell is one visible character position of the terminal grid. Colors
// are palette-independent names: "foreground"/"background" for the
// terminal defaults, "colorN" for palette entries, "#rrggbb" otherwise.
type Cell struct {
	Ch string `json:"ch"`
	FG string `json:"fg"`
	BG string `json:"bg"`
}

// colorName maps a vt10x color to the name used in the event stream.
func colorName(c vt10x.Color) string {
	switch c {
	case vt10x.DefaultFG:
		return "foreground"
	case vt10x.DefaultBG:
		return "background"
	}
	if c < 256 {
		return fmt.Sprintf("color%d", c)
	}
	return fmt.Sprintf("#%06x", uint32(c)&0xffffff)
}

// Event is one item of a compacted session stream: a single Config
// followed by DisplayLine events.
type Event interface {
	event()
}

// Config is the first event of every stream: the dimensions of the
// recorded terminal.
type Config struct {
	Width  int
	Height int
}

func (Config) event() {}

// DisplayLine describes one visibility interval of one terminal row:
// the cells shown, when they appeared and, once known, for how long.
// Open is true until the row is next redrawn, cleared, or the stream
// ends; while Open the duration carries no meaning.
type DisplayLine struct {
	Row   int
	Cells map[int]Cell
	Start time.Duration
	Dur   time.Duration
	Open  bool
}

func (DisplayLine) event() {}

type wireConfig struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type wireLine struct {
	Type    string       `json:"type"`
	Row     int          `json:"row"`
	Cells   map[int]Cell `json:"cells"`
	StartMs int64        `json:"startTimeMs"`
	DurMs   *int64       `json:"durationMs,omitempty"`
}

// encodeEvent renders an event as one JSON line. durationMs is omitted
// while an event is open; closed events always carry it.
func encodeEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case Config:
		return sonic.Marshal(wireConfig{Type: "config", Width: e.Width, Height: e.Height})
	case DisplayLine:
		w := wireLine{
			Type:    "line",
			Row:     e.Row,
			Cells:   e.Cells,
			StartMs: e.Start.Milliseconds(),
		}
		if !e.Open {
			ms := e.Dur.Milliseconds()
			w.DurMs = &ms
		}
		return sonic.Marshal(w)
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}
}
