package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "record":
		handleRecord(os.Args[2:])
	case "events":
		handleEvents(os.Args[2:])
	case "stream":
		handleStream(os.Args[2:])
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: ttycast <command> [options] [-- cmd args...]

Commands:
  record [-cols N] [-rows N] [-o FILE] [-- cmd...]   Record a terminal session to an asciicast v2 file
  events [options] FILE                              Derive the compacted line-event stream from a recording
  stream [-addr ADDR] [-o FILE] [-- cmd...]          Record and broadcast live line events to WebSocket viewers
  help                                               Show this help message

events options:
  -min-frame-duration D    Merge output bursts closer together than D (default 1ms)
  -max-frame-duration D    Cap idle gaps between frames at D (default: recording's idle_time_limit, if any)
  -last-frame-duration D   Duration assigned to the final frame (default 1s)

Examples:
  ttycast record -o demo.cast                        Record an interactive $SHELL session
  ttycast record -- htop                             Record a specific command
  ttycast events -max-frame-duration 2s demo.cast    Print line events as JSON, one per line
  ttycast stream -addr :9898                         Watch live at ws://localhost:9898/events
`)
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "sh"
}

func handleRecord(args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	cols := fs.Int("cols", 0, "Terminal columns (defaults to the current terminal, or 80)")
	rows := fs.Int("rows", 0, "Terminal rows (defaults to the current terminal, or 24)")
	out := fs.String("o", "", "Output file (defaults to ttycast-<uuid>.cast)")
	fs.Parse(args)

	cmdArgs := fs.Args()
	if len(cmdArgs) == 0 {
		cmdArgs = []string{defaultShell()}
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("ttycast-%s.cast", uuid.New().String())
	}

	exit, err := runRecord(cmdArgs, *cols, *rows, path)
	if err != nil {
		log.Fatalf("record: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Recording saved to %s\n", path)
	os.Exit(exit)
}

// runRecord captures a session to an asciicast file and returns the
// child's exit status. The caller's terminal mode is restored on every
// return path.
func runRecord(cmdArgs []string, cols, rows int, path string) (int, error) {
	defCols, defRows := terminalSize(os.Stdin)
	if cols <= 0 {
		cols = defCols
	}
	if rows <= 0 {
		rows = defRows
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cw, err := newCastWriter(f, castHeader{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: time.Now().Unix(),
		Command:   strings.Join(cmdArgs, " "),
	})
	if err != nil {
		return 0, err
	}

	mode := saveTerminalMode(os.Stdin)
	defer mode.restore()
	mode.makeRaw()

	cs, err := startCapture(cmdArgs, cols, rows, os.Stdin, os.Stdout)
	if err != nil {
		return 0, err
	}

	src := &captureSource{chunks: cs.Chunks()}
	if err := copyChunks(src, cw); err != nil {
		return 0, err
	}

	exit, err := cs.ExitStatus()
	if err != nil {
		return 0, fmt.Errorf("wait for child: %w", err)
	}
	return exit, nil
}

func handleEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	min := fs.Duration("min-frame-duration", time.Millisecond, "Merge output bursts closer together than this")
	max := fs.Duration("max-frame-duration", 0, "Cap idle gaps between frames (0: use the recording's idle_time_limit)")
	last := fs.Duration("last-frame-duration", time.Second, "Duration assigned to the final frame")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: ttycast events [options] FILE\n")
		os.Exit(1)
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		log.Fatalf("events: %v", err)
	}
	defer f.Close()

	reader, err := newCastReader(f)
	if err != nil {
		log.Fatalf("events: %s: %v", fs.Arg(0), err)
	}

	se := newSessionEvents(reader.Header(), reader, sessionOpts{
		minFrame:  *min,
		maxFrame:  *max,
		lastFrame: *last,
	})

	w := bufio.NewWriter(os.Stdout)
	for {
		ev, ok := se.Next()
		if !ok {
			break
		}
		line, err := encodeEvent(ev)
		if err != nil {
			log.Fatalf("events: %v", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("events: %v", err)
	}
	if err := reader.Err(); err != nil {
		log.Fatalf("events: %s: %v", fs.Arg(0), err)
	}
}

func handleStream(args []string) {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	addr := fs.String("addr", ":9898", "Listen address for WebSocket viewers")
	out := fs.String("o", "", "Also write an asciicast v2 file")
	cols := fs.Int("cols", 0, "Terminal columns (defaults to the current terminal, or 80)")
	rows := fs.Int("rows", 0, "Terminal rows (defaults to the current terminal, or 24)")
	fs.Parse(args)

	cmdArgs := fs.Args()
	if len(cmdArgs) == 0 {
		cmdArgs = []string{defaultShell()}
	}

	exit, err := runStream(cmdArgs, *cols, *rows, *addr, *out)
	if err != nil {
		log.Fatalf("stream: %v", err)
	}
	os.Exit(exit)
}

// runStream records a session while broadcasting its line events to
// WebSocket viewers at /events.
func runStream(cmdArgs []string, cols, rows int, addr, outPath string) (int, error) {
	defCols, defRows := terminalSize(os.Stdin)
	if cols <= 0 {
		cols = defCols
	}
	if rows <= 0 {
		rows = defRows
	}

	hub := newEventHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", hub.handleViewer)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("stream server: %v", err)
		}
	}()
	defer srv.Close()
	defer hub.Close()
	log.Printf("Streaming line events at ws://%s/events", addr)

	header := castHeader{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: time.Now().Unix(),
		Command:   strings.Join(cmdArgs, " "),
	}

	mode := saveTerminalMode(os.Stdin)
	defer mode.restore()
	mode.makeRaw()

	cs, err := startCapture(cmdArgs, cols, rows, os.Stdin, os.Stdout)
	if err != nil {
		return 0, err
	}

	var src chunkSource = &captureSource{chunks: cs.Chunks()}
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		cw, err := newCastWriter(f, header)
		if err != nil {
			return 0, err
		}
		defer cw.Flush()
		src = &teeSource{src: src, cw: cw}
	}

	se := newSessionEvents(header, src, sessionOpts{})
	for {
		ev, ok := se.Next()
		if !ok {
			break
		}
		line, err := encodeEvent(ev)
		if err != nil {
			return 0, err
		}
		hub.Broadcast(line)
	}

	exit, err := cs.ExitStatus()
	if err != nil {
		return 0, fmt.Errorf("wait for child: %w", err)
	}
	return exit, nil
}

// copyChunks writes every chunk to the recording. The source is drained
// even after a write error: a live capture behind it blocks the relay
// on each chunk, and the child is only reaped once the relay finishes.
func copyChunks(src chunkSource, cw *castWriter) error {
	var writeErr error
	for {
		chunk, ok := src.Next()
		if !ok {
			break
		}
		if writeErr != nil {
			continue
		}
		writeErr = cw.WriteChunk(chunk.time, chunk.data)
	}
	if writeErr != nil {
		return writeErr
	}
	return cw.Flush()
}

// teeSource passes chunks through while appending them to a recording.
type teeSource struct {
	src chunkSource
	cw  *castWriter
}

func (t *teeSource) Next() (timedChunk, bool) {
	chunk, ok := t.src.Next()
	if !ok {
		return timedChunk{}, false
	}
	if err := t.cw.WriteChunk(chunk.time, chunk.data); err != nil {
		log.Printf("write recording: %v", err)
	}
	return chunk, true
}
