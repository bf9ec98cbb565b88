package main

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestCaptureShellSession(t *testing.T) {
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer inR.Close()
	defer inW.Close()
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer outR.Close()
	defer outW.Close()

	cs, err := startCapture([]string{"sh"}, 80, 24, inR, outW)
	if err != nil {
		t.Skipf("cannot allocate pty: %v", err)
	}

	go func() {
		inW.Write([]byte("echo hello\n"))
		inW.Write([]byte("exit\n"))
	}()

	// Drain the echo copy so the relay never blocks on it.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := outR.Read(buf); err != nil {
				return
			}
		}
	}()

	var output strings.Builder
	var prev time.Time
	for c := range cs.Chunks() {
		if c.at.Before(prev) {
			t.Errorf("chunk timestamp went backwards: %v after %v", c.at, prev)
		}
		prev = c.at
		output.Write(c.data)
	}

	exit, err := cs.ExitStatus()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if exit != 0 {
		t.Errorf("exit status = %d, want 0", exit)
	}
	if !strings.Contains(output.String(), "hello") {
		t.Errorf("captured output missing echo result:\n%q", output.String())
	}
}

func TestCaptureExitStatusPropagates(t *testing.T) {
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer inR.Close()
	defer inW.Close()
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer outR.Close()
	defer outW.Close()

	cs, err := startCapture([]string{"sh", "-c", "exit 3"}, 80, 24, inR, outW)
	if err != nil {
		t.Skipf("cannot allocate pty: %v", err)
	}
	for range cs.Chunks() {
	}
	exit, err := cs.ExitStatus()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if exit != 3 {
		t.Errorf("exit status = %d, want 3", exit)
	}
}

func TestCaptureSourceRebasesTime(t *testing.T) {
	ch := make(chan capturedChunk, 2)
	base := time.Now()
	ch <- capturedChunk{data: []byte("a"), at: base}
	ch <- capturedChunk{data: []byte("b"), at: base.Add(10 * time.Millisecond)}
	close(ch)

	src := &captureSource{chunks: ch}
	first, ok := src.Next()
	if !ok || first.time != 0 {
		t.Errorf("first chunk at %v, want 0", first.time)
	}
	second, ok := src.Next()
	if !ok || second.time != 10*time.Millisecond {
		t.Errorf("second chunk at %v, want 10ms", second.time)
	}
	if _, ok := src.Next(); ok {
		t.Error("source yielded a chunk past the end")
	}
}

func TestTerminalModeIsNoOpOffTTY(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	mode := saveTerminalMode(r)
	mode.makeRaw()
	mode.restore()
}

func TestTerminalSizeFallback(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	cols, rows := terminalSize(r)
	if cols != 80 || rows != 24 {
		t.Errorf("size off a tty = %dx%d, want 80x24", cols, rows)
	}
}
