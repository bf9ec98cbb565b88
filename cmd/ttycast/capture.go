package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// terminalMode captures the mode and window size of a stream so they
// can be restored no matter how the capture loop exits. On streams that
// are not terminals every method is a silent no-op.
type terminalMode struct {
	f     *os.File
	state *term.State
	size  *pty.Winsize
}

func saveTerminalMode(f *os.File) *terminalMode {
	tm := &terminalMode{f: f}
	if st, err := term.GetState(int(f.Fd())); err == nil {
		tm.state = st
	}
	if ws, err := pty.GetsizeFull(f); err == nil {
		tm.size = ws
	}
	return tm
}

// makeRaw switches the stream into raw mode so keystrokes reach the
// child unmodified. restore undoes it.
func (tm *terminalMode) makeRaw() {
	if tm.state != nil {
		term.MakeRaw(int(tm.f.Fd()))
	}
}

func (tm *terminalMode) restore() {
	if tm.size != nil {
		pty.Setsize(tm.f, tm.size)
	}
	if tm.state != nil {
		term.Restore(int(tm.f.Fd()), tm.state)
	}
}

// terminalSize returns the dimensions of f, or 80x24 when f is not a
// terminal.
func terminalSize(f *os.File) (cols, rows int) {
	cols, rows, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return 80, 24
	}
	return cols, rows
}

// capturedChunk is one read from the pty master, stamped when it was
// observed.
type capturedChunk struct {
	data []byte
	at   time.Time
}

// captureStream relays bytes between the caller's streams and a child
// running on a pty, handing every child output chunk to the consumer
// in read order. The stream is one-shot: when Chunks closes, the child
// has been reaped and its exit status is available.
type captureStream struct {
	cmd    *exec.Cmd
	chunks chan capturedChunk

	done chan struct{}
	exit int
	err  error
}

// startCapture spawns args[0] as session leader on a fresh pty sized
// cols x rows, then begins relaying input to the pty master and master
// output to output. output may be nil to capture silently.
func startCapture(args []string, cols, rows int, input, output *os.File) (*captureStream, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}
	pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})

	cs := &captureStream{
		cmd:    cmd,
		chunks: make(chan capturedChunk),
		done:   make(chan struct{}),
	}
	go cs.relay(input, output, ptmx)
	return cs, nil
}

// Chunks yields child output in the order it was observed. The channel
// closes when the child side of the pty is gone.
func (cs *captureStream) Chunks() <-chan capturedChunk {
	return cs.chunks
}

// ExitStatus blocks until the child has been reaped and reports how it
// exited.
func (cs *captureStream) ExitStatus() (int, error) {
	<-cs.done
	return cs.exit, cs.err
}

// relay is the single reader loop. It blocks in select over the input
// stream and the pty master; that wait is its only suspension point, so
// chunks are stamped strictly in observed read order. A failed or empty
// read marks that endpoint finished: a finished input only stops
// forwarding, a finished master ends the loop, since nothing further
// can be captured once the child side is gone.
func (cs *captureStream) relay(input, output, ptmx *os.File) {
	defer close(cs.done)

	inFd := int(input.Fd())
	masterFd := int(ptmx.Fd())
	buf := make([]byte, 4096)

	inputOpen := true
	echoOpen := output != nil

	for {
		var rset unix.FdSet
		rset.Zero()
		rset.Set(masterFd)
		nfds := masterFd + 1
		if inputOpen {
			rset.Set(inFd)
			if inFd >= nfds {
				nfds = inFd + 1
			}
		}

		if _, err := unix.Select(nfds, &rset, nil, nil, nil); err != nil {
			if err == unix.EINTR {
				continue
			}
			break
		}

		if inputOpen && rset.IsSet(inFd) {
			n, err := unix.Read(inFd, buf)
			if err != nil || n == 0 {
				inputOpen = false
			} else if !writeAll(masterFd, buf[:n]) {
				inputOpen = false
			}
		}

		if rset.IsSet(masterFd) {
			n, err := unix.Read(masterFd, buf)
			if err != nil || n == 0 {
				break
			}
			at := time.Now()
			data := make([]byte, n)
			copy(data, buf[:n])
			if echoOpen && !writeAll(int(output.Fd()), data) {
				echoOpen = false
			}
			cs.chunks <- capturedChunk{data: data, at: at}
		}
	}

	close(cs.chunks)
	ptmx.Close()

	if err := cs.cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			cs.exit = exitErr.ExitCode()
		} else {
			cs.err = err
		}
	}
}

func writeAll(fd int, data []byte) bool {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			return false
		}
		data = data[n:]
	}
	return true
}

// captureSource adapts a live capture to a chunkSource, rebasing
// timestamps onto the first observed chunk.
type captureSource struct {
	chunks <-chan capturedChunk
	start  time.Time
	primed bool
}

func (s *captureSource) Next() (timedChunk, bool) {
	c, ok := <-s.chunks
	if !ok {
		return timedChunk{}, false
	}
	if !s.primed {
		s.start = c.at
		s.primed = true
	}
	return timedChunk{data: c.data, time: c.at.Sub(s.start)}, true
}
