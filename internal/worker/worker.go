// Package worker produces landmark frames for the monitor loop, either from a
// Python landmark process or from a recorded JSON-lines file.
package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils" // Using the SafeCommand wrapper
)

// MaxFrameSize bounds one framed message from the worker.
const MaxFrameSize = 1 << 20

// Source yields landmark frames. Next returns io.EOF when the stream ends.
type Source interface {
	Next(ctx context.Context) (types.LandmarkFrame, error)
	Close() error
}

type result struct {
	frame types.LandmarkFrame
	err   error
}

// PythonWorker runs the landmark script and reads its frames from FD 3.
// Stdout and stdin stay free for the script's own use; closing stdin asks it to stop.
type PythonWorker struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	frames chan result
	done   chan struct{}
}

// NewPythonWorker starts python3 -u script args... with a side-channel pipe on FD 3.
func NewPythonWorker(script string, args ...string) (*PythonWorker, error) {
	py := utils.NewSafeCommand("python3", append([]string{"-u", script}, args...)...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("landmark worker failed to start: %w", err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return newPipeWorker(py, stdin, r), nil
}

func newPipeWorker(cmd *utils.SafeCommand, stdin io.WriteCloser, data io.ReadCloser) *PythonWorker {
	pw := &PythonWorker{
		Cmd:      cmd,
		Stdin:    stdin,
		DataPipe: data,
		frames:   make(chan result),
		done:     make(chan struct{}),
	}
	go pw.readLoop()
	return pw
}

// readLoop hands frames over an unbuffered channel, so at most one frame
// waits while the loop is busy.
func (w *PythonWorker) readLoop() {
	defer close(w.frames)
	for {
		frame, err := ReadFrame(w.DataPipe)
		select {
		case w.frames <- result{frame: frame, err: err}:
		case <-w.done:
			return
		}
		if err != nil && !errors.Is(err, types.ErrDecode) {
			return
		}
	}
}

// Next blocks for the next frame or until ctx is done.
func (w *PythonWorker) Next(ctx context.Context) (types.LandmarkFrame, error) {
	select {
	case <-ctx.Done():
		return types.LandmarkFrame{}, ctx.Err()
	case r, ok := <-w.frames:
		if !ok {
			return types.LandmarkFrame{}, io.EOF
		}
		return r.frame, r.err
	}
}

// Close stops the child and releases the pipes.
func (w *PythonWorker) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	if w.Stdin != nil {
		w.Stdin.Close()
	}
	w.DataPipe.Close()
	if w.Cmd != nil && w.Cmd.Process != nil {
		return w.Cmd.Wait()
	}
	return nil
}

// ReadFrame reads one [uint32 big-endian length][JSON body] message.
// A body of {"error": "..."} is returned as an error. A body that is not
// valid JSON returns ErrDecode and the stream can continue.
func ReadFrame(r io.Reader) (types.LandmarkFrame, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return types.LandmarkFrame{}, fmt.Errorf("truncated frame header: %w", err)
		}
		return types.LandmarkFrame{}, err // io.EOF here is where we catch a worker crash or clean exit
	}

	n := binary.BigEndian.Uint32(header)
	if n > MaxFrameSize {
		return types.LandmarkFrame{}, fmt.Errorf("frame of %d bytes exceeds limit: %w", n, types.ErrInvalidInput)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return types.LandmarkFrame{}, fmt.Errorf("truncated frame body: %w", err)
	}
	return DecodeFrame(body)
}

// DecodeFrame parses a JSON frame body.
func DecodeFrame(body []byte) (types.LandmarkFrame, error) {
	var probe types.ErrorResult
	if err := json.Unmarshal(body, &probe); err == nil && probe.Error != "" {
		return types.LandmarkFrame{}, fmt.Errorf("python worker error: %s", probe.Error)
	}
	var f types.LandmarkFrame
	if err := json.Unmarshal(body, &f); err != nil {
		return types.LandmarkFrame{}, fmt.Errorf("decode frame: %w: %v", types.ErrDecode, err)
	}
	return f, nil
}

// WriteFrame is the encoder counterpart of ReadFrame.
func WriteFrame(w io.Writer, f types.LandmarkFrame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(body))); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
