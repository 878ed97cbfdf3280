package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/schollz/progressbar/v3"
)

// ReplaySource reads recorded frames, one JSON object per line.
type ReplaySource struct {
	f       *os.File
	scanner *bufio.Scanner
	bar     *progressbar.ProgressBar
	line    int
}

type ReplayOption func(*replayConfig)

type replayConfig struct {
	progress io.Writer
}

// WithProgress draws a progress bar over the file's line count on w.
func WithProgress(w io.Writer) ReplayOption {
	return func(c *replayConfig) { c.progress = w }
}

// OpenReplay opens a JSON-lines recording.
func OpenReplay(path string, opts ...ReplayOption) (*ReplaySource, error) {
	var cfg replayConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay %s: %w", path, err)
	}

	rs := &ReplaySource{f: f}
	if cfg.progress != nil {
		total, err := countLines(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("scan replay %s: %w", path, err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		rs.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("👁  Vigil Replay"),
			progressbar.OptionSetWriter(cfg.progress),
			progressbar.OptionShowCount(),
		)
	}
	rs.scanner = bufio.NewScanner(f)
	rs.scanner.Buffer(make([]byte, 64*1024), MaxFrameSize)
	return rs, nil
}

func countLines(r io.Reader) (int, error) {
	n := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxFrameSize)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}

// Next returns the next frame. Blank lines are skipped. A malformed line
// returns ErrDecode and the replay can continue. Frames without an index
// are numbered by line.
func (r *ReplaySource) Next(ctx context.Context) (types.LandmarkFrame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.LandmarkFrame{}, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return types.LandmarkFrame{}, err
			}
			if r.bar != nil {
				r.bar.Finish()
			}
			return types.LandmarkFrame{}, io.EOF
		}
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		r.line++
		if r.bar != nil {
			r.bar.Add(1)
		}
		f, err := DecodeFrame(line)
		if err != nil {
			return types.LandmarkFrame{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		if f.Index == 0 {
			f.Index = r.line
		}
		return f, nil
	}
}

func (r *ReplaySource) Close() error {
	return r.f.Close()
}
