package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andresmejia3/vigil/internal/report"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/worker"
	"go.uber.org/zap"
)

type sourceResult struct {
	frame types.LandmarkFrame
	err   error
}

// Run drives the frame loop until the source ends, ctx is cancelled or a quit
// action arrives. Frames and actions are handled one at a time on the calling
// goroutine. Finalize always runs before Run returns; the error is non-nil
// only when the landmark source failed.
func (s *Session) Run(ctx context.Context, src worker.Source, actions <-chan Action, out io.Writer) (report.Export, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan sourceResult)
	go pump(ctx, src, frames)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stop requested, finalizing")
			break loop

		case a, ok := <-actions:
			if !ok {
				actions = nil
				continue
			}
			if a.Kind == ActionQuit {
				s.logger.Info("quit requested, finalizing")
				break loop
			}
			reply, err := s.HandleAction(a)
			writeReply(out, a, reply, err)

		case r := <-frames:
			if r.err != nil {
				switch {
				case errors.Is(r.err, io.EOF):
					s.logger.Info("landmark source ended")
					break loop
				case errors.Is(r.err, context.Canceled), errors.Is(r.err, context.DeadlineExceeded):
					break loop
				case errors.Is(r.err, types.ErrDecode):
					s.logger.Warn("undecodable frame treated as no face", zap.Error(r.err))
					s.ProcessFrame(types.LandmarkFrame{Timestamp: s.lastTS})
					continue
				default:
					runErr = fmt.Errorf("landmark source: %w", r.err)
					s.logger.Error("landmark source failed, finalizing", zap.Error(r.err))
					break loop
				}
			}
			s.ProcessFrame(r.frame)
		}
	}

	cancel()
	return s.Finalize(), runErr
}

func pump(ctx context.Context, src worker.Source, out chan<- sourceResult) {
	for {
		f, err := src.Next(ctx)
		select {
		case out <- sourceResult{frame: f, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && !errors.Is(err, types.ErrDecode) {
			return
		}
	}
}

func writeReply(out io.Writer, a Action, reply string, err error) {
	if out == nil {
		return
	}
	if reply != "" {
		fmt.Fprintln(out, reply)
	}
	if err != nil {
		fmt.Fprintf(out, "❌ %s: %v\n", a.Kind, err)
	}
}

// ReadActions parses commands from r on its own goroutine and delivers them
// to the loop. Lines that do not parse are reported on out and skipped. The
// channel is closed when r ends or ctx is done.
func ReadActions(ctx context.Context, r io.Reader, out io.Writer) <-chan Action {
	ch := make(chan Action)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			a, err := ParseAction(line)
			if err != nil {
				if out != nil {
					fmt.Fprintf(out, "❌ %v\n", err)
				}
				continue
			}
			select {
			case ch <- a:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
