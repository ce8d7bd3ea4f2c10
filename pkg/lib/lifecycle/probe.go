package lifecycle

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib/transcript"
)

// Probe blocks until the first peer is ready to accept a call.
type Probe func(ctx context.Context, first Process) error

// ErrNoTranscript is returned by PatternProbe for processes without captured
// output.
var ErrNoTranscript = errors.New("process output is not captured")

type transcripts interface {
	Stdout() *transcript.Transcript
	Stderr() *transcript.Transcript
}

// PatternProbe waits until the peer writes a line matching pattern to stdout
// or stderr, giving up after timeout.
func PatternProbe(pattern *regexp.Regexp, timeout time.Duration) Probe {
	return func(ctx context.Context, first Process) error {
		t, ok := first.(transcripts)
		if !ok {
			return ErrNoTranscript
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		errs := make(chan error, 2)
		go func() { errs <- t.Stdout().WaitFor(ctx, pattern) }()
		go func() { errs <- t.Stderr().WaitFor(ctx, pattern) }()

		// Either stream matching is enough; both failing is an error.
		err := <-errs
		if err == nil {
			return nil
		}
		if err2 := <-errs; err2 == nil {
			return nil
		}
		return err
	}
}
