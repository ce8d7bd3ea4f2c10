package transcript

import (
	"context"
	"errors"
	"regexp"
)

// ErrClosedBeforeMatch is returned by WaitFor when output ends without a match.
var ErrClosedBeforeMatch = errors.New("transcript closed before pattern matched")

// WaitFor blocks until the accumulated output matches pattern, the
// transcript closes, or ctx is done.
func (t *Transcript) WaitFor(ctx context.Context, pattern *regexp.Regexp) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := t.Subscribe(8)
	// Unblock the replay goroutine if we return early.
	defer func() {
		go func() {
			for range ch {
			}
		}()
	}()

	var seen []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-ch:
			if !ok {
				return ErrClosedBeforeMatch
			}
			seen = append(seen, b...)
			if pattern.Match(seen) {
				return nil
			}
		}
	}
}
