package runner

import (
	"fmt"
	"io"
	"sync"

	"github.com/martinjaros/nanotalk2/pkg/lib/transcript"
)

// Forward copies the peer output to stdout and stderr, each line prefixed
// with the peer name. The returned channel closes once both streams end.
func (h *Handle) Forward(stdout, stderr io.Writer) <-chan struct{} {
	prefix := fmt.Sprintf("[%s] ", h.name)
	done := make(chan struct{})

	var wg sync.WaitGroup
	pipe := func(src *transcript.Transcript, dst io.Writer) {
		defer wg.Done()
		pw := transcript.NewPrefixWriter(dst, prefix)
		for b := range src.Subscribe(5) {
			_, _ = pw.Write(b)
		}
		_ = pw.Flush()
	}
	wg.Add(2)
	go pipe(h.stdout, stdout)
	go pipe(h.stderr, stderr)
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
