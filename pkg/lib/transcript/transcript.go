// Package transcript keeps the complete output of a peer process in memory
// and lets any number of readers replay it from the beginning while the
// process is still writing.
package transcript

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "transcript")

// chunk is a node of the append-only list. The head of a Transcript is an
// empty sentinel.
type chunk struct {
	data []byte
	next atomic.Pointer[chunk]
}

// Transcript is an append-only list of output chunks. Readers walk the list
// without locks; writers are serialized.
type Transcript struct {
	head *chunk

	mu     sync.Mutex // guards tail and closed
	tail   *chunk
	closed bool

	notify *Broadcaster[struct{}]
}

// New returns an empty, open transcript.
func New() *Transcript {
	sentinel := &chunk{}
	return &Transcript{
		head:   sentinel,
		tail:   sentinel,
		notify: RunNewBroadcaster[struct{}](),
	}
}

// Write implements io.Writer. p is copied since exec reuses its buffer.
func (t *Transcript) Write(p []byte) (int, error) {
	if t == nil || len(p) == 0 {
		return len(p), nil
	}
	t.Append(append([]byte(nil), p...))
	return len(p), nil
}

// Append stores data as-is. Appending to a closed transcript drops data.
func (t *Transcript) Append(data []byte) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		logger.WithField("bytes", len(data)).Debug("dropping write to closed transcript")
		return
	}
	c := &chunk{data: data}
	t.tail.next.Store(c)
	t.tail = c
	t.mu.Unlock()

	t.notify.Publish(struct{}{})
}

// Close marks the end of output. Subscribers drain what is left and their
// channels close.
func (t *Transcript) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.notify.Stop()
}

// Subscribe replays every chunk from the beginning into the returned
// channel and keeps following new chunks until the transcript is closed.
func (t *Transcript) Subscribe(capacity int) <-chan []byte {
	ch := make(chan []byte, capacity)
	notifier, err := t.notify.Subscribe()
	if err != nil {
		go t.replay(ch, nil)
	} else {
		go t.replay(ch, notifier)
	}
	return ch
}

// replay walks the list into ch. A nil notifier means the transcript is
// already closed and the walk ends at the current tail.
func (t *Transcript) replay(ch chan<- []byte, notifier <-chan struct{}) {
	defer close(ch)
	prev := t.head
	for {
		current := prev.next.Load()
		if current != nil {
			ch <- current.data
			prev = current
			continue
		}
		if notifier == nil {
			return
		}
		if _, ok := <-notifier; !ok {
			// Closed: chunks appended before Close are already linked.
			notifier = nil
		}
	}
}

// ForEach iterates over all stored chunks in order until iter returns false.
func (t *Transcript) ForEach(iter func([]byte) bool) {
	if t == nil || iter == nil {
		return
	}
	for c := t.head.next.Load(); c != nil; c = c.next.Load() {
		if !iter(c.data) {
			return
		}
	}
}

// Bytes concatenates every chunk stored so far.
func (t *Transcript) Bytes() []byte {
	total := 0
	t.ForEach(func(b []byte) bool {
		total += len(b)
		return true
	})
	out := make([]byte, 0, total)
	t.ForEach(func(b []byte) bool {
		out = append(out, b...)
		return true
	})
	return out
}

func (t *Transcript) String() string {
	return string(t.Bytes())
}
