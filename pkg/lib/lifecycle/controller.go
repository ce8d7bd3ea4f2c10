// Package lifecycle runs the two peers of a call: it launches the listener,
// waits out the stagger, launches the caller and then waits for both to exit.
//
// Interrupts are not errors. The first one prints a newline and keeps
// waiting for the peers, which received the same terminal interrupt; a second
// one gives up waiting. Peers are never killed because of an interrupt.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "lifecycle")

const (
	// DefaultStagger is the pause between launching the first and second peer.
	DefaultStagger = 100 * time.Millisecond
	// DefaultStopGrace is how long a peer may take to honour SIGTERM on timeout.
	DefaultStopGrace = 3 * time.Second
)

// Options tune a Controller. The zero value is usable.
type Options struct {
	// Stagger defaults to DefaultStagger. A positive Delay on the second
	// PeerSpec takes precedence.
	Stagger time.Duration
	// Ready, if set, runs after the stagger and before the second launch. A
	// failing probe is logged and the run continues.
	Ready Probe
	// Timeout bounds the joint wait; zero waits forever. On expiry both
	// peers are stopped.
	Timeout   time.Duration
	StopGrace time.Duration
	// Interrupts delivers user interrupt signals.
	Interrupts <-chan os.Signal
	// Out receives the newline printed on interrupt.
	Out io.Writer
	// OnLaunch is called right after each successful launch.
	OnLaunch func(spec lib.PeerSpec, p Process)
}

// PeerResult is the final view of one peer.
type PeerResult struct {
	Name       string
	Role       lib.Role
	Launched   bool
	LaunchedAt time.Time
	Status     lib.ProcessStatus
}

// Exited reports whether the peer was seen terminating.
func (r PeerResult) Exited() bool {
	return r.Launched && r.Status.State == lib.ProcessStateStopped
}

// Outcome is the result of a run.
type Outcome struct {
	A, B        PeerResult
	Interrupted bool
	TimedOut    bool
}

// Controller coordinates one run of two peers.
type Controller struct {
	launcher Launcher
	opts     Options

	mu    sync.Mutex
	state State
}

func New(launcher Launcher, opts Options) *Controller {
	if opts.Stagger <= 0 {
		opts.Stagger = DefaultStagger
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Controller{launcher: launcher, opts: opts}
}

// State returns the current state of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	logger.WithFields(logrus.Fields{"from": prev, "to": s}).Debug("State changed")
}

// run is the bookkeeping of a single Run call.
type run struct {
	*Controller
	outcome Outcome
	a, b    Process
}

// Run launches a, then b after the stagger, and waits for both to
// terminate. Only a launch failure is returned as an error; when b fails to
// launch, a keeps running and the partial outcome is returned with the error.
func (c *Controller) Run(ctx context.Context, a, b lib.PeerSpec) (*Outcome, error) {
	r := &run{Controller: c}
	r.outcome.A = PeerResult{Name: a.Name, Role: a.Role}
	r.outcome.B = PeerResult{Name: b.Name, Role: b.Role}
	defer c.setState(StateDone)

	c.setState(StateStarting)
	pa, err := r.launch(a, &r.outcome.A)
	if err != nil {
		return r.finish(), err
	}
	r.a = pa

	if r.waitBeforeSecond(ctx, b) {
		pb, err := r.launch(b, &r.outcome.B)
		if err != nil {
			logger.WithFields(logrus.Fields{"peer": a.Name}).Warn("Second peer failed to launch; first peer is left running")
			return r.finish(), err
		}
		r.b = pb
		c.setState(StateRunning)
	}

	r.joinWait(ctx)
	return r.finish(), nil
}

func (r *run) launch(spec lib.PeerSpec, res *PeerResult) (Process, error) {
	p, err := r.launcher.Launch(spec)
	if err != nil {
		return nil, err
	}
	res.Launched = true
	res.LaunchedAt = time.Now()
	logger.WithFields(logrus.Fields{"peer": spec.Name, "role": spec.Role}).Info("Peer launched")
	if r.opts.OnLaunch != nil {
		r.opts.OnLaunch(spec, p)
	}
	return p, nil
}

// waitBeforeSecond sleeps the stagger and runs the readiness probe. It
// reports false when the run was interrupted and the second peer must not
// start.
func (r *run) waitBeforeSecond(ctx context.Context, second lib.PeerSpec) bool {
	stagger := r.opts.Stagger
	if second.Delay > 0 {
		stagger = second.Delay
	}

	timer := time.NewTimer(stagger)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.opts.Interrupts:
		r.interrupt()
		return false
	case <-ctx.Done():
		r.outcome.Interrupted = true
		return false
	}

	if r.opts.Ready == nil {
		return true
	}
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ready := make(chan error, 1)
	go func() { ready <- r.opts.Ready(probeCtx, r.a) }()
	select {
	case err := <-ready:
		if err != nil {
			logger.WithError(err).WithField("peer", r.outcome.A.Name).Warn("Readiness probe failed, launching second peer anyway")
		}
		return true
	case <-r.opts.Interrupts:
		r.interrupt()
		return false
	case <-ctx.Done():
		r.outcome.Interrupted = true
		return false
	}
}

// joinWait blocks until every launched peer has terminated.
func (r *run) joinWait(ctx context.Context) {
	doneA := r.a.Done()
	var doneB <-chan struct{}
	pending := 1
	if r.b != nil {
		doneB = r.b.Done()
		pending++
	}

	var timeout <-chan time.Time
	if r.opts.Timeout > 0 {
		timer := time.NewTimer(r.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for pending > 0 {
		select {
		case <-doneA:
			doneA = nil
			pending--
			logger.WithField("peer", r.outcome.A.Name).Debug("Peer terminated")
		case <-doneB:
			doneB = nil
			pending--
			logger.WithField("peer", r.outcome.B.Name).Debug("Peer terminated")
		case <-r.opts.Interrupts:
			if r.outcome.Interrupted {
				logger.Warn("Second interrupt, no longer waiting for peers")
				return
			}
			r.interrupt()
		case <-timeout:
			timeout = nil
			r.stopAll()
		case <-ctx.Done():
			r.outcome.Interrupted = true
			return
		}
	}
}

func (r *run) interrupt() {
	r.outcome.Interrupted = true
	r.setState(StateTerminating)
	_, _ = fmt.Fprintln(r.opts.Out)
	logger.Info("Interrupted, waiting for peers to exit")
}

// stopAll stops the launched peers in the background; joinWait keeps
// collecting their exits.
func (r *run) stopAll() {
	r.outcome.TimedOut = true
	r.setState(StateTerminating)
	logger.WithField("timeout", r.opts.Timeout).Warn("Run timed out, stopping peers")
	for _, p := range []Process{r.a, r.b} {
		if p == nil {
			continue
		}
		go func(p Process) {
			if err := p.Stop(r.opts.StopGrace); err != nil {
				logger.WithError(err).WithField("peer", p.Name()).Error("Failed to stop peer")
			}
		}(p)
	}
}

func (r *run) finish() *Outcome {
	if r.a != nil {
		r.outcome.A.Status = r.a.Status()
	}
	if r.b != nil {
		r.outcome.B.Status = r.b.Status()
	}
	out := r.outcome
	return &out
}
