// Package runner launches peer processes and tracks them until they exit.
package runner

import (
	"os/exec"
	"sync"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/transcript"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "runner")

// waitDelay bounds how long Wait keeps draining output after a peer exits,
// in case a grandchild still holds its pipes.
const waitDelay = 2 * time.Second

// Runner launches the peers of one harness run. On Linux, as root, every
// peer gets a cgroup under a directory named after the run.
type Runner struct {
	runID string
}

// NewRunner creates a Runner for the run identified by runID.
func NewRunner(runID string) *Runner {
	return &Runner{runID: runID}
}

// RunID identifies the run this Runner launches peers for.
func (runner *Runner) RunID() string { return runner.runID }

// Close removes the run's cgroup directory. It fails while a peer of the
// run is still alive.
func (runner *Runner) Close() error {
	return removeRunCgroup(runner.runID)
}

// Handle is a running or finished peer process.
type Handle struct {
	name   string
	cmd    *exec.Cmd
	pid    int
	cgroup *peerCgroup
	done   chan struct{}

	mu       sync.RWMutex
	state    lib.ProcessState
	exitCode *int
	start    time.Time
	end      *time.Time

	stdout *transcript.Transcript
	stderr *transcript.Transcript
}

func (h *Handle) Name() string { return h.name }

// Done is closed once the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Stdout returns the captured standard output.
func (h *Handle) Stdout() *transcript.Transcript { return h.stdout }

// Stderr returns the captured standard error.
func (h *Handle) Stderr() *transcript.Transcript { return h.stderr }

// Status returns a snapshot of the process state.
func (h *Handle) Status() lib.ProcessStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := lib.ProcessStatus{State: h.state, StartTime: h.start}
	if h.exitCode != nil {
		code := *h.exitCode
		st.ExitCode = &code
	}
	if h.end != nil {
		t := *h.end
		st.EndTime = &t
	}
	return st
}
