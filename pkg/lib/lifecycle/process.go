package lifecycle

import (
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/runner"
)

// Process is the controller's view of a launched peer.
type Process interface {
	Name() string
	// Done is closed once the process has terminated.
	Done() <-chan struct{}
	Status() lib.ProcessStatus
	// Stop terminates the process, escalating after grace.
	Stop(grace time.Duration) error
}

// Launcher starts one peer without waiting for it.
type Launcher interface {
	Launch(spec lib.PeerSpec) (Process, error)
}

// RunnerLauncher adapts a runner.Runner to Launcher.
type RunnerLauncher struct {
	Runner *runner.Runner
}

func (l RunnerLauncher) Launch(spec lib.PeerSpec) (Process, error) {
	h, err := l.Runner.Launch(spec)
	if err != nil {
		return nil, err
	}
	return h, nil
}
