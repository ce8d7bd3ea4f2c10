package runner

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// killWait is how long Stop waits for the process to be reaped after SIGKILL.
const killWait = time.Second

// Stop sends SIGTERM, and if the process is still alive after grace, kills
// its cgroup or the process itself. Stopping an exited process is a no-op.
func (h *Handle) Stop(grace time.Duration) error {
	if h.exited() {
		return nil
	}
	log := logger.WithFields(logrus.Fields{"peer": h.name, "pid": h.pid})

	log.Info("Terminating peer process")
	if err := unix.Kill(h.pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
	}

	log.Warn("Peer ignored SIGTERM, killing it")
	killed, err := h.cgroup.kill()
	if err != nil || !killed {
		if err := unix.Kill(h.pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
	}
	select {
	case <-h.done:
	case <-time.After(killWait):
		log.Warn("Peer process not reaped after SIGKILL")
	}
	return nil
}

func (h *Handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
