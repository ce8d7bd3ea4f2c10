package runner

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/transcript"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Preflight resolves the executable of spec and checks that the current user
// may execute it. It starts nothing.
func Preflight(spec lib.PeerSpec) (string, error) {
	name := spec.Command.Command
	if name == "" {
		return "", &lib.LaunchError{Peer: spec.Name, Err: errors.New("command is required")}
	}
	if spec.Dir != "" && strings.ContainsRune(name, filepath.Separator) && !filepath.IsAbs(name) {
		name = filepath.Join(spec.Dir, name)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &lib.LaunchError{Peer: spec.Name, Executable: spec.Command.Command, Err: err}
	}
	// LookPath only checks mode bits; Access also honours ACLs and noexec mounts.
	if err := unix.Access(path, unix.X_OK); err != nil {
		return "", &lib.LaunchError{Peer: spec.Name, Executable: path, Err: err}
	}
	return path, nil
}

// Launch starts the peer described by spec and returns without waiting for it.
func (runner *Runner) Launch(spec lib.PeerSpec) (*Handle, error) {
	path, err := Preflight(spec)
	if err != nil {
		return nil, err
	}

	id := lib.NewID()
	log := logger.WithFields(logrus.Fields{
		"run":     lib.ShortID(runner.runID),
		"peer":    spec.Name,
		"process": lib.ShortID(id),
	})

	cmd := exec.Command(path, spec.Command.Args...)
	// argv[0] is the plain program name, as a shell would pass it.
	cmd.Args[0] = filepath.Base(spec.Command.Command)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env.Environ()
	}
	cmd.WaitDelay = waitDelay

	cg, err := newPeerCgroup(runner.runID, spec.Name)
	if err != nil {
		log.WithError(err).Warn("cgroup setup failed, running peer without a cgroup")
		cg = nil
	}
	attr, cgFile, err := cg.procAttr()
	if err != nil {
		_ = cg.remove()
		return nil, &lib.LaunchError{Peer: spec.Name, Executable: path, Err: err}
	}
	cmd.SysProcAttr = attr

	stdout := transcript.New()
	stderr := transcript.New()
	// cmd.Stdin is left nil, so it will use /dev/null
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	h := &Handle{
		name:   spec.Name,
		cmd:    cmd,
		cgroup: cg,
		done:   make(chan struct{}),
		state:  lib.ProcessStateRunning,
		stdout: stdout,
		stderr: stderr,
	}

	log.WithField("path", path).Debug("Starting peer process")
	h.start = time.Now()
	err = cmd.Start()
	if cgFile != nil {
		_ = cgFile.Close()
	}
	if err != nil {
		log.WithError(err).Error("Failed to start peer process")
		stdout.Close()
		stderr.Close()
		_ = cg.remove()
		return nil, &lib.LaunchError{Peer: spec.Name, Executable: path, Err: err}
	}
	h.pid = cmd.Process.Pid
	log.WithField("pid", h.pid).Info("Peer process started")

	go h.wait(log)
	return h, nil
}

func (h *Handle) wait(log *logrus.Entry) {
	err := h.cmd.Wait()

	h.stdout.Close()
	h.stderr.Close()

	h.mu.Lock()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		code := 0
		h.exitCode = &code
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		h.exitCode = &code
	default:
		// I/O errors after exit (WaitDelay expiry); the exit code is still known.
		if ps := h.cmd.ProcessState; ps != nil {
			code := ps.ExitCode()
			h.exitCode = &code
		}
	}
	now := time.Now()
	h.end = &now
	h.state = lib.ProcessStateStopped
	h.mu.Unlock()

	fields := logrus.Fields{"pid": h.pid, "duration": now.Sub(h.start).Round(time.Millisecond)}
	if h.exitCode != nil {
		fields["exit_code"] = *h.exitCode
	}
	if err != nil && exitErr == nil {
		log.WithFields(fields).WithError(err).Warn("Peer process finished with an I/O error")
	} else {
		log.WithFields(fields).Info("Peer process finished")
	}

	if err := h.cgroup.remove(); err != nil {
		log.WithError(err).Debug("Failed to remove peer cgroup")
	}
	close(h.done)
}
