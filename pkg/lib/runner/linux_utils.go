//go:build linux

package runner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

const cgroupRoot = "/sys/fs/cgroup/nanotalk-harness"

// peerCgroup is the cgroup v2 directory holding one peer and everything it
// forks, at <root>/<run>/<peer>. A nil *peerCgroup means the peer runs in
// the harness cgroup; every method accepts it.
type peerCgroup struct {
	path string
}

// newPeerCgroup creates the cgroup of a peer. Without root it returns nil.
func newPeerCgroup(runID, peer string) (*peerCgroup, error) {
	if os.Geteuid() != 0 {
		return nil, nil
	}
	path := filepath.Join(runCgroupDir(runID), cgroupName(peer))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &peerCgroup{path: path}, nil
}

func runCgroupDir(runID string) string {
	return filepath.Join(cgroupRoot, "run-"+cgroupName(runID))
}

// cgroupName keeps a peer or run name a single path element.
func cgroupName(name string) string {
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// procAttr makes the child start directly inside the cgroup. The returned
// file, if any, must stay open until Start returns.
func (cg *peerCgroup) procAttr() (*syscall.SysProcAttr, *os.File, error) {
	if cg == nil {
		return &syscall.SysProcAttr{}, nil, nil
	}
	f, err := os.Open(cg.path)
	if err != nil {
		return nil, nil, err
	}
	return &syscall.SysProcAttr{UseCgroupFD: true, CgroupFD: int(f.Fd())}, f, nil
}

// kill SIGKILLs every process in the cgroup, grandchildren included. It
// reports false when there is no cgroup to kill.
func (cg *peerCgroup) kill() (bool, error) {
	if cg == nil {
		return false, nil
	}
	err := os.WriteFile(filepath.Join(cg.path, "cgroup.kill"), []byte("1"), 0o644)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (cg *peerCgroup) remove() error {
	if cg == nil {
		return nil
	}
	return removeDir(cg.path)
}

func removeRunCgroup(runID string) error {
	if os.Geteuid() != 0 {
		return nil
	}
	return removeDir(runCgroupDir(runID))
}

func removeDir(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
