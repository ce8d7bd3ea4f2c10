//go:build !linux

package runner

import (
	"os"
	"syscall"
)

// peerCgroup is Linux only; elsewhere peers always run without one.
type peerCgroup struct{}

func newPeerCgroup(runID, peer string) (*peerCgroup, error) {
	return nil, nil
}

func (cg *peerCgroup) procAttr() (*syscall.SysProcAttr, *os.File, error) {
	return &syscall.SysProcAttr{}, nil, nil
}

func (cg *peerCgroup) kill() (bool, error) {
	return false, nil
}

func (cg *peerCgroup) remove() error {
	return nil
}

func removeRunCgroup(runID string) error {
	return nil
}
