package lib

import (
	"fmt"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib/profile"
)

// ProcessState mirrors the lifecycle of a launched peer process.
type ProcessState int

const (
	ProcessStateUnspecified ProcessState = iota
	ProcessStateRunning
	ProcessStateStopped
)

func (s ProcessState) String() string {
	switch s {
	case ProcessStateRunning:
		return "Running"
	case ProcessStateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Role is the part a peer plays in the call.
type Role string

const (
	RoleListener  Role = "listener"
	RoleCaller    Role = "caller"
	RoleSymmetric Role = "symmetric"
)

// ParseRole accepts the textual role names used in configuration files.
// An empty string maps to RoleSymmetric.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleSymmetric, nil
	case RoleListener, RoleCaller, RoleSymmetric:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown peer role %q", s)
}

// Command captures command metadata used to start a process.
type Command struct {
	Command string
	Args    []string
}

// PeerSpec is everything needed to launch one side of a call.
type PeerSpec struct {
	Name    string
	Role    Role
	Command Command
	Env     profile.Profile
	// Delay, when positive, overrides the controller stagger before this peer starts.
	Delay time.Duration
	// Dir is the working directory; empty means the harness directory.
	Dir string
}

// ProcessStatus captures runtime state and timestamps.
type ProcessStatus struct {
	State     ProcessState
	ExitCode  *int
	StartTime time.Time
	EndTime   *time.Time
}
