// Package peers turns the harness configuration of the two call sides into
// launchable specifications and rejects setups where both sides would share
// an identity.
package peers

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/profile"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "peers")

// DefaultPort is the application's listening port when -l is not given.
const DefaultPort = 5004

// Mode selects how a peer is configured on its command line.
type Mode string

const (
	// ModeArgs passes every setting as a command line flag.
	ModeArgs Mode = "args"
	// ModeConfig passes a configuration file plus key and aliases.
	ModeConfig Mode = "config"
	// ModeBare passes no arguments; peers differ only by HOME.
	ModeBare Mode = "bare"
)

// ParseMode validates a textual mode. Empty means ModeArgs.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeArgs, nil
	case ModeArgs, ModeConfig, ModeBare:
		return Mode(s), nil
	}
	return "", lib.NewConfigurationError("unknown mode %q (want args, config or bare)", s)
}

// Peer is the user-facing description of one side of the call.
type Peer struct {
	Name       string
	Role       lib.Role
	Executable string

	Sound         string
	Key           string
	Aliases       string
	Config        string
	LocalPort     int
	BootstrapHost string
	BootstrapPort int
	IPv6          bool
	// Args are appended after the generated flags.
	Args []string

	// Home becomes the peer's HOME; required in bare mode.
	Home  string
	Env   map[string]string
	Delay time.Duration
	Dir   string
}

// Request bundles everything Resolve needs.
type Request struct {
	Mode    Mode
	Toggles profile.Toggles
	// Base is the environment both profiles start from, normally os.Environ.
	Base profile.Profile
	A, B Peer
}

// Resolve validates the request and builds the two peer specifications. No
// state is shared between the returned specs.
func Resolve(req Request) (lib.PeerSpec, lib.PeerSpec, error) {
	if err := Validate(req); err != nil {
		return lib.PeerSpec{}, lib.PeerSpec{}, err
	}

	a := resolvePeer(req, req.A, 1)
	b := resolvePeer(req, req.B, 2)

	logger.WithFields(logrus.Fields{
		"mode":   req.Mode,
		"peer_a": a.Name,
		"role_a": a.Role,
		"peer_b": b.Name,
		"role_b": b.Role,
	}).Debug("Resolved peer specifications")

	return a, b, nil
}

func resolvePeer(req Request, p Peer, ordinal int) lib.PeerSpec {
	env := profile.Build(req.Base, req.Toggles, profile.Peer{
		Ordinal: ordinal,
		Home:    p.Home,
		Extra:   p.Env,
	})

	return lib.PeerSpec{
		Name: p.Name,
		Role: p.Role,
		Command: lib.Command{
			Command: p.Executable,
			Args:    Args(req.Mode, p),
		},
		Env:   env,
		Delay: p.Delay,
		Dir:   p.Dir,
	}
}

// Args renders the command line of a peer for the given mode.
func Args(mode Mode, p Peer) []string {
	var args []string
	switch mode {
	case ModeArgs:
		if p.Sound != "" {
			args = append(args, "-s", p.Sound)
		}
		args = appendIdentity(args, p)
		if p.LocalPort != 0 {
			args = append(args, "-l", strconv.Itoa(p.LocalPort))
		}
		if p.IPv6 {
			args = append(args, "-6")
		}
		if p.BootstrapHost != "" {
			args = append(args, "-h", p.BootstrapHost)
		}
		if p.BootstrapPort != 0 {
			args = append(args, "-p", strconv.Itoa(p.BootstrapPort))
		}
	case ModeConfig:
		args = append(args, "-c", p.Config)
		args = appendIdentity(args, p)
	case ModeBare:
		return append([]string(nil), p.Args...)
	}
	return append(args, p.Args...)
}

func appendIdentity(args []string, p Peer) []string {
	if p.Key != "" {
		args = append(args, "-k", p.Key)
	}
	if p.Aliases != "" {
		args = append(args, "-a", p.Aliases)
	}
	return args
}

// Validate reports a *lib.ConfigurationError when the two peers cannot run
// side by side.
func Validate(req Request) error {
	if _, err := ParseMode(string(req.Mode)); err != nil {
		return err
	}
	for _, p := range []Peer{req.A, req.B} {
		if p.Name == "" {
			return lib.NewConfigurationError("peer name is required")
		}
		if p.Executable == "" {
			return lib.NewConfigurationError("peer %s: executable is required", p.Name)
		}
		if _, err := lib.ParseRole(string(p.Role)); err != nil {
			return lib.NewConfigurationError("peer %s: %v", p.Name, err)
		}
		if p.Delay < 0 {
			return lib.NewConfigurationError("peer %s: negative startup delay %s", p.Name, p.Delay)
		}
		if req.Mode == ModeConfig && p.Config == "" {
			return lib.NewConfigurationError("peer %s: config mode requires a configuration file", p.Name)
		}
		if req.Mode == ModeBare && homeOf(p) == "" {
			return lib.NewConfigurationError("peer %s: bare mode requires a home directory", p.Name)
		}
	}

	a, b := req.A, req.B
	if a.Name == b.Name {
		return lib.NewConfigurationError("both peers are named %q", a.Name)
	}
	if a.Role == lib.RoleCaller && b.Role == lib.RoleListener {
		return lib.NewConfigurationError("peer %s is the caller but is launched before listener %s", a.Name, b.Name)
	}
	if home, ok := sharedHome(req); ok {
		return lib.NewConfigurationError("peers %s and %s share home directory %q", a.Name, b.Name, home)
	}
	if req.Mode != ModeBare && a.Key != "" && samePath(a.Key, b.Key) {
		return lib.NewConfigurationError("peers %s and %s share identity key %q", a.Name, b.Name, a.Key)
	}
	if req.Mode == ModeArgs && portOf(a) == portOf(b) {
		return lib.NewConfigurationError("peers %s and %s both listen on port %d", a.Name, b.Name, portOf(a))
	}
	if req.Toggles.TraceLog {
		if err := req.Toggles.CheckTraceFile(); err != nil {
			return lib.NewConfigurationError("%v", err)
		}
		fa := inDir(a.Dir, req.Toggles.TraceFileFor(1))
		fb := inDir(b.Dir, req.Toggles.TraceFileFor(2))
		if samePath(fa, fb) {
			return lib.NewConfigurationError("peers %s and %s both write trace file %q", a.Name, b.Name, fa)
		}
	}
	return nil
}

// sharedHome reports the home directory both peers would use, if any. A
// peer without an explicit home inherits HOME from the base profile. Two
// inheriting peers are not reported; bare mode rules that case out.
func sharedHome(req Request) (string, bool) {
	ha, hb := homeOf(req.A), homeOf(req.B)
	if ha == "" && hb == "" {
		return "", false
	}
	inherited := req.Base[profile.VarHome]
	if ha == "" {
		ha = inherited
	}
	if hb == "" {
		hb = inherited
	}
	if ha == "" || hb == "" || !samePath(ha, hb) {
		return "", false
	}
	return ha, true
}

// inDir resolves a relative file name against the working directory of a
// peer.
func inDir(dir, file string) string {
	if dir == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

// homeOf is the explicitly configured home of a peer, if any.
func homeOf(p Peer) string {
	if h, ok := p.Env[profile.VarHome]; ok {
		return h
	}
	return p.Home
}

func portOf(p Peer) int {
	if p.LocalPort == 0 {
		return DefaultPort
	}
	return p.LocalPort
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
