// Package config reads the harness configuration file and turns it into the
// typed settings the rest of the harness consumes.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/artifacts"
	"github.com/martinjaros/nanotalk2/pkg/lib/lifecycle"
	"github.com/martinjaros/nanotalk2/pkg/lib/peers"
	"github.com/martinjaros/nanotalk2/pkg/lib/profile"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "config")

// DefaultExecutable is where the application lands in a source build, seen
// from the test directory.
const DefaultExecutable = "../src/nanotalk"

// Config mirrors the configuration file. Durations are strings in
// time.ParseDuration syntax.
type Config struct {
	Mode         string       `hcl:"mode,optional" yaml:"mode"`
	Executable   string       `hcl:"executable,optional" yaml:"executable"`
	Stagger      string       `hcl:"stagger,optional" yaml:"stagger"`
	Timeout      string       `hcl:"timeout,optional" yaml:"timeout"`
	ReadyPattern string       `hcl:"ready_pattern,optional" yaml:"ready_pattern"`
	ReadyTimeout string       `hcl:"ready_timeout,optional" yaml:"ready_timeout"`
	Diagnostics  *Diagnostics `hcl:"diagnostics,block" yaml:"diagnostics"`
	Peers        []Peer       `hcl:"peer,block" yaml:"peers"`
}

// Diagnostics holds the toggles shared by both peers.
type Diagnostics struct {
	Messages    bool   `hcl:"messages,optional" yaml:"messages"`
	DebugLevel  string `hcl:"debug_level,optional" yaml:"debug_level"`
	TraceLog    bool   `hcl:"trace_log,optional" yaml:"trace_log"`
	TraceLevel  string `hcl:"trace_level,optional" yaml:"trace_level"`
	TraceFile   string `hcl:"trace_file,optional" yaml:"trace_file"`
	Graphs      bool   `hcl:"graphs,optional" yaml:"graphs"`
	GraphDir    string `hcl:"graph_dir,optional" yaml:"graph_dir"`
	GraphFormat string `hcl:"graph_format,optional" yaml:"graph_format"`
	EchoCancel  bool   `hcl:"echo_cancel,optional" yaml:"echo_cancel"`
}

// Peer is one `peer "<name>" { ... }` block.
type Peer struct {
	Name          string            `hcl:"name,label" yaml:"name"`
	Role          string            `hcl:"role,optional" yaml:"role"`
	Executable    string            `hcl:"executable,optional" yaml:"executable"`
	Sound         string            `hcl:"sound,optional" yaml:"sound"`
	Key           string            `hcl:"key,optional" yaml:"key"`
	Aliases       string            `hcl:"aliases,optional" yaml:"aliases"`
	Config        string            `hcl:"config,optional" yaml:"config"`
	LocalPort     int               `hcl:"local_port,optional" yaml:"local_port"`
	BootstrapHost string            `hcl:"bootstrap_host,optional" yaml:"bootstrap_host"`
	BootstrapPort int               `hcl:"bootstrap_port,optional" yaml:"bootstrap_port"`
	IPv6          bool              `hcl:"ipv6,optional" yaml:"ipv6"`
	Args          []string          `hcl:"args,optional" yaml:"args"`
	Home          string            `hcl:"home,optional" yaml:"home"`
	Env           map[string]string `hcl:"env,optional" yaml:"env"`
	Delay         string            `hcl:"delay,optional" yaml:"delay"`
	Dir           string            `hcl:"dir,optional" yaml:"dir"`
}

// Default reproduces the original two-peer launcher: messages on, trace log
// and graphs off, the second peer calling the first over localhost.
func Default() *Config {
	return &Config{
		Mode:        string(peers.ModeArgs),
		Executable:  DefaultExecutable,
		Stagger:     lifecycle.DefaultStagger.String(),
		Diagnostics: &Diagnostics{Messages: true},
		Peers: []Peer{
			{
				Name:    "a",
				Role:    string(lib.RoleListener),
				Sound:   "incoming-call.ogg",
				Key:     "test1.key",
				Aliases: "aliases.txt",
			},
			{
				Name:          "b",
				Role:          string(lib.RoleCaller),
				Sound:         "incoming-call.ogg",
				Key:           "test2.key",
				Aliases:       "aliases.txt",
				LocalPort:     5005,
				BootstrapHost: "localhost",
			},
		},
	}
}

// Settings is a validated, typed view of a Config.
type Settings struct {
	Mode         peers.Mode
	Toggles      profile.Toggles
	GraphFormat  string
	Stagger      time.Duration
	Timeout      time.Duration
	ReadyPattern *regexp.Regexp
	ReadyTimeout time.Duration
	A, B         peers.Peer
}

// Settings converts c, returning a *lib.ConfigurationError for malformed
// values.
func (c *Config) Settings() (*Settings, error) {
	mode, err := peers.ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	s := &Settings{Mode: mode, GraphFormat: artifacts.DefaultFormat}

	if s.Stagger, err = parseDuration("stagger", c.Stagger); err != nil {
		return nil, err
	}
	if s.Stagger == 0 {
		s.Stagger = lifecycle.DefaultStagger
	}
	if s.Stagger < 0 {
		return nil, lib.NewConfigurationError("stagger must be positive, got %s", s.Stagger)
	}
	if s.Timeout, err = parseDuration("timeout", c.Timeout); err != nil {
		return nil, err
	}
	if s.ReadyTimeout, err = parseDuration("ready_timeout", c.ReadyTimeout); err != nil {
		return nil, err
	}
	if c.ReadyPattern != "" {
		if s.ReadyPattern, err = regexp.Compile(c.ReadyPattern); err != nil {
			return nil, lib.NewConfigurationError("ready_pattern: %v", err)
		}
	}

	if d := c.Diagnostics; d != nil {
		s.Toggles = profile.Toggles{
			Messages:   d.Messages,
			DebugLevel: d.DebugLevel,
			TraceLog:   d.TraceLog,
			TraceLevel: d.TraceLevel,
			TraceFile:  d.TraceFile,
			Graphs:     d.Graphs,
			GraphDir:   d.GraphDir,
			EchoCancel: d.EchoCancel,
		}
		if d.GraphFormat != "" {
			s.GraphFormat = d.GraphFormat
		}
	}
	if s.Toggles.GraphDir == "" {
		s.Toggles.GraphDir = profile.DefaultGraphDir
	}
	// Peers may run in their own directories; dumps and post-processing
	// must agree on one place.
	if s.Toggles.GraphDir, err = filepath.Abs(s.Toggles.GraphDir); err != nil {
		return nil, lib.NewConfigurationError("graph_dir: %v", err)
	}

	if len(c.Peers) != 2 {
		return nil, lib.NewConfigurationError("exactly two peers are required, got %d", len(c.Peers))
	}
	if s.A, err = c.peer(c.Peers[0]); err != nil {
		return nil, err
	}
	if s.B, err = c.peer(c.Peers[1]); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"mode":    s.Mode,
		"stagger": s.Stagger,
		"timeout": s.Timeout,
	}).Debug("Configuration loaded")
	return s, nil
}

func (c *Config) peer(p Peer) (peers.Peer, error) {
	role, err := lib.ParseRole(p.Role)
	if err != nil {
		return peers.Peer{}, lib.NewConfigurationError("peer %s: %v", p.Name, err)
	}
	delay, err := parseDuration(fmt.Sprintf("peer %s delay", p.Name), p.Delay)
	if err != nil {
		return peers.Peer{}, err
	}
	executable := p.Executable
	if executable == "" {
		executable = c.Executable
	}
	if executable == "" {
		executable = DefaultExecutable
	}
	return peers.Peer{
		Name:          p.Name,
		Role:          role,
		Executable:    executable,
		Sound:         p.Sound,
		Key:           p.Key,
		Aliases:       p.Aliases,
		Config:        p.Config,
		LocalPort:     p.LocalPort,
		BootstrapHost: p.BootstrapHost,
		BootstrapPort: p.BootstrapPort,
		IPv6:          p.IPv6,
		Args:          p.Args,
		Home:          p.Home,
		Env:           p.Env,
		Delay:         delay,
		Dir:           p.Dir,
	}, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, lib.NewConfigurationError("%s: %v", field, err)
	}
	return d, nil
}
