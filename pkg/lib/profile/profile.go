// Package profile builds the environment handed to each peer process.
//
// A Profile is a plain map, so two peers must never share one. Build always
// returns a fresh copy of its base, and callers that need to tweak a profile
// after building it should Clone first.
package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Variables understood by the application and its media runtime.
const (
	VarMessagesDebug = "G_MESSAGES_DEBUG"
	VarDebug         = "GST_DEBUG"
	VarDebugFile     = "GST_DEBUG_FILE"
	VarDumpDotDir    = "GST_DEBUG_DUMP_DOT_DIR"
	VarPulseProp     = "PULSE_PROP"
	VarHome          = "HOME"
)

const (
	MessagesAll       = "all"
	DefaultTraceLevel = "*:WARNING,GST_INIT:INFO"
	DefaultTraceFile  = "test%d.log"
	DefaultGraphDir   = "."
	EchoCancelProp    = "filter.want=echo-cancel"
)

// Toggles are the diagnostic switches of one harness run.
type Toggles struct {
	// Messages enables every GLib debug message domain.
	Messages bool
	// DebugLevel is a console GST_DEBUG pattern; empty leaves GST_DEBUG alone.
	DebugLevel string
	// TraceLog redirects runtime diagnostics to a per-peer file and narrows
	// GST_DEBUG to TraceLevel.
	TraceLog   bool
	TraceLevel string
	// TraceFile holds a %d verb replaced by the peer ordinal.
	TraceFile string
	Graphs    bool
	GraphDir  string
	// EchoCancel asks the audio server for an echo cancelling source.
	EchoCancel bool
}

// Peer carries the per-peer inputs of the builder.
type Peer struct {
	// Ordinal is 1 for the first launched peer, 2 for the second.
	Ordinal int
	// Home overrides HOME when non-empty.
	Home string
	// Extra variables applied after every toggle.
	Extra map[string]string
}

// Override is one assignment made on top of the base profile.
type Override struct {
	Name  string
	Value string
}

// Profile maps variable names to values.
type Profile map[string]string

// FromEnviron parses KEY=VALUE pairs as returned by os.Environ. Later
// duplicates win, matching how exec resolves them.
func FromEnviron(environ []string) Profile {
	p := make(Profile, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		p[name] = value
	}
	return p
}

// Clone returns an independent copy.
func (p Profile) Clone() Profile {
	c := make(Profile, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Environ renders the profile as sorted KEY=VALUE pairs for exec.Cmd.Env.
func (p Profile) Environ() []string {
	out := make([]string, 0, len(p))
	for k, v := range p {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Diff returns the variables whose value differs from base, including ones
// base does not have.
func (p Profile) Diff(base Profile) Profile {
	d := make(Profile)
	for k, v := range p {
		if old, ok := base[k]; !ok || old != v {
			d[k] = v
		}
	}
	return d
}

// TraceFileFor resolves the trace file name of a peer. A pattern without %d
// yields the same name for every peer.
func (t Toggles) TraceFileFor(ordinal int) string {
	pattern := t.traceFilePattern()
	if !strings.Contains(strings.ReplaceAll(pattern, "%%", ""), "%d") {
		return strings.ReplaceAll(pattern, "%%", "%")
	}
	return fmt.Sprintf(pattern, ordinal)
}

// CheckTraceFile rejects trace file patterns TraceFileFor cannot render:
// the only verb is a single %d and %% is a literal percent sign.
func (t Toggles) CheckTraceFile() error {
	pattern := t.traceFilePattern()
	verbs := 0
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '%' {
			continue
		}
		if i+1 == len(pattern) {
			return fmt.Errorf("trace file %q ends with a lone %%", pattern)
		}
		i++
		switch pattern[i] {
		case '%':
		case 'd':
			verbs++
		default:
			return fmt.Errorf("trace file %q: unsupported verb %%%c, only %%d is replaced by the peer number", pattern, pattern[i])
		}
	}
	if verbs > 1 {
		return fmt.Errorf("trace file %q has %d %%d verbs, want one", pattern, verbs)
	}
	return nil
}

func (t Toggles) traceFilePattern() string {
	if t.TraceFile == "" {
		return DefaultTraceFile
	}
	return t.TraceFile
}

// Overrides lists the assignments implied by the toggles in application
// order. Order matters: TraceLog replaces a DebugLevel set before it.
//
//  1. Messages    G_MESSAGES_DEBUG
//  2. DebugLevel  GST_DEBUG
//  3. TraceLog    GST_DEBUG_FILE, GST_DEBUG
//  4. Graphs      GST_DEBUG_DUMP_DOT_DIR
//  5. EchoCancel  PULSE_PROP
//  6. Home        HOME
//  7. Extra, sorted by name
func Overrides(t Toggles, peer Peer) []Override {
	var out []Override
	if t.Messages {
		out = append(out, Override{VarMessagesDebug, MessagesAll})
	}
	if t.DebugLevel != "" {
		out = append(out, Override{VarDebug, t.DebugLevel})
	}
	if t.TraceLog {
		level := t.TraceLevel
		if level == "" {
			level = DefaultTraceLevel
		}
		out = append(out,
			Override{VarDebugFile, t.TraceFileFor(peer.Ordinal)},
			Override{VarDebug, level},
		)
	}
	if t.Graphs {
		dir := t.GraphDir
		if dir == "" {
			dir = DefaultGraphDir
		}
		out = append(out, Override{VarDumpDotDir, dir})
	}
	if t.EchoCancel {
		out = append(out, Override{VarPulseProp, EchoCancelProp})
	}
	if peer.Home != "" {
		out = append(out, Override{VarHome, peer.Home})
	}
	names := make([]string, 0, len(peer.Extra))
	for name := range peer.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, Override{name, peer.Extra[name]})
	}
	return out
}

// Build copies base and applies the toggle overrides for one peer. The base
// is never modified.
func Build(base Profile, t Toggles, peer Peer) Profile {
	p := base.Clone()
	for _, o := range Overrides(t, peer) {
		p[o.Name] = o.Value
	}
	return p
}
