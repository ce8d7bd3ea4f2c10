package peers

import (
	"errors"
	"testing"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func launcherRequest() Request {
	return Request{
		Mode:    ModeArgs,
		Toggles: profile.Toggles{Messages: true, TraceLog: true},
		Base:    profile.Profile{"DISPLAY": ":0"},
		A: Peer{
			Name:       "a",
			Role:       lib.RoleListener,
			Executable: "../src/nanotalk",
			Sound:      "incoming-call.ogg",
			Key:        "keyA",
			Aliases:    "aliases.txt",
		},
		B: Peer{
			Name:          "b",
			Role:          lib.RoleCaller,
			Executable:    "../src/nanotalk",
			Sound:         "incoming-call.ogg",
			Key:           "keyB",
			Aliases:       "aliases.txt",
			LocalPort:     5005,
			BootstrapHost: "localhost",
		},
	}
}

func requireConfigurationError(t *testing.T, err error) {
	t.Helper()
	var cfgErr *lib.ConfigurationError
	require.Error(t, err)
	require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %T: %v", err, err)
}

func TestResolve_LauncherScenario(t *testing.T) {
	a, b, err := Resolve(launcherRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"-s", "incoming-call.ogg", "-k", "keyA", "-a", "aliases.txt"}, a.Command.Args)
	assert.Equal(t, []string{"-s", "incoming-call.ogg", "-k", "keyB", "-a", "aliases.txt", "-l", "5005", "-h", "localhost"}, b.Command.Args)
	assert.Equal(t, lib.RoleListener, a.Role)
	assert.Equal(t, lib.RoleCaller, b.Role)

	assert.Equal(t, "test1.log", a.Env[profile.VarDebugFile])
	assert.Equal(t, "test2.log", b.Env[profile.VarDebugFile])
	assert.Equal(t, profile.Profile{profile.VarDebugFile: "test2.log"}, b.Env.Diff(a.Env))

	a.Env[profile.VarMessagesDebug] = "changed"
	assert.Equal(t, "all", b.Env[profile.VarMessagesDebug])
}

func TestResolve_ConfigMode(t *testing.T) {
	req := launcherRequest()
	req.Mode = ModeConfig
	req.A.Config = "peer1.conf"
	req.B.Config = "peer2.conf"
	req.B.Args = []string{"--verbose"}

	a, b, err := Resolve(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"-c", "peer1.conf", "-k", "keyA", "-a", "aliases.txt"}, a.Command.Args)
	assert.Equal(t, []string{"-c", "peer2.conf", "-k", "keyB", "-a", "aliases.txt", "--verbose"}, b.Command.Args)
}

func TestResolve_BareMode(t *testing.T) {
	req := launcherRequest()
	req.Mode = ModeBare
	req.A.Home = "/tmp/peer1"
	req.B.Home = "/tmp/peer2"

	a, b, err := Resolve(req)
	require.NoError(t, err)

	assert.Empty(t, a.Command.Args)
	assert.Empty(t, b.Command.Args)
	assert.Equal(t, "/tmp/peer1", a.Env[profile.VarHome])
	assert.Equal(t, "/tmp/peer2", b.Env[profile.VarHome])
}

func TestArgs_AllFlags(t *testing.T) {
	got := Args(ModeArgs, Peer{
		Key:           "k",
		LocalPort:     6000,
		IPv6:          true,
		BootstrapHost: "example.org",
		BootstrapPort: 5004,
		Args:          []string{"extra"},
	})

	assert.Equal(t, []string{"-k", "k", "-l", "6000", "-6", "-h", "example.org", "-p", "5004", "extra"}, got)
}

func TestValidate_Collisions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"same home", func(r *Request) {
			r.A.Home = "/tmp/peer"
			r.B.Home = "/tmp/peer/"
		}},
		{"same home through env", func(r *Request) {
			r.A.Home = "/tmp/peer"
			r.B.Env = map[string]string{profile.VarHome: "/tmp/peer"}
		}},
		{"bare mode same home", func(r *Request) {
			r.Mode = ModeBare
			r.A.Home = "/tmp/same"
			r.B.Home = "/tmp/same"
		}},
		{"bare mode without home", func(r *Request) {
			r.Mode = ModeBare
			r.A.Home = "/tmp/a"
		}},
		{"explicit home equals inherited home", func(r *Request) {
			r.Base[profile.VarHome] = "/home/tester"
			r.B.Home = "/home/tester/"
		}},
		{"same trace file", func(r *Request) { r.Toggles.TraceFile = "trace.log" }},
		{"same trace file in same dir", func(r *Request) {
			r.Toggles.TraceFile = "trace.log"
			r.A.Dir = "run"
			r.B.Dir = "./run"
		}},
		{"trace file with string verb", func(r *Request) { r.Toggles.TraceFile = "run-%s.log" }},
		{"trace file with two verbs", func(r *Request) { r.Toggles.TraceFile = "run-%d-%d.log" }},
		{"trace file with lone percent", func(r *Request) { r.Toggles.TraceFile = "run-%d%" }},
		{"same key", func(r *Request) { r.B.Key = "./keyA" }},
		{"same explicit port", func(r *Request) {
			r.A.LocalPort = 5005
		}},
		{"both default port", func(r *Request) {
			r.B.LocalPort = 0
		}},
		{"explicit default port", func(r *Request) {
			r.B.LocalPort = DefaultPort
		}},
		{"caller before listener", func(r *Request) {
			r.A.Role, r.B.Role = lib.RoleCaller, lib.RoleListener
		}},
		{"unknown role", func(r *Request) { r.A.Role = "bystander" }},
		{"missing executable", func(r *Request) { r.B.Executable = "" }},
		{"same name", func(r *Request) { r.B.Name = "a" }},
		{"config mode without file", func(r *Request) { r.Mode = ModeConfig }},
		{"unknown mode", func(r *Request) { r.Mode = "interactive" }},
		{"negative delay", func(r *Request) { r.B.Delay = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := launcherRequest()
			tt.mutate(&req)

			a, b, err := Resolve(req)
			requireConfigurationError(t, err)
			assert.Empty(t, a.Name)
			assert.Empty(t, b.Name)
		})
	}
}

func TestValidate_TraceFiles(t *testing.T) {
	req := launcherRequest()
	req.Toggles.TraceFile = "trace.log"
	req.A.Dir = "peer-a"
	req.B.Dir = "peer-b"
	require.NoError(t, Validate(req), "one name in two directories does not collide")

	req = launcherRequest()
	req.Toggles.TraceFile = "/var/log/trace.log"
	req.A.Dir = "peer-a"
	req.B.Dir = "peer-b"
	requireConfigurationError(t, Validate(req))

	req = launcherRequest()
	req.Toggles.TraceLog = false
	req.Toggles.TraceFile = "trace.log"
	require.NoError(t, Validate(req), "the pattern is unused without a trace log")

	req = launcherRequest()
	req.Toggles.TraceFile = "100%%-%d.log"
	a, b, err := Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "100%-1.log", a.Env[profile.VarDebugFile])
	assert.Equal(t, "100%-2.log", b.Env[profile.VarDebugFile])
}

func TestValidate_InheritedHomes(t *testing.T) {
	req := launcherRequest()
	req.Base[profile.VarHome] = "/home/tester"
	require.NoError(t, Validate(req), "two inheriting peers are allowed outside bare mode")

	req.B.Home = "/home/tester/peer-b"
	require.NoError(t, Validate(req))
}

func TestValidate_ConfigModeIgnoresPorts(t *testing.T) {
	req := launcherRequest()
	req.Mode = ModeConfig
	req.A.Config = "a.conf"
	req.B.Config = "b.conf"
	req.B.LocalPort = 0

	require.NoError(t, Validate(req))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeArgs, m)

	m, err = ParseMode("bare")
	require.NoError(t, err)
	assert.Equal(t, ModeBare, m)

	_, err = ParseMode("nope")
	requireConfigurationError(t, err)
}
