package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/peers"
	"github.com/martinjaros/nanotalk2/pkg/lib/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultMatchesLauncher(t *testing.T) {
	s, err := Default().Settings()
	require.NoError(t, err)

	assert.Equal(t, peers.ModeArgs, s.Mode)
	assert.Equal(t, 100*time.Millisecond, s.Stagger)
	assert.Zero(t, s.Timeout)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, profile.Toggles{Messages: true, GraphDir: wd}, s.Toggles)
	assert.Equal(t, "svg", s.GraphFormat)

	assert.Equal(t, DefaultExecutable, s.A.Executable)
	assert.Equal(t, lib.RoleListener, s.A.Role)
	assert.Equal(t, []string{"-s", "incoming-call.ogg", "-k", "test1.key", "-a", "aliases.txt"}, peers.Args(s.Mode, s.A))
	assert.Equal(t, []string{"-s", "incoming-call.ogg", "-k", "test2.key", "-a", "aliases.txt", "-l", "5005", "-h", "localhost"}, peers.Args(s.Mode, s.B))
}

const sampleHCL = `
mode       = "args"
executable = "/usr/bin/nanotalk"
stagger    = "250ms"
timeout    = "2m"

ready_pattern = "Client ID"
ready_timeout = "5s"

diagnostics {
  messages     = true
  trace_log    = true
  trace_file   = "peer%d.log"
  graphs       = true
  graph_dir    = "graphs"
  graph_format = "png"
  echo_cancel  = true
}

peer "alice" {
  role    = "listener"
  key     = "test1.key"
  aliases = "aliases.txt"
  home    = "${env.NANOTALK_TEST_ROOT}/alice"
  env = {
    LANG = "C"
  }
}

peer "bob" {
  role           = "caller"
  executable     = "./nanotalk-dev"
  key            = "test2.key"
  aliases        = "aliases.txt"
  local_port     = 5005
  bootstrap_host = "localhost"
  bootstrap_port = 5004
  ipv6           = true
  args           = ["--extra"]
  delay          = "300ms"
}
`

func TestLoadHCL(t *testing.T) {
	path := writeFile(t, "harness.hcl", sampleHCL)

	cfg, err := LoadHCL(path, []string{"NANOTALK_TEST_ROOT=/srv/test", "1BAD=x"})
	require.NoError(t, err)
	s, err := cfg.Settings()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, s.Stagger)
	assert.Equal(t, 2*time.Minute, s.Timeout)
	assert.Equal(t, 5*time.Second, s.ReadyTimeout)
	require.NotNil(t, s.ReadyPattern)
	assert.True(t, s.ReadyPattern.MatchString("Client ID abc"))
	assert.Equal(t, "png", s.GraphFormat)
	graphDir, err := filepath.Abs("graphs")
	require.NoError(t, err)
	assert.Equal(t, profile.Toggles{
		Messages:   true,
		TraceLog:   true,
		TraceFile:  "peer%d.log",
		Graphs:     true,
		GraphDir:   graphDir,
		EchoCancel: true,
	}, s.Toggles)

	assert.Equal(t, "alice", s.A.Name)
	assert.Equal(t, "/usr/bin/nanotalk", s.A.Executable)
	assert.Equal(t, "/srv/test/alice", s.A.Home)
	assert.Equal(t, map[string]string{"LANG": "C"}, s.A.Env)

	assert.Equal(t, "bob", s.B.Name)
	assert.Equal(t, lib.RoleCaller, s.B.Role)
	assert.Equal(t, "./nanotalk-dev", s.B.Executable)
	assert.Equal(t, 300*time.Millisecond, s.B.Delay)
	assert.Equal(t, []string{"-k", "test2.key", "-a", "aliases.txt", "-l", "5005", "-6", "-h", "localhost", "-p", "5004", "--extra"}, peers.Args(s.Mode, s.B))
}

func TestLoadHCL_SyntaxError(t *testing.T) {
	path := writeFile(t, "broken.hcl", `peer "a" {`)

	_, err := LoadHCL(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse HCL file")
}

func TestLoadHCL_UnknownAttribute(t *testing.T) {
	path := writeFile(t, "unknown.hcl", `colour = "blue"`)

	_, err := LoadHCL(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode HCL file")
}

const sampleYAML = `
mode: bare
stagger: 50ms
diagnostics:
  messages: true
  debug_level: "*:INFO"
peers:
  - name: a
    role: symmetric
    home: /tmp/peer1
  - name: b
    role: symmetric
    home: /tmp/peer2
`

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "harness.yaml", sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	s, err := cfg.Settings()
	require.NoError(t, err)

	assert.Equal(t, peers.ModeBare, s.Mode)
	assert.Equal(t, 50*time.Millisecond, s.Stagger)
	assert.Equal(t, "*:INFO", s.Toggles.DebugLevel)
	assert.Equal(t, lib.RoleSymmetric, s.A.Role)
	assert.Equal(t, "/tmp/peer2", s.B.Home)
	assert.Equal(t, DefaultExecutable, s.B.Executable)
}

func TestLoadYAML_UnknownField(t *testing.T) {
	path := writeFile(t, "harness.yml", "mode: args\ncolour: blue\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("harness.toml")
	require.Error(t, err)
}

func TestSettings_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"one peer", func(c *Config) { c.Peers = c.Peers[:1] }},
		{"bad stagger", func(c *Config) { c.Stagger = "soon" }},
		{"negative stagger", func(c *Config) { c.Stagger = "-1s" }},
		{"bad timeout", func(c *Config) { c.Timeout = "1 minute" }},
		{"bad pattern", func(c *Config) { c.ReadyPattern = "(" }},
		{"bad role", func(c *Config) { c.Peers[0].Role = "host" }},
		{"bad delay", func(c *Config) { c.Peers[1].Delay = "later" }},
		{"bad mode", func(c *Config) { c.Mode = "auto" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			_, err := cfg.Settings()
			var cfgErr *lib.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestSettings_GraphDirIsAbsolute(t *testing.T) {
	cfg := Default()
	cfg.Diagnostics.GraphDir = "dumps"
	s, err := cfg.Settings()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(s.Toggles.GraphDir))
	assert.Equal(t, "dumps", filepath.Base(s.Toggles.GraphDir))

	cfg.Diagnostics.GraphDir = "/var/tmp/dumps"
	s, err = cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/dumps", s.Toggles.GraphDir)
}
