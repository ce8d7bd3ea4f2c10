package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/runner"
	"github.com/stretchr/testify/require"
)

func launchScript(t *testing.T, body string) *runner.Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nanotalk")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	h, err := runner.NewRunner(lib.NewID()).Launch(lib.PeerSpec{Name: "a", Command: lib.Command{Command: path}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop(100 * time.Millisecond) })
	return h
}

func TestPatternProbe_MatchesStderr(t *testing.T) {
	h := launchScript(t, "sleep 0.05; echo '** Message: Client ID 42' 1>&2; exec sleep 5")

	probe := PatternProbe(regexp.MustCompile(`Client ID`), 2*time.Second)
	require.NoError(t, probe(context.Background(), h))
}

func TestPatternProbe_TimesOut(t *testing.T) {
	h := launchScript(t, "exec sleep 5")

	probe := PatternProbe(regexp.MustCompile(`Client ID`), 50*time.Millisecond)
	require.ErrorIs(t, probe(context.Background(), h), context.DeadlineExceeded)
}

func TestPatternProbe_ProcessExitsFirst(t *testing.T) {
	h := launchScript(t, "echo bye")

	probe := PatternProbe(regexp.MustCompile(`Client ID`), 2*time.Second)
	require.Error(t, probe(context.Background(), h))
}

func TestPatternProbe_RequiresTranscripts(t *testing.T) {
	probe := PatternProbe(regexp.MustCompile(`x`), time.Second)
	require.ErrorIs(t, probe(context.Background(), newFakeProcess("a")), ErrNoTranscript)
}
