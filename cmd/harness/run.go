package main

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/martinjaros/nanotalk2/pkg/lib/artifacts"
	"github.com/martinjaros/nanotalk2/pkg/lib/config"
	"github.com/martinjaros/nanotalk2/pkg/lib/lifecycle"
	"github.com/martinjaros/nanotalk2/pkg/lib/peers"
	"github.com/martinjaros/nanotalk2/pkg/lib/profile"
	"github.com/martinjaros/nanotalk2/pkg/lib/runner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// forwardDrain bounds how long the harness waits for peer output to be
// printed after both peers exited.
const forwardDrain = time.Second

type harness struct {
	opts       *rootOptions
	flags      *pflag.FlagSet
	stdout     io.Writer
	stderr     io.Writer
	interrupts <-chan os.Signal
}

// lockedWriter serializes writes from the per-peer forwarders.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (h *harness) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var mu sync.Mutex
	stdout := lockedWriter{mu: &mu, w: h.stdout}
	stderr := lockedWriter{mu: &mu, w: h.stderr}
	runID := lib.NewID()
	log := logrus.WithField("run", lib.ShortID(runID))

	settings, err := h.settings()
	if err != nil {
		return err
	}

	a, b, err := peers.Resolve(peers.Request{
		Mode:    settings.Mode,
		Toggles: settings.Toggles,
		Base:    profile.FromEnviron(os.Environ()),
		A:       settings.A,
		B:       settings.B,
	})
	if err != nil {
		return err
	}
	// Neither peer starts unless both executables are usable.
	for _, spec := range []lib.PeerSpec{a, b} {
		if _, err := runner.Preflight(spec); err != nil {
			return err
		}
	}

	if settings.Toggles.Graphs {
		if err := artifacts.Clean(settings.Toggles.GraphDir, settings.GraphFormat); err != nil {
			log.WithError(err).Warn("Failed to remove stale graph artifacts")
		}
	}

	var forwards []<-chan struct{}
	opts := lifecycle.Options{
		Stagger:    settings.Stagger,
		Timeout:    settings.Timeout,
		Interrupts: h.interrupts,
		Out:        stdout,
		OnLaunch: func(spec lib.PeerSpec, p lifecycle.Process) {
			if handle, ok := p.(*runner.Handle); ok {
				forwards = append(forwards, handle.Forward(stdout, stderr))
			}
		},
	}
	if settings.ReadyPattern != nil {
		opts.Ready = lifecycle.PatternProbe(settings.ReadyPattern, settings.ReadyTimeout)
	}

	log.WithFields(logrus.Fields{"mode": settings.Mode, "stagger": settings.Stagger}).Info("Starting peers")
	peerRunner := runner.NewRunner(runID)
	controller := lifecycle.New(lifecycle.RunnerLauncher{Runner: peerRunner}, opts)
	outcome, err := controller.Run(ctx, a, b)
	if err != nil {
		return err
	}
	if err := peerRunner.Close(); err != nil {
		log.WithError(err).Debug("Run cgroup kept, a peer is still alive")
	}

	if outcome.A.Exited() && (outcome.B.Exited() || !outcome.B.Launched) {
		drainForwards(forwards)
	}
	printOutcome(stdout, outcome, a, b)

	if settings.Toggles.Graphs {
		res, err := artifacts.PostProcess(ctx, settings.Toggles.GraphDir, settings.GraphFormat, artifacts.DotRenderer{})
		var convErr *lib.ArtifactConversionError
		switch {
		case errors.As(err, &convErr):
			log.WithError(err).Warn("Pipeline graphs were not rendered; intermediate files are kept")
		case err != nil:
			log.WithError(err).Warn("Pipeline graph post-processing failed")
		default:
			log.WithField("rendered", len(res.Rendered)).Info("Pipeline graphs rendered")
		}
	}
	return nil
}

func drainForwards(forwards []<-chan struct{}) {
	deadline := time.After(forwardDrain)
	for _, done := range forwards {
		select {
		case <-done:
		case <-deadline:
			return
		}
	}
}

// settings loads the configuration file, or the built-in default, and
// applies explicitly set flags on top of it.
func (h *harness) settings() (*config.Settings, error) {
	cfg := config.Default()
	if h.opts.configPath != "" {
		loaded, err := config.Load(h.opts.configPath)
		if err != nil {
			return nil, lib.NewConfigurationError("%v", err)
		}
		cfg = loaded
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = &config.Diagnostics{}
	}

	o, d := h.opts, cfg.Diagnostics
	set := h.flags.Changed
	if set("mode") {
		cfg.Mode = o.mode
	}
	if set("exec") {
		cfg.Executable = o.executable
		for i := range cfg.Peers {
			cfg.Peers[i].Executable = ""
		}
	}
	if set("stagger") {
		cfg.Stagger = o.stagger.String()
	}
	if set("timeout") {
		cfg.Timeout = o.timeout.String()
	}
	if set("ready-pattern") {
		cfg.ReadyPattern = o.readyPattern
	}
	if set("ready-timeout") || cfg.ReadyTimeout == "" {
		cfg.ReadyTimeout = o.readyTimeout.String()
	}
	if set("messages") {
		d.Messages = o.messages
	}
	if set("debug-level") {
		d.DebugLevel = o.debugLevel
	}
	if set("trace") {
		d.TraceLog = o.trace
	}
	if set("trace-level") {
		d.TraceLevel = o.traceLevel
	}
	if set("trace-file") {
		d.TraceFile = o.traceFile
	}
	if set("graphs") {
		d.Graphs = o.graphs
	}
	if set("graph-dir") {
		d.GraphDir = o.graphDir
	}
	if set("graph-format") {
		d.GraphFormat = o.graphFormat
	}
	if set("echo-cancel") {
		d.EchoCancel = o.echoCancel
	}
	return cfg.Settings()
}
