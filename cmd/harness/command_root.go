package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootOptions holds the command line flags. Flags left unset do not override
// the configuration file.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	mode         string
	executable   string
	stagger      time.Duration
	timeout      time.Duration
	readyPattern string
	readyTimeout time.Duration

	messages    bool
	debugLevel  string
	trace       bool
	traceLevel  string
	traceFile   string
	graphs      bool
	graphDir    string
	graphFormat string
	echoCancel  bool
}

// NewRootCmd builds the harness command. Interrupts are read from
// interrupts when non-nil, otherwise from SIGINT.
func NewRootCmd(interrupts <-chan os.Signal) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "nanotalk-harness",
		Short:         "Run two nanotalk peers against each other",
		Long:          "Launches two nanotalk instances as the two sides of a call, waits for both to exit and renders pipeline graphs when asked to.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sig := interrupts
			if sig == nil {
				ch := make(chan os.Signal, 2)
				signal.Notify(ch, os.Interrupt)
				defer signal.Stop(ch)
				sig = ch
			}
			h := &harness{
				opts:       opts,
				flags:      cmd.Flags(),
				stdout:     cmd.OutOrStdout(),
				stderr:     cmd.ErrOrStderr(),
				interrupts: sig,
			}
			return h.run(cmd.Context())
		},
	}

	f := root.Flags()
	f.StringVarP(&opts.configPath, "config", "f", "", "harness configuration file (.hcl, .yaml or .yml)")
	f.StringVar(&opts.logLevel, "log-level", "info", "harness log level (trace, debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "text", "harness log format (text or json)")

	f.StringVar(&opts.mode, "mode", "", "peer configuration mode: args, config or bare")
	f.StringVar(&opts.executable, "exec", "", "application executable for both peers")
	f.DurationVar(&opts.stagger, "stagger", 0, "delay between launching the first and the second peer")
	f.DurationVar(&opts.timeout, "timeout", 0, "stop both peers after this long (0 waits forever)")
	f.StringVar(&opts.readyPattern, "ready-pattern", "", "launch the second peer once the first one prints a line matching this regexp")
	f.DurationVar(&opts.readyTimeout, "ready-timeout", 10*time.Second, "longest wait for --ready-pattern")

	f.BoolVar(&opts.messages, "messages", false, "enable all GLib debug messages (G_MESSAGES_DEBUG=all)")
	f.StringVar(&opts.debugLevel, "debug-level", "", "GST_DEBUG pattern for console output")
	f.BoolVar(&opts.trace, "trace", false, "write GStreamer diagnostics to a per-peer trace file")
	f.StringVar(&opts.traceLevel, "trace-level", "", "GST_DEBUG pattern used with --trace")
	f.StringVar(&opts.traceFile, "trace-file", "", "trace file name, %d is replaced by the peer number")
	f.BoolVar(&opts.graphs, "graphs", false, "dump pipeline graphs and render them after the run")
	f.StringVar(&opts.graphDir, "graph-dir", "", "directory for pipeline graph dumps")
	f.StringVar(&opts.graphFormat, "graph-format", "", "rendered graph format passed to dot -T")
	f.BoolVar(&opts.echoCancel, "echo-cancel", false, "request an echo cancelling audio source (PULSE_PROP)")

	return root
}

// setupLogging configures the harness logs. They always go to os.Stderr,
// apart from the peer output written to the command streams.
func setupLogging(opts *rootOptions) error {
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	switch opts.logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
