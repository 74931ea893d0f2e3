// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"asyncnet/config"
	"asyncnet/internal/core"
	"asyncnet/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X asyncnet/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// flags holds the raw command-line values.  They are applied on top of
// the defaults, the config file and the environment, and only when the
// user actually set them.
type flags struct {
	listen      bool
	port        int
	bind        string
	noDNS       bool
	timeoutSec  int
	retries     int
	print       bool
	verbose     int
	configPath  string
	reusePort   bool
	readBuffer  int
	writeBuffer int
	workerIdle  time.Duration
	dryRun      bool
	showVersion bool
	showHelp    bool
}

// Execute parses args and runs the selected asyncnet mode.
func Execute(ctx context.Context, args []string) error {
	var f flags
	fs := newFlagSet(&f)

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if f.showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if f.showVersion {
		fmt.Printf("asyncnet %s\n", version)
		return nil
	}

	cfg, err := buildConfig(fs, &f)
	if err != nil {
		return err
	}
	if f.dryRun {
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetColor(isTerminal(os.Stderr))
	if cfg.File != "" {
		logger.Verbose("loaded config from %s", cfg.File)
	}

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// newFlagSet registers every flag onto f.
func newFlagSet(f *flags) *flag.FlagSet {
	fs := flag.NewFlagSet("asyncnet", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&f.listen, "listen", "l", false, "Listen mode")
	fs.IntVarP(&f.port, "port", "p", 0, "Local port to listen on (0 picks a free port)")
	fs.StringVarP(&f.bind, "bind", "b", config.DefaultBindAddress, "Address to bind listeners to")
	fs.BoolVarP(&f.noDNS, "no-dns", "n", false, "Numeric-only, no DNS resolution")
	fs.IntVarP(&f.timeoutSec, "timeout", "w", 0, "Connect timeout in seconds")
	fs.IntVar(&f.retries, "retries", 0, "Retry a failed connect this many times")

	// ── transport ────────────────────────────────────────────────
	fs.BoolVar(&f.reusePort, "reuse-port", false, "Set SO_REUSEPORT on listeners")
	fs.IntVar(&f.readBuffer, "read-buffer", config.DefaultBufferSize, "Read chunk size in bytes")
	fs.IntVar(&f.writeBuffer, "write-buffer", config.DefaultBufferSize, "Write chunk size in bytes")
	fs.DurationVar(&f.workerIdle, "worker-idle", config.DefaultWorkerIdleTimeout, "Idle time before a pool worker exits")
	fs.StringVar(&f.configPath, "config", "", "Load settings from a TOML file")

	// ── output ───────────────────────────────────────────────────
	fs.BoolVar(&f.print, "print", false, "Print received data instead of echoing it (with -l)")
	fs.CountVarP(&f.verbose, "verbose", "v", "Increase verbosity (repeatable)")

	fs.BoolVar(&f.dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&f.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }
	return fs
}

// buildConfig layers defaults, the config file, the environment and
// the flags that were set, then validates the result.
func buildConfig(fs *flag.FlagSet, f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		if err := config.LoadFile(f.configPath, cfg); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("listen", func() { cfg.Listen = f.listen })
	set("port", func() { cfg.LocalPort = f.port })
	set("bind", func() { cfg.BindAddress = f.bind })
	set("no-dns", func() { cfg.NoDNS = f.noDNS })
	set("timeout", func() { cfg.Timeout = time.Duration(f.timeoutSec) * time.Second })
	set("retries", func() { cfg.Retries = f.retries })
	set("print", func() { cfg.Print = f.print })
	set("verbose", func() { cfg.Verbose = min(cfg.Verbose+f.verbose, int(util.LogDebug)) })
	set("reuse-port", func() { cfg.ReusePort = f.reusePort })
	set("read-buffer", func() { cfg.ReadBufferSize = f.readBuffer })
	set("write-buffer", func() { cfg.WriteBufferSize = f.writeBuffer })
	set("worker-idle", func() { cfg.WorkerIdleTimeout = f.workerIdle })

	if err := parsePositional(cfg, fs.Args()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		if len(remaining) > 0 {
			return fmt.Errorf("too many arguments for listen mode")
		}
		return nil
	}

	// Connect mode: host port
	switch len(remaining) {
	case 0:
		if cfg.Host == "" {
			return fmt.Errorf("hostname required (use --help for usage)")
		}
		return nil
	case 1:
		cfg.Host = remaining[0]
		if cfg.Port == 0 {
			return fmt.Errorf("port required")
		}
		return nil
	case 2:
		cfg.Host = remaining[0]
		port, err := config.ParsePort(remaining[1])
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Port = port
		return nil
	default:
		return fmt.Errorf("too many arguments (expected <host> <port>)")
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `asyncnet – asynchronous TCP transport v%s

Usage:
  asyncnet [options] <host> <port>            Connect, relay stdin/stdout
  asyncnet [options] <host>                   Port from ASYNCNET_TARGET_PORT or the config file
  asyncnet -l [-p <port>] [options]           Listen and echo

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  ASYNCNET_HOST, ASYNCNET_TARGET_PORT (connect), ASYNCNET_PORT (listen),
  ASYNCNET_BIND, ASYNCNET_TIMEOUT, ... override the config file; flags
  override both.

Examples:
  asyncnet -l -p 9000                         Echo server on 9000
  asyncnet -l -p 9000 --print                 Print what clients send
  echo "ping" | asyncnet 127.0.0.1 9000       Send and show the reply
  asyncnet --retries 5 -w 3 db.internal 5432  Connect with retries
`)
}
