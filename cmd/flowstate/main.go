package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/vanderheijden86/flowstate/pkg/config"
	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/metrics"
	"github.com/vanderheijden86/flowstate/pkg/version"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	configPath string
	profile    string
	rules      string
	diagram    string
	data       stringList
	snapshot   string
	title      string
	json       bool
	tui        bool
	watch      bool
	interval   time.Duration
	hooks      string
	noHooks    bool
	cpuProfile string
	version    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("flowstate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.configPath, "config", config.ConfigPath(), "Config file")
	fs.StringVar(&o.profile, "profile", "", "Named profile from the config file")
	fs.StringVar(&o.rules, "rules", "", "Rules file (yaml or json)")
	fs.StringVar(&o.diagram, "diagram", "", "Diagram file (yaml or json)")
	fs.Var(&o.data, "data", "Data file or directory (repeatable)")
	fs.StringVar(&o.snapshot, "snapshot", "", "Write an svg or png snapshot to this path")
	fs.StringVar(&o.title, "title", "", "Snapshot header title")
	fs.BoolVar(&o.json, "json", false, "Print the cycle report as JSON")
	fs.BoolVar(&o.tui, "tui", false, "Open the live terminal view even when output is redirected")
	fs.BoolVar(&o.watch, "watch", false, "Reload rules and diagram when their files change (TUI only)")
	fs.DurationVar(&o.interval, "interval", 0, "Refresh interval for the terminal view (0 uses the config)")
	fs.StringVar(&o.hooks, "hooks", "", "Hooks file (default .flowstate/hooks.yaml)")
	fs.BoolVar(&o.noHooks, "no-hooks", false, "Skip snapshot hooks")
	fs.StringVar(&o.cpuProfile, "cpu-profile", "", "Write CPU profile to file")
	fs.BoolVar(&o.version, "version", false, "Show version")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: flowstate [options]")
		fmt.Fprintln(stderr, "\nColors a flowchart diagram from metric data using threshold rules.")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return exitUsage
	}
	if o.version {
		fmt.Fprintf(stdout, "flowstate %s\n", version.String())
		return exitOK
	}

	if o.cpuProfile != "" {
		f, err := os.Create(o.cpuProfile)
		if err != nil {
			fmt.Fprintf(stderr, "Could not create CPU profile: %v\n", err)
			return exitError
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(stderr, "Could not start CPU profile: %v\n", err)
			return exitError
		}
		defer pprof.StopCPUProfile()
	}

	cfg, err := resolveConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	a, err := newApp(cfg, o.noHooks)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer a.close()
	defer logTimings()

	interactive := o.tui || (!o.json && o.snapshot == "" && isTerminal(stdout))
	if interactive {
		if err := runTUI(a, cfg); err != nil {
			fmt.Fprintf(stderr, "Error running flowstate: %v\n", err)
			return exitError
		}
		return exitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runOnce(ctx, a, o, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

// resolveConfig layers the config file, the selected profile and the flags.
func resolveConfig(o options) (config.Config, error) {
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.profile != "" {
		if cfg, err = cfg.WithProfile(o.profile); err != nil {
			return cfg, err
		}
	}
	if o.rules != "" {
		cfg.Rules = o.rules
	}
	if o.diagram != "" {
		cfg.Diagram = o.diagram
	}
	if len(o.data) > 0 {
		cfg.Sources = append([]string(nil), o.data...)
	}
	if o.snapshot != "" {
		cfg.Snapshot.Path = o.snapshot
	}
	if o.title != "" {
		cfg.Snapshot.Title = o.title
	}
	if o.hooks != "" {
		cfg.Hooks = o.hooks
	}
	if o.watch {
		cfg.Watch = true
	}
	if o.interval > 0 {
		cfg.RefreshInterval = o.interval
	}

	switch {
	case cfg.Rules == "":
		return cfg, errors.New("no rules file: pass --rules or set rules in the config")
	case cfg.Diagram == "":
		return cfg, errors.New("no diagram file: pass --diagram or set diagram in the config")
	case len(cfg.Sources) == 0:
		return cfg, errors.New("no data sources: pass --data or set sources in the config")
	}
	return cfg, nil
}

// runOnce runs a single cycle, then writes the snapshot and the JSON report
// as requested. Without either it prints the report.
func runOnce(ctx context.Context, a *app, o options, stdout, stderr io.Writer) error {
	rep, err := a.refresh(ctx)
	if err != nil {
		return err
	}
	if o.snapshot != "" {
		path, err := a.snapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Snapshot written to %s\n", path)
	}
	if o.json || o.snapshot == "" {
		data, err := rep.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
	}
	return nil
}

// logTimings traces the phase timings collected during the run.
func logTimings() {
	if !debug.Enabled() {
		return
	}
	debug.Section("timings")
	for _, s := range metrics.PhaseStats() {
		debug.Log("%s: %d calls, avg %.3fms, max %.3fms", s.Name, s.Count, s.AvgMs, s.MaxMs)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
