package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vanderheijden86/flowstate/internal/datasource"
	"github.com/vanderheijden86/flowstate/pkg/config"
	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/engine"
	"github.com/vanderheijden86/flowstate/pkg/hooks"
	"github.com/vanderheijden86/flowstate/pkg/loader"
	"github.com/vanderheijden86/flowstate/pkg/metric"
	"github.com/vanderheijden86/flowstate/pkg/render"
	"github.com/vanderheijden86/flowstate/pkg/rule"
)

// app owns the flowchart and the files feeding it. The TUI calls refresh
// and reload from its command goroutines, so every method locks.
type app struct {
	mu      sync.Mutex
	cfg     config.Config
	flow    *engine.Flowchart
	sources []datasource.Source
	prev    []metric.Metric
	noHooks bool
}

func newApp(cfg config.Config, noHooks bool) (*app, error) {
	a := &app{cfg: cfg, noHooks: noHooks}
	sources, err := resolveSources(cfg.Sources)
	if err != nil {
		return nil, err
	}
	a.sources = sources
	if err := a.loadFlowchart(); err != nil {
		return nil, err
	}
	return a, nil
}

// resolveSources expands directories into the data files they contain.
func resolveSources(paths []string) ([]datasource.Source, error) {
	var out []datasource.Source
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("data source: %w", err)
		}
		if info.IsDir() {
			found, err := datasource.Discover(p)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
			continue
		}
		src := datasource.Source{Path: p}
		if err := src.Normalize(); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func (a *app) loadFlowchart() error {
	d, err := loader.LoadDiagram(a.cfg.Diagram)
	if err != nil {
		return err
	}
	ds, err := loader.LoadRules(a.cfg.Rules)
	if err != nil {
		return err
	}
	reg := metric.NewRegistry()
	f := engine.New(d, rule.NewRegistry(reg), reg)
	if err := f.ReloadRules(ds); err != nil {
		f.Close()
		return err
	}
	if a.flow != nil {
		a.flow.Close()
	}
	a.flow = f
	return nil
}

// refresh loads every data source and runs one cycle.
func (a *app) refresh(ctx context.Context) (engine.Report, error) {
	batch, results, err := datasource.Load(ctx, a.sources)
	if err != nil {
		return engine.Report{}, err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 && failed == len(results) {
		return engine.Report{}, fmt.Errorf("all %d data sources failed", failed)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if debug.Enabled() {
		debug.Log("refresh: %s", datasource.Compare(a.prev, batch).Summary())
	}
	a.prev = batch
	if err := a.flow.Refresh(ctx, batch); err != nil {
		return engine.Report{}, err
	}
	return a.flow.Snapshot(), nil
}

// reload re-reads the files among paths. A rules change keeps cell state;
// a diagram change rebuilds the flowchart. Data files need nothing here
// since refresh always re-reads them.
func (a *app) reload(paths []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range paths {
		switch filepath.Clean(p) {
		case filepath.Clean(a.cfg.Diagram):
			return a.loadFlowchart()
		}
	}
	for _, p := range paths {
		if filepath.Clean(p) != filepath.Clean(a.cfg.Rules) {
			continue
		}
		ds, err := loader.LoadRules(a.cfg.Rules)
		if err != nil {
			return err
		}
		return a.flow.ReloadRules(ds)
	}
	return nil
}

// watchPaths lists the files whose changes the TUI reacts to.
func (a *app) watchPaths() []string {
	paths := []string{a.cfg.Rules, a.cfg.Diagram}
	for _, s := range a.sources {
		paths = append(paths, s.Path)
	}
	return paths
}

// snapshot renders the last report, running pre and post hooks around it.
func (a *app) snapshot(ctx context.Context) (string, error) {
	a.mu.Lock()
	rep := a.flow.Snapshot()
	a.mu.Unlock()

	path := a.cfg.Snapshot.Path
	if path == "" {
		path = filepath.Join(config.StateDir(), "snapshot.svg")
	}
	sc := hooks.SnapshotContext{
		SnapshotPath: path,
		Format:       render.FormatOf(path),
		CellCount:    len(rep.Cells),
		MaxLevel:     rep.MaxLevel,
		Timestamp:    time.Now(),
	}
	exec, err := hooks.Load(a.cfg.Hooks, sc, a.noHooks)
	if err != nil {
		return "", fmt.Errorf("hooks: %w", err)
	}
	if exec != nil {
		if err := exec.RunPreSnapshot(ctx); err != nil {
			return "", err
		}
	}

	written, err := render.SaveSnapshot(render.Options{
		Path:   path,
		Title:  a.cfg.Snapshot.Title,
		Report: rep,
	})
	if err != nil {
		return "", err
	}

	if exec != nil {
		sc.SnapshotPath = written
		exec.SetContext(sc)
		if err := exec.RunPostSnapshot(ctx); err != nil {
			debug.Error("%s", exec.Summary())
			return written, err
		}
		debug.Log("%s", exec.Summary())
	}
	return written, nil
}

func (a *app) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flow != nil {
		a.flow.Close()
	}
}
