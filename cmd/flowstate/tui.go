package main

import (
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/flowstate/pkg/config"
	"github.com/vanderheijden86/flowstate/pkg/debug"
	"github.com/vanderheijden86/flowstate/pkg/ui"
	"github.com/vanderheijden86/flowstate/pkg/watcher"
)

func runTUI(a *app, cfg config.Config) error {
	opts := ui.Options{
		Refresh:    a.refresh,
		Reload:     a.reload,
		Snapshot:   a.snapshot,
		Interval:   cfg.RefreshInterval,
		Theme:      cfg.UI.Theme,
		SplitRatio: cfg.UI.SplitRatio,
	}
	if cfg.Watch {
		w, err := watcher.New(a.watchPaths(), watcher.WithOnError(func(err error) {
			debug.Error("watcher: %v", err)
		}))
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
		if w.IsPolling() {
			debug.Log("watcher: polling every %v (%s)", w.PollInterval(), w.FilesystemType())
		}
		opts.Watcher = w
	}
	return runTUIProgram(ui.NewModel(opts))
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set FS_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("FS_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()

				select {
				case <-runDone:
					return
				case <-time.After(2 * time.Second):
				}

				p.Kill()
			}()
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}
