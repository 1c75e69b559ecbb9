package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/25smoking/chanwatch/internal/command"
	"github.com/25smoking/chanwatch/internal/config"
	"github.com/25smoking/chanwatch/internal/coordinator"
	"github.com/25smoking/chanwatch/internal/registry"
	"github.com/25smoking/chanwatch/internal/report"
	"github.com/25smoking/chanwatch/internal/scanner"
	"github.com/25smoking/chanwatch/internal/topology"
	"github.com/25smoking/chanwatch/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// app holds the wired components of one watch session.
type app struct {
	cfg        *config.Config
	client     registry.Client
	model      *topology.Model
	latch      *coordinator.Latch
	scanner    *scanner.Scanner
	dispatcher *command.Dispatcher
	display    *command.Display
}

func newApp(cfg *config.Config) (*app, error) {
	client, err := registry.New(cfg.Registry, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		client:     client,
		model:      topology.NewModel(cfg.Scan.StaleAfterScans),
		latch:      coordinator.NewLatch(),
		dispatcher: command.NewDispatcher(),
		display:    &command.Display{},
	}
	a.scanner = scanner.New(scanner.Config{
		ScanInterval: cfg.Scan.Interval(),
		MaxBackoff:   cfg.Scan.MaxBackoff(),
	}, client, a.model, a.latch, log)

	if err := command.RegisterBuiltins(a.dispatcher, a.latch, a.display, a.scanner); err != nil {
		return nil, err
	}
	return a, nil
}

func runWatch(cmd *cobra.Command, plain bool) error {
	cfg, err := setup(cmd, !plain)
	if err != nil {
		return err
	}
	checkPrivileges(cfg.Registry.Kind)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scanner.Run(ctx)
	})
	g.Go(func() error {
		defer a.scanner.Stop()
		if plain {
			return a.runPlain(ctx)
		}
		return a.runTUI(ctx)
	})
	return g.Wait()
}

func (a *app) runTUI(ctx context.Context) error {
	m := tui.New(a.model, a.latch, a.dispatcher, a.display, a.scanner.Status, a.cfg.UI.Tick(), a.client.Name())
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// runPlain prints a diff line for every committed change until ctx ends.
func (a *app) runPlain(ctx context.Context) error {
	console := report.NewConsole(os.Stdout, isatty.IsTerminal(os.Stdout.Fd()))
	console.PrintBanner(a.client.Name())

	prev := topology.Empty()
	ticker := time.NewTicker(a.cfg.UI.Tick())
	defer ticker.Stop()

	var lastFailures int64
	for {
		select {
		case <-ctx.Done():
			console.PrintSummary(a.scanner.Status())
			return nil
		case <-a.latch.Wake():
		case <-ticker.C:
		}

		if st := a.scanner.Status(); st.ConsecutiveFailures != lastFailures {
			lastFailures = st.ConsecutiveFailures
			if lastFailures > 0 {
				console.PrintStatus(st)
			}
		}

		if !a.latch.ConsumeIfDirty() {
			continue
		}
		prev = printUpdate(console, prev, a.model.Current())
	}
}

// printUpdate prints the whole first snapshot, then only what changed.
func printUpdate(console *report.Console, prev, cur *topology.Snapshot) *topology.Snapshot {
	if prev.Sequence == 0 {
		console.PrintSnapshot(cur)
	} else {
		console.PrintDiff(cur.Sequence, topology.Compare(prev, cur))
	}
	return cur
}
