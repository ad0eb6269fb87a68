package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
	"fieldsync/internal/syncer"
)

// ErrNotAllowed is returned by an unforced Trigger when the current network
// class may not be used for syncing.
var ErrNotAllowed = errors.New("sync not allowed on current connectivity")

// Runner performs one sync run.
type Runner interface {
	Run(ctx context.Context) (syncer.Result, error)
}

const flightKey = "sync"

// Gate decides when the runner may run and makes sure at most one run is in
// flight. Callers that arrive while a run is active share its result.
type Gate struct {
	runner Runner
	source connectivity.Source
	state  *syncer.State
	logger *slog.Logger

	allowCellular    bool
	wifiInterval     time.Duration
	cellularInterval time.Duration

	group singleflight.Group

	mu      sync.Mutex
	class   connectivity.Class
	baseCtx context.Context
	fires   sync.WaitGroup
}

// Option configures optional Gate behavior.
type Option func(*Gate)

// WithIntervals overrides the periodic intervals from config.
func WithIntervals(wifi, cellular time.Duration) Option {
	return func(g *Gate) {
		g.wifiInterval = wifi
		g.cellularInterval = cellular
	}
}

// WithState mirrors the connectivity class into the sync state.
func WithState(state *syncer.State) Option {
	return func(g *Gate) { g.state = state }
}

// New builds a gate over runner fed by source.
func New(cfg *config.Config, runner Runner, source connectivity.Source, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		runner:           runner,
		source:           source,
		logger:           logging.NewComponentLogger(logger, "trigger"),
		allowCellular:    cfg.Sync.AllowCellular,
		wifiInterval:     cfg.WifiInterval(),
		cellularInterval: cfg.CellularInterval(),
		class:            connectivity.ClassNone,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Class returns the last class the gate observed.
func (g *Gate) Class() connectivity.Class {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.class
}

// Allowed reports whether unforced runs may use class.
func (g *Gate) Allowed(class connectivity.Class) bool {
	switch class {
	case connectivity.ClassWifi, connectivity.ClassEthernet:
		return true
	case connectivity.ClassCellular:
		return g.allowCellular
	default:
		return false
	}
}

// interval is the periodic timer for class; zero means no timer.
func (g *Gate) interval(class connectivity.Class) time.Duration {
	if !g.Allowed(class) {
		return 0
	}
	if class.Metered() {
		return g.cellularInterval
	}
	return g.wifiInterval
}

// Trigger runs a sync now, or joins the one in flight. Without force the
// current class must be allowed.
func (g *Gate) Trigger(ctx context.Context, force bool) (syncer.Result, error) {
	class := g.Class()
	if !force && !g.Allowed(class) {
		return syncer.Result{}, fmt.Errorf("%w: %s", ErrNotAllowed, class)
	}
	reason := "manual"
	if force {
		reason = "forced"
	}
	return g.run(ctx, reason)
}

func (g *Gate) run(ctx context.Context, reason string) (syncer.Result, error) {
	runCtx := g.runContext(ctx)
	ch := g.group.DoChan(flightKey, func() (any, error) {
		result, err := g.runner.Run(runCtx)
		return result, err
	})

	select {
	case <-ctx.Done():
		return syncer.Result{}, ctx.Err()
	case res := <-ch:
		result, _ := res.Val.(syncer.Result)
		if res.Shared {
			g.logger.Debug("trigger joined in-flight run",
				logging.String("reason", reason),
				logging.String(logging.FieldRunID, result.RunID),
			)
		}
		return result, res.Err
	}
}

// runContext detaches a run from the caller that happened to start it; it is
// bound to the gate's own lifetime once Run has started.
func (g *Gate) runContext(ctx context.Context) context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.baseCtx != nil {
		return g.baseCtx
	}
	return context.WithoutCancel(ctx)
}

// Run drives the connectivity source and the periodic timer until ctx is
// cancelled. It waits for any run it started before returning.
func (g *Gate) Run(ctx context.Context) error {
	g.mu.Lock()
	g.baseCtx = ctx
	g.mu.Unlock()

	changes := make(chan connectivity.Class)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return g.source.Run(groupCtx, changes)
	})
	group.Go(func() error {
		return g.loop(groupCtx, changes)
	})
	err := group.Wait()
	g.fires.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (g *Gate) loop(ctx context.Context, changes <-chan connectivity.Class) error {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	reset := func(class connectivity.Class) {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
		if d := g.interval(class); d > 0 {
			timer = time.NewTimer(d)
			timerC = timer.C
		}
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case class := <-changes:
			previous := g.setClass(class)
			reset(class)
			if class != previous && g.Allowed(class) {
				g.fire(ctx, "connectivity")
			}
		case <-timerC:
			class := g.Class()
			reset(class)
			g.fire(ctx, "timer")
		}
	}
}

func (g *Gate) setClass(class connectivity.Class) connectivity.Class {
	g.mu.Lock()
	previous := g.class
	g.class = class
	g.mu.Unlock()
	if g.state != nil {
		g.state.SetConnectivity(string(class))
	}
	return previous
}

// fire starts a run in the background. A failed run is logged, not retried;
// the next tick or transition tries again.
func (g *Gate) fire(ctx context.Context, reason string) {
	g.fires.Add(1)
	go func() {
		defer g.fires.Done()
		result, err := g.run(ctx, reason)
		switch {
		case err == nil:
			g.logger.Debug("triggered run finished",
				logging.String("reason", reason),
				logging.Int("claimed", result.Claimed()),
			)
		case errors.Is(err, context.Canceled):
		case errors.Is(err, syncer.ErrRunActive):
			g.logger.Debug("run already active", logging.String("reason", reason))
		default:
			logging.WarnWithContext(g.logger, "triggered sync run failed", "sync_run_failed",
				logging.Error(err),
				logging.String("reason", reason),
				logging.String(logging.FieldErrorHint, "run 'fieldsync queue list' to inspect failed items"),
				logging.String(logging.FieldImpact, "the next timer tick or connectivity change retries"),
			)
		}
	}()
}
