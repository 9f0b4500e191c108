// Package scan runs repeated passes over the target list, draining one filter per
// target and alerting once per listing.
package scan

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/skinscout/internal/clock"
	"github.com/rewired-gh/skinscout/internal/logger"
	"github.com/rewired-gh/skinscout/internal/market"
	"github.com/rewired-gh/skinscout/internal/metrics"
	"github.com/rewired-gh/skinscout/internal/models"
)

var (
	// ErrAlreadyRunning is returned when Run is called while a run is in progress.
	ErrAlreadyRunning = errors.New("scan already running")
	// ErrUnknownMode is returned for a mode with no registered finder.
	ErrUnknownMode = errors.New("unknown scan mode")
)

// Mode selects which filter a run drives.
type Mode string

const (
	ModePatterns    Mode = "patterns"
	ModeDecorations Mode = "decorations"
)

// ParseMode converts a user-supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePatterns, ModeDecorations:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Finder yields the matching items for one target name.
type Finder func(ctx context.Context, name string) iter.Seq[models.Item]

// FinderOf adapts a typed filter to a Finder.
func FinderOf[T models.Item](find func(ctx context.Context, name string) iter.Seq[T]) Finder {
	return func(ctx context.Context, name string) iter.Seq[models.Item] {
		return func(yield func(models.Item) bool) {
			for item := range find(ctx, name) {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// TargetSource returns the target names for one pass.
type TargetSource func() ([]string, error)

// FileTargets reads base names from path on every call and optionally expands them
// into quality and StatTrak variants.
func FileTargets(path string, expand bool, qualities []string, statTrakPrefix string) TargetSource {
	return func() ([]string, error) {
		bases, err := market.LoadTargets(path)
		if err != nil {
			return nil, err
		}
		if !expand {
			return bases, nil
		}
		return market.ExpandTargets(bases, qualities, statTrakPrefix), nil
	}
}

// emptyPassDelay is the minimum wait after a pass with no targets.
const emptyPassDelay = 10 * time.Second

// Config holds pass pacing.
type Config struct {
	LaunchDelay time.Duration
	PassDelay   time.Duration
	// MaxPasses ends a run after that many passes; zero runs until stopped.
	MaxPasses int
}

// Status is a snapshot of the orchestrator.
type Status struct {
	Running   bool
	Mode      Mode
	RunID     string
	Passes    int
	Alerts    int
	StartedAt time.Time
}

// Orchestrator owns the seen set and the run lifecycle. At most one run is active.
type Orchestrator struct {
	finders map[Mode]Finder
	targets TargetSource
	itemURL func(name string) string
	sink    Sink
	clock   clock.Clock
	metrics *metrics.Collector
	cfg     Config
	seen    *SeenSet

	rngMu sync.Mutex
	rng   *rand.Rand

	// lifeMu orders run start against Stop.
	lifeMu   sync.Mutex
	running  atomic.Bool
	stopping atomic.Bool

	mu     sync.Mutex
	status Status
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Finders map[Mode]Finder
	Targets TargetSource
	ItemURL func(name string) string
	Sink    Sink
	Clock   clock.Clock
	Metrics *metrics.Collector
	Rand    *rand.Rand
	Config  Config
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.NewReal()
	}
	if opts.Sink == nil {
		opts.Sink = LogSink{}
	}
	if opts.ItemURL == nil {
		opts.ItemURL = func(string) string { return "" }
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Orchestrator{
		finders: opts.Finders,
		targets: opts.Targets,
		itemURL: opts.ItemURL,
		sink:    opts.Sink,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		rng:     opts.Rand,
		cfg:     opts.Config,
		seen:    NewSeenSet(),
	}
}

// Run scans in the given mode until Stop is called, MaxPasses is reached, or ctx is
// done. A stopped run returns nil; a cancelled one returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, mode Mode) error {
	finder, ok := o.finders[mode]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	o.lifeMu.Lock()
	if o.running.Load() {
		o.lifeMu.Unlock()
		return ErrAlreadyRunning
	}
	o.stopping.Store(false)
	o.running.Store(true)
	o.lifeMu.Unlock()
	defer o.running.Store(false)

	runID := uuid.NewString()
	o.mu.Lock()
	o.status = Status{Running: true, Mode: mode, RunID: runID, StartedAt: o.clock.Now()}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.status.Running = false
		o.mu.Unlock()
	}()

	logger.Info("Starting %s scan %s", mode, runID)
	for pass := 1; o.active(ctx); pass++ {
		targets, err := o.targets()
		if err != nil {
			return fmt.Errorf("failed to load targets: %w", err)
		}
		o.rngMu.Lock()
		market.Shuffle(targets, o.rng)
		o.rngMu.Unlock()

		logger.Info("Pass %d: scanning %d targets", pass, len(targets))
		o.runPass(ctx, mode, runID, finder, targets)

		o.metrics.IncPasses(string(mode))
		o.mu.Lock()
		o.status.Passes = pass
		o.mu.Unlock()

		if o.cfg.MaxPasses > 0 && pass >= o.cfg.MaxPasses {
			break
		}
		if !o.active(ctx) {
			break
		}
		delay := o.cfg.PassDelay
		if len(targets) == 0 {
			delay = max(delay, emptyPassDelay)
			logger.Warn("Pass %d had no targets, waiting %v", pass, delay)
		}
		if err := o.clock.Sleep(ctx, delay); err != nil {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Info("Scan %s cancelled", runID)
		return err
	}
	logger.Info("Scan %s finished", runID)
	return nil
}

// Stop asks the active run to end after its in-flight tasks. It reports whether a
// run was active.
func (o *Orchestrator) Stop() bool {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()
	if !o.running.Load() {
		return false
	}
	o.stopping.Store(true)
	return true
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Status returns a snapshot of the current or last run.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) active(ctx context.Context) bool {
	return !o.stopping.Load() && ctx.Err() == nil
}

func (o *Orchestrator) runPass(ctx context.Context, mode Mode, runID string, finder Finder, targets []string) {
	var g errgroup.Group
	for _, name := range targets {
		if !o.active(ctx) {
			break
		}
		g.Go(func() error {
			o.drain(ctx, mode, runID, finder, name)
			return nil
		})
		if err := o.clock.Sleep(ctx, o.cfg.LaunchDelay); err != nil {
			break
		}
	}
	_ = g.Wait()
}

func (o *Orchestrator) drain(ctx context.Context, mode Mode, runID string, finder Finder, name string) {
	o.metrics.TaskStarted()
	defer o.metrics.TaskDone()

	for item := range finder(ctx, name) {
		if !o.seen.Add(item.ID()) {
			continue
		}
		base := item.Base()
		alert := Alert{Mode: mode, RunID: runID, Item: item, URL: o.itemURL(base.Name)}
		if err := o.sink.Deliver(ctx, alert); err != nil {
			logger.Warn("Failed to deliver alert for listing %s: %v", item.ID(), err)
			continue
		}
		o.metrics.IncAlerts(string(mode))
		o.mu.Lock()
		o.status.Alerts++
		o.mu.Unlock()
	}
}
