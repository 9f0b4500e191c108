package scan

import (
	"context"
	"errors"
	"iter"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/skinscout/internal/clock"
	"github.com/rewired-gh/skinscout/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (s *recordingSink) Deliver(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a.Item.ID())
	}
	slices.Sort(out)
	return out
}

func patternItem(id, name string) models.PatternItem {
	return models.PatternItem{
		PricedItem:   models.PricedItem{ListingID: id, Name: name, Price: decimal.NewFromInt(10), Page: 1},
		AveragePrice: decimal.NewFromInt(10),
		PatternValue: 0.01,
		PatternSeed:  661,
	}
}

// staticFinder yields the listed item IDs for each name.
func staticFinder(byName map[string][]string) func(context.Context, string) iter.Seq[models.PatternItem] {
	return func(_ context.Context, name string) iter.Seq[models.PatternItem] {
		return func(yield func(models.PatternItem) bool) {
			for _, id := range byName[name] {
				if !yield(patternItem(id, name)) {
					return
				}
			}
		}
	}
}

func staticTargets(names ...string) TargetSource {
	return func() ([]string, error) { return slices.Clone(names), nil }
}

func newTestOrchestrator(finder Finder, targets TargetSource, sink Sink, cfg Config) (*Orchestrator, *clock.Fake) {
	clk := clock.NewFake(time.Time{})
	o := New(Options{
		Finders: map[Mode]Finder{ModePatterns: finder},
		Targets: targets,
		ItemURL: func(name string) string { return "https://market.test/listings/730/" + name },
		Sink:    sink,
		Clock:   clk,
		Rand:    rand.New(rand.NewPCG(1, 2)),
		Config:  cfg,
	})
	return o, clk
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"patterns", ModePatterns, false},
		{"decorations", ModeDecorations, false},
		{"stickers", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunDedupsAcrossPasses(t *testing.T) {
	finder := FinderOf(staticFinder(map[string][]string{
		"AK-47 | Case Hardened": {"1", "2"},
		"M9 Bayonet | Doppler":  {"3", "2"},
	}))
	sink := &recordingSink{}
	o, clk := newTestOrchestrator(finder, staticTargets("AK-47 | Case Hardened", "M9 Bayonet | Doppler"), sink,
		Config{LaunchDelay: 500 * time.Millisecond, PassDelay: 5 * time.Second, MaxPasses: 2})

	require.NoError(t, o.Run(context.Background(), ModePatterns))

	assert.Equal(t, []string{"1", "2", "3"}, sink.ids())
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond, 500 * time.Millisecond, 5 * time.Second,
		500 * time.Millisecond, 500 * time.Millisecond,
	}, clk.Sleeps())

	st := o.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 2, st.Passes)
	assert.Equal(t, 3, st.Alerts)
	assert.NotEmpty(t, st.RunID)
	assert.False(t, o.Running())
}

func TestRunAlertCarriesURLAndMode(t *testing.T) {
	finder := FinderOf(staticFinder(map[string][]string{"AWP | Asiimov": {"9"}}))
	sink := &recordingSink{}
	o, _ := newTestOrchestrator(finder, staticTargets("AWP | Asiimov"), sink, Config{MaxPasses: 1})

	require.NoError(t, o.Run(context.Background(), ModePatterns))

	require.Len(t, sink.alerts, 1)
	a := sink.alerts[0]
	assert.Equal(t, ModePatterns, a.Mode)
	assert.Equal(t, "https://market.test/listings/730/AWP | Asiimov", a.URL)
	assert.Equal(t, o.Status().RunID, a.RunID)
}

func TestRunUnknownMode(t *testing.T) {
	o, _ := newTestOrchestrator(FinderOf(staticFinder(nil)), staticTargets(), &recordingSink{}, Config{MaxPasses: 1})
	assert.ErrorIs(t, o.Run(context.Background(), ModeDecorations), ErrUnknownMode)
}

func TestRunTargetError(t *testing.T) {
	failing := func() ([]string, error) { return nil, errors.New("open items.txt: no such file or directory") }
	o, _ := newTestOrchestrator(FinderOf(staticFinder(nil)), failing, &recordingSink{}, Config{})
	assert.Error(t, o.Run(context.Background(), ModePatterns))
	assert.False(t, o.Running())
}

func TestRunRefusesConcurrentRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	blocking := func(ctx context.Context, name string) iter.Seq[models.Item] {
		return func(yield func(models.Item) bool) {
			once.Do(func() { close(started) })
			<-release
		}
	}
	o, _ := newTestOrchestrator(blocking, staticTargets("a"), &recordingSink{}, Config{})

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), ModePatterns) }()
	<-started

	assert.True(t, o.Running())
	assert.ErrorIs(t, o.Run(context.Background(), ModePatterns), ErrAlreadyRunning)

	assert.True(t, o.Stop())
	close(release)
	require.NoError(t, <-done)
	assert.False(t, o.Stop())
}

// stopOnSleep stops the orchestrator on the first launch sleep, after exactly one
// target was spawned.
type stopOnSleep struct {
	*clock.Fake
	once sync.Once
	stop func()
}

func (c *stopOnSleep) Sleep(ctx context.Context, d time.Duration) error {
	c.once.Do(c.stop)
	return c.Fake.Sleep(ctx, d)
}

func TestStopHaltsSpawning(t *testing.T) {
	var (
		mu      sync.Mutex
		visited []string
		o       *Orchestrator
	)
	finder := func(ctx context.Context, name string) iter.Seq[models.Item] {
		return func(yield func(models.Item) bool) {
			mu.Lock()
			visited = append(visited, name)
			mu.Unlock()
		}
	}
	clk := &stopOnSleep{Fake: clock.NewFake(time.Time{}), stop: func() { o.Stop() }}
	o = New(Options{
		Finders: map[Mode]Finder{ModePatterns: finder},
		Targets: staticTargets("a", "b", "c"),
		Sink:    &recordingSink{},
		Clock:   clk,
		Rand:    rand.New(rand.NewPCG(1, 2)),
		Config:  Config{LaunchDelay: time.Second, PassDelay: 5 * time.Second},
	})

	require.NoError(t, o.Run(context.Background(), ModePatterns))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, visited, 1)
	assert.Equal(t, 1, o.Status().Passes)
	assert.Equal(t, []time.Duration{time.Second}, clk.Sleeps())
}

func TestStopRacingStartIsNotLost(t *testing.T) {
	for range 50 {
		o, _ := newTestOrchestrator(FinderOf(staticFinder(nil)), staticTargets("a"), &recordingSink{}, Config{})

		go func() {
			for !o.Stop() {
				runtime.Gosched()
			}
		}()

		done := make(chan error, 1)
		go func() { done <- o.Run(context.Background(), ModePatterns) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("run kept going after Stop reported success")
		}
	}
}

func TestEmptyPassBacksOff(t *testing.T) {
	o, clk := newTestOrchestrator(FinderOf(staticFinder(nil)), staticTargets(), &recordingSink{}, Config{MaxPasses: 2})

	require.NoError(t, o.Run(context.Background(), ModePatterns))

	assert.Equal(t, []time.Duration{emptyPassDelay}, clk.Sleeps())
	assert.Equal(t, 2, o.Status().Passes)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o, _ := newTestOrchestrator(FinderOf(staticFinder(nil)), staticTargets("a"), &recordingSink{}, Config{})
	assert.ErrorIs(t, o.Run(ctx, ModePatterns), context.Canceled)
}

func TestDeliveryFailureIsNotCounted(t *testing.T) {
	finder := FinderOf(staticFinder(map[string][]string{"a": {"1"}}))
	sink := &recordingSink{err: errors.New("telegram: bad gateway")}
	o, _ := newTestOrchestrator(finder, staticTargets("a"), sink, Config{MaxPasses: 1})

	require.NoError(t, o.Run(context.Background(), ModePatterns))
	assert.Zero(t, o.Status().Alerts)
	assert.Equal(t, 1, o.seen.Len())
}

func TestSeenSet(t *testing.T) {
	s := NewSeenSet()
	assert.True(t, s.Add("1"))
	assert.False(t, s.Add("1"))
	assert.True(t, s.Add("2"))
	assert.Equal(t, 2, s.Len())
}

func TestFinderOfStopsEarly(t *testing.T) {
	finder := FinderOf(staticFinder(map[string][]string{"a": {"1", "2", "3"}}))
	var got []string
	for item := range finder(context.Background(), "a") {
		got = append(got, item.ID())
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestLogSink(t *testing.T) {
	item := models.NewDecorationItem(
		models.PricedItem{ListingID: "7", Name: "AK-47 | Redline", Price: decimal.NewFromInt(30), Page: 2},
		decimal.NewFromInt(25),
		[]models.Decoration{{Name: "Sticker | Crown (Foil)", Price: decimal.NewFromInt(800)}},
	)
	assert.NoError(t, LogSink{}.Deliver(context.Background(), Alert{Mode: ModeDecorations, Item: item}))
	assert.NoError(t, LogSink{}.Deliver(context.Background(), Alert{Mode: ModePatterns, Item: patternItem("1", "x")}))
}
