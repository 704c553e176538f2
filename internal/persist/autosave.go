package persist

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/mapdraw/internal/logging"
)

const (
	TriggerExplicit  = "explicit"
	TriggerDebounced = "debounced"
)

// DefaultDebounce is the settle time after the last layer mutation before
// an automatic save.
const DefaultDebounce = 2 * time.Second

// SnapshotFunc captures the current workspace state.
type SnapshotFunc func() *Snapshot

// AutoSaver writes a snapshot once mutations have settled: every Trigger
// restarts the delay, and a save happens only when no further Trigger
// arrives within it.
type AutoSaver struct {
	store    Store
	snapshot SnapshotFunc
	delay    time.Duration
	log      logging.Logger
	metrics  MetricsRecorder

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	// saveMu serialises writes so a debounced save never interleaves with
	// an explicit one.
	saveMu sync.Mutex
}

// AutoSaverOption configures an AutoSaver.
type AutoSaverOption func(*AutoSaver)

func WithLogger(l logging.Logger) AutoSaverOption {
	return func(a *AutoSaver) { a.log = logging.OrNoop(l) }
}

func WithMetrics(m MetricsRecorder) AutoSaverOption {
	return func(a *AutoSaver) {
		if m != nil {
			a.metrics = m
		}
	}
}

// NewAutoSaver builds a saver; a non-positive delay uses DefaultDebounce.
func NewAutoSaver(store Store, snapshot SnapshotFunc, delay time.Duration, opts ...AutoSaverOption) *AutoSaver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	a := &AutoSaver{
		store:    store,
		snapshot: snapshot,
		delay:    delay,
		log:      logging.Noop(),
		metrics:  noopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Trigger schedules a debounced save.
func (a *AutoSaver) Trigger() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
	a.metrics.SetPending(true)
}

func (a *AutoSaver) fire() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.mu.Unlock()

	if err := a.save(context.Background(), TriggerDebounced); err != nil {
		a.log.Warn(context.Background(), "debounced snapshot save failed", logging.Err(err))
	}
}

// SaveNow cancels any pending debounced save and writes immediately.
func (a *AutoSaver) SaveNow(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	return a.save(ctx, TriggerExplicit)
}

// Pending reports whether a debounced save is scheduled.
func (a *AutoSaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}

// Stop cancels any pending save and disables further triggers. If flush
// is true and a save was pending, it is written before returning.
func (a *AutoSaver) Stop(ctx context.Context, flush bool) error {
	a.mu.Lock()
	pending := a.timer != nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.stopped = true
	a.mu.Unlock()

	a.metrics.SetPending(false)
	if flush && pending {
		return a.save(ctx, TriggerDebounced)
	}
	return nil
}

func (a *AutoSaver) save(ctx context.Context, trigger string) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	start := time.Now()
	s := a.snapshot()
	err := a.store.Save(ctx, s)
	a.metrics.ObserveSave(trigger, time.Since(start), err)
	a.metrics.SetPending(a.Pending())
	if err != nil {
		return err
	}
	a.log.Debug(ctx, "snapshot saved",
		logging.String("trigger", trigger),
		logging.Int("layers", len(s.Layers)),
	)
	return nil
}

// Load reads the stored snapshot and records the attempt. It returns
// ErrNoSnapshot when nothing has been saved.
func (a *AutoSaver) Load(ctx context.Context) (*Snapshot, error) {
	s, err := a.store.Load(ctx)
	a.metrics.ObserveLoad(err)
	return s, err
}
