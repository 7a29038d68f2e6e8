// Package bridge wires a host event stream through the transformer to the
// dispatcher and owns the lifecycle of that wiring.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/agentlens/internal/config"
	"github.com/ppiankov/agentlens/internal/dispatch"
	"github.com/ppiankov/agentlens/internal/hostbus"
	"github.com/ppiankov/agentlens/internal/logging"
	"github.com/ppiankov/agentlens/internal/metrics"
	"github.com/ppiankov/agentlens/internal/model"
	"github.com/ppiankov/agentlens/internal/transform"
)

// Drop reasons, also used as metric labels.
const (
	DropNotApplicable = "not_applicable"
	DropMalformed     = "malformed"
)

// Option configures a Bridge.
type Option func(*settings)

type settings struct {
	logger       *slog.Logger
	level        *slog.LevelVar
	now          func() time.Time
	dispatchOpts []dispatch.Option
}

// WithLogger sets the logger. level, when non-nil, is switched by the
// debug option on Enable and Reconfigure.
func WithLogger(logger *slog.Logger, level *slog.LevelVar) Option {
	return func(s *settings) { s.logger = logger; s.level = level }
}

// WithClock replaces time.Now for the transformer.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithDispatchOptions passes options through to the dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(s *settings) { s.dispatchOpts = append(s.dispatchOpts, opts...) }
}

// Stats is a point-in-time view of a Bridge.
type Stats struct {
	Enabled     bool   `json:"enabled"`
	ServerURL   string `json:"server_url"`
	EventsFile  string `json:"events_file,omitempty"`
	Pending     int    `json:"pending_tool_calls"`
	Received    uint64 `json:"received"`
	Transformed uint64 `json:"transformed"`
	Dropped     uint64 `json:"dropped"`
	Malformed   uint64 `json:"malformed"`
}

// Bridge is one enabled integration. Each Bridge owns its correlation
// table, so independent bridges never share state.
type Bridge struct {
	mu     sync.Mutex
	opts   config.Options
	tr     *transform.Transformer
	disp   *dispatch.Dispatcher
	logger *slog.Logger
	level  *slog.LevelVar
	closed bool
	stats  Stats

	unsubscribe  func()
	teardownOnce sync.Once
	closeOnce    sync.Once
}

// Enable validates opts, builds the pipeline and subscribes to host.
// host may be nil for bridges driven only through Handle and Emit.
// A disabled bridge stays subscribed so a reload can switch it on; while
// disabled every event is ignored before transformation.
func Enable(host hostbus.Source, opts config.Options, options ...Option) *Bridge {
	s := settings{}
	for _, o := range options {
		o(&s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}

	opts = opts.Normalize()
	if s.level != nil {
		logging.SetDebug(s.level, opts.Debug)
	}
	for _, msg := range opts.Validate() {
		s.logger.Warn("config", "warning", msg)
	}

	b := &Bridge{
		opts: opts,
		tr: transform.New(transform.Config{
			Cwd:        cwdFunc(opts.Cwd),
			Now:        s.now,
			PendingTTL: opts.Correlation.TTL,
			MaxPending: opts.Correlation.MaxEntries,
		}),
		disp:   dispatch.New(dispatchConfig(opts), s.logger, s.dispatchOpts...),
		logger: s.logger,
		level:  s.level,
	}

	if host != nil {
		b.unsubscribe = host.Subscribe(b.onEvent)
	}
	s.logger.Debug("integration enabled", "enabled", opts.Enabled, "server_url", opts.ServerURL,
		"events_file", opts.EventsFilePath)
	return b
}

func (b *Bridge) onEvent(ev model.SourceEvent) {
	if _, err := b.Handle(ev); err != nil {
		b.logger.Debug("dropping source event", "stream", ev.Stream, "seq", ev.Seq, "error", err)
	}
}

// Handle transforms ev and dispatches the result in the background.
// It returns the destination event (nil when there is none) and any
// malformed-event error from the transformer. Delivery never fails here.
func (b *Bridge) Handle(ev model.SourceEvent) (model.DestinationEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Dispatch stays under mu so no delivery starts once detach has run
	// and Shutdown is waiting on the dispatcher.
	out, err := b.transformLocked(ev)
	if out != nil {
		b.disp.Dispatch(out)
	}
	return out, err
}

// Emit transforms ev and delivers the result before returning, bounded by
// ctx and the delivery timeout. The delivery result is returned for
// inspection; callers following the silent contract ignore it.
func (b *Bridge) Emit(ctx context.Context, ev model.SourceEvent) (dispatch.Result, error) {
	b.mu.Lock()
	out, err := b.transformLocked(ev)
	b.mu.Unlock()
	if err != nil || out == nil {
		return dispatch.Result{Skipped: true}, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.disp.Config().Timeout)
	defer cancel()
	return b.disp.Deliver(ctx, out), nil
}

// transformLocked runs the transformer and counts the outcome. b.mu must be held.
func (b *Bridge) transformLocked(ev model.SourceEvent) (model.DestinationEvent, error) {
	if b.closed || !b.opts.Enabled {
		return nil, nil
	}
	b.stats.Received++
	metrics.EventsReceived.WithLabelValues(string(ev.Stream)).Inc()

	out, err := b.tr.Transform(ev)
	metrics.PendingToolCalls.Set(float64(b.tr.Pending()))
	if err != nil {
		b.stats.Dropped++
		b.stats.Malformed++
		metrics.EventsDropped.WithLabelValues(DropMalformed).Inc()
		return nil, fmt.Errorf("transform: %w", err)
	}
	if out == nil {
		b.stats.Dropped++
		metrics.EventsDropped.WithLabelValues(DropNotApplicable).Inc()
		return nil, nil
	}
	b.stats.Transformed++
	metrics.EventsTransformed.WithLabelValues(string(out.EventHeader().Type)).Inc()
	return out, nil
}

// Reconfigure applies new options. The correlation table survives so tool
// calls spanning a reload still get a duration.
func (b *Bridge) Reconfigure(opts config.Options) {
	opts = opts.Normalize()

	b.mu.Lock()
	b.opts = opts
	b.tr.SetCwd(cwdFunc(opts.Cwd))
	b.mu.Unlock()

	b.disp.Update(dispatchConfig(opts))
	if b.level != nil {
		logging.SetDebug(b.level, opts.Debug)
	}
}

// Options returns the active options.
func (b *Bridge) Options() config.Options {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts
}

// Stats returns counters and the correlation table size.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Enabled = b.opts.Enabled
	s.ServerURL = b.opts.ServerURL
	s.EventsFile = b.opts.EventsFilePath
	s.Pending = b.tr.Pending()
	return s
}

// Teardown unsubscribes from the host stream and clears the correlation
// table. It does not wait for deliveries in flight; those end within the
// delivery timeout and the events log closes after them. Safe to call
// more than once.
func (b *Bridge) Teardown() {
	b.detach()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.disp.Config().Timeout+time.Second)
		defer cancel()
		b.drainAndClose(ctx)
	}()
}

// Shutdown tears down like Teardown, then waits for in-flight deliveries
// until ctx is done and closes the events log.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.detach()
	return b.drainAndClose(ctx)
}

func (b *Bridge) detach() {
	b.teardownOnce.Do(func() {
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		b.mu.Lock()
		b.closed = true
		b.tr.Reset()
		b.mu.Unlock()
		metrics.PendingToolCalls.Set(0)
		b.logger.Debug("integration torn down")
	})
}

func (b *Bridge) drainAndClose(ctx context.Context) error {
	err := b.disp.Wait(ctx)
	b.closeOnce.Do(func() {
		if cerr := b.disp.Close(); cerr != nil {
			b.logger.Debug("closing events log", "error", cerr)
		}
	})
	return err
}

func dispatchConfig(opts config.Options) dispatch.Config {
	return dispatch.Config{
		Enabled:        opts.Enabled,
		ServerURL:      opts.ServerURL,
		EventsFilePath: opts.EventsFilePath,
		Timeout:        opts.Timeout,
	}
}

func cwdFunc(override string) transform.CwdFunc {
	if override != "" {
		return transform.StaticCwd(override)
	}
	return transform.ProcessCwd
}
