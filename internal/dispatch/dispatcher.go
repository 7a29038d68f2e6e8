// Package dispatch delivers destination events to the visualization server
// and the optional events log. Delivery is best-effort: failures are logged
// at debug level and never reach the caller.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ppiankov/agentlens/internal/metrics"
	"github.com/ppiankov/agentlens/internal/model"
)

// Config selects where events go. With Enabled false nothing happens.
type Config struct {
	Enabled        bool
	ServerURL      string
	EventsFilePath string
	Timeout        time.Duration
}

// Result is the outcome of one delivery. Dispatch discards it; Deliver
// returns it so callers and tests can inspect what happened.
type Result struct {
	EventID    string
	Skipped    bool // nothing attempted: disabled, or no event to send
	HTTPStatus int
	HTTPErr    error
	FileErr    error
}

// Err joins the per-sink errors, nil when every attempted sink succeeded.
func (r Result) Err() error {
	return errors.Join(r.HTTPErr, r.FileErr)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the timeout-bound default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c; d.customClient = true }
}

// WithObserver receives every Result produced by Dispatch.
func WithObserver(fn func(Result)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// Dispatcher serializes events and delivers them without blocking callers.
// Safe for concurrent use.
type Dispatcher struct {
	mu           sync.RWMutex
	cfg          Config
	client       *http.Client
	customClient bool
	sink         *Sink
	closed       bool
	observe      func(Result)
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// New creates a Dispatcher. The events log is opened on first use.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d := &Dispatcher{cfg: cfg, logger: logger}
	for _, o := range opts {
		o(d)
	}
	if d.client == nil {
		d.client = NewHTTPClient(cfg.Timeout)
	}
	return d
}

// Enabled reports the master switch.
func (d *Dispatcher) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg.Enabled
}

// Config returns the active configuration.
func (d *Dispatcher) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Update swaps the configuration. A changed events path closes the old file;
// the new one opens on the next event. Deliveries in flight finish against
// the configuration they started with.
func (d *Dispatcher) Update(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sink != nil && d.sink.Path() != cfg.EventsFilePath {
		d.sink.Close()
		d.sink = nil
	}
	if cfg.Timeout != d.cfg.Timeout && !d.customClient {
		d.client = NewHTTPClient(cfg.Timeout)
	}
	d.cfg = cfg
}

// Dispatch delivers ev in the background and returns immediately.
// It never reports failure; the Result goes to the observer, if any.
func (d *Dispatcher) Dispatch(ev model.DestinationEvent) {
	if !d.Enabled() {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Debug("delivery panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.Config().Timeout)
		defer cancel()

		res := d.Deliver(ctx, ev)
		if d.observe != nil {
			d.observe(res)
		}
	}()
}

// Deliver performs one synchronous delivery bounded by ctx and the client
// timeout: the events log append and the HTTP POST are attempted
// independently of each other.
func (d *Dispatcher) Deliver(ctx context.Context, ev model.DestinationEvent) Result {
	d.mu.RLock()
	cfg, client := d.cfg, d.client
	d.mu.RUnlock()

	res := Result{EventID: ev.EventHeader().ID}
	if !cfg.Enabled {
		res.Skipped = true
		return res
	}

	line, err := json.Marshal(ev)
	if err != nil {
		res.HTTPErr = fmt.Errorf("marshal event: %w", err)
		d.logger.Debug("event not serializable", "id", res.EventID, "error", err)
		return res
	}

	if cfg.EventsFilePath != "" {
		res.FileErr = d.appendLine(cfg.EventsFilePath, line)
	}
	if cfg.ServerURL != "" {
		start := time.Now()
		res.HTTPStatus, res.HTTPErr = post(ctx, client, cfg.ServerURL, line)
		metrics.DeliveryDuration.WithLabelValues(metrics.SinkHTTP).Observe(time.Since(start).Seconds())
		record(metrics.SinkHTTP, res.HTTPErr)
		if res.HTTPErr != nil {
			d.logger.Debug("event delivery failed",
				"id", res.EventID, "url", cfg.ServerURL, "status", res.HTTPStatus, "error", res.HTTPErr)
		}
	}
	return res
}

func (d *Dispatcher) appendLine(path string, line []byte) error {
	start := time.Now()
	sink, err := d.sinkFor(path)
	if err == nil {
		err = sink.Append(line)
	}
	metrics.DeliveryDuration.WithLabelValues(metrics.SinkFile).Observe(time.Since(start).Seconds())
	record(metrics.SinkFile, err)
	if err != nil {
		d.logger.Debug("events log write failed", "path", path, "error", err)
	}
	return err
}

// sinkFor returns the open sink for path, opening it if needed. A failed
// open is retried on the next event.
func (d *Dispatcher) sinkFor(path string) (*Sink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("events log: dispatcher closed")
	}
	if d.sink != nil && d.sink.Path() == path {
		return d.sink, nil
	}
	if path != d.cfg.EventsFilePath {
		return nil, fmt.Errorf("events log: path %q replaced by reconfiguration", path)
	}
	if d.sink != nil {
		d.sink.Close()
		d.sink = nil
	}
	s, err := OpenSink(path)
	if err != nil {
		return nil, err
	}
	d.sink = s
	return s, nil
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the events log and keeps it closed. Deliveries still running
// may fail their file append; that failure is swallowed like any other.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.sink == nil {
		return nil
	}
	err := d.sink.Close()
	d.sink = nil
	return err
}

func record(sink string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	metrics.Deliveries.WithLabelValues(sink, outcome).Inc()
}
