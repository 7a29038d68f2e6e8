package hostbus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ppiankov/agentlens/internal/model"
)

const maxLineBytes = 4 << 20

// Reader decodes newline-delimited source events and publishes them.
// Events carrying neither a session key nor a run id are stamped with a
// run id fixed for the Reader's lifetime, so one input stream correlates
// as one run.
type Reader struct {
	in     io.Reader
	bus    *Bus
	runID  string
	logger *slog.Logger
	count  atomic.Int64
}

// NewReader creates a Reader that publishes onto bus.
func NewReader(in io.Reader, bus *Bus, logger *slog.Logger) *Reader {
	return &Reader{
		in:     in,
		bus:    bus,
		runID:  uuid.NewString(),
		logger: logger,
	}
}

// RunID returns the run id stamped onto anonymous events.
func (r *Reader) RunID() string {
	return r.runID
}

// Published returns how many events have been published so far. It may be
// read while Pump is running.
func (r *Reader) Published() int {
	return int(r.count.Load())
}

// Pump reads until EOF or ctx is cancelled and returns the number of events
// published. Lines that do not decode are logged and skipped.
// Cancellation is observed between lines.
func (r *Reader) Pump(ctx context.Context) (int, error) {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	n := 0
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return n, nil
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var ev model.SourceEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			r.logger.Debug("skipping undecodable event", "line", line, "error", err)
			continue
		}
		if ev.SessionID() == "" {
			ev.RunID = r.runID
		}
		r.bus.Publish(ev)
		r.count.Add(1)
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read events: %w", err)
	}
	return n, nil
}
