package agentlens

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ppiankov/agentlens/internal/bridge"
	"github.com/ppiankov/agentlens/internal/config"
	"github.com/ppiankov/agentlens/internal/logging"
)

// Register subscribes to host and forwards its events until teardown is
// called. teardown returns immediately and may be called more than once.
func Register(host Host, opts ...Option) (teardown func(), err error) {
	if host == nil {
		return nil, fmt.Errorf("agentlens: nil host")
	}
	b, err := open(host, buildConfig(opts))
	if err != nil {
		return nil, err
	}
	return b.Teardown, nil
}

// Emit forwards one event and waits for its delivery, at most the delivery
// timeout. Calls share one bridge so tool pre and post events emitted
// separately are still correlated. The returned error is non-nil only for
// configuration problems and malformed events.
func Emit(ctx context.Context, ev SourceEvent, opts ...Option) error {
	b, err := shared.get(buildConfig(opts))
	if err != nil {
		return err
	}
	_, err = b.Emit(ctx, ev)
	return err
}

// Close tears down the bridge used by Emit and waits for its deliveries
// until ctx is done. A later Emit starts a fresh one.
func Close(ctx context.Context) error {
	shared.mu.Lock()
	b := shared.b
	shared.b = nil
	shared.key = ""
	shared.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Shutdown(ctx)
}

var shared sharedBridge

type sharedBridge struct {
	mu  sync.Mutex
	b   *bridge.Bridge
	key string // resolution key of the options b runs with
}

// get returns the shared bridge. Options are resolved again only when the
// call's options or the config file's modification time differ from the
// last call.
func (s *sharedBridge) get(c sdkConfig) (*bridge.Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.resolveKey()
	if s.b != nil && key == s.key {
		return s.b, nil
	}

	opts, err := resolve(c)
	if err != nil {
		return nil, err
	}
	if s.b == nil {
		s.b = enable(nil, c, opts)
	} else {
		s.b.Reconfigure(opts)
	}
	s.key = key
	return s.b, nil
}

// resolveKey identifies everything resolution depends on apart from the
// environment, which is read once per key.
func (c sdkConfig) resolveKey() string {
	path := c.configFile
	if path == "" {
		path = config.DefaultPath()
	}
	var mod int64
	if info, err := os.Stat(path); err == nil {
		mod = info.ModTime().UnixNano()
	}
	ov := c.overrides
	return fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s", path, mod,
		boolKey(ov.Enabled), strKey(ov.ServerURL), strKey(ov.EventsFilePath), boolKey(ov.Debug), strKey(ov.Cwd))
}

func strKey(p *string) string {
	if p == nil {
		return "-"
	}
	return "=" + *p
}

func boolKey(p *bool) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

func resolve(c sdkConfig) (config.Options, error) {
	opts, err := config.Resolve(c.configFile, c.overrides)
	if err != nil {
		return config.Options{}, fmt.Errorf("agentlens: %w", err)
	}
	return opts, nil
}

func open(host Host, c sdkConfig) (*bridge.Bridge, error) {
	opts, err := resolve(c)
	if err != nil {
		return nil, err
	}
	return enable(host, c, opts), nil
}

func enable(host Host, c sdkConfig, opts config.Options) *bridge.Bridge {
	var bopts []bridge.Option
	if c.logger != nil {
		bopts = append(bopts, bridge.WithLogger(c.logger, nil))
	} else {
		logger, level := logging.New(os.Stderr, opts.Debug)
		bopts = append(bopts, bridge.WithLogger(logger, level))
	}
	return bridge.Enable(host, opts, bopts...)
}
