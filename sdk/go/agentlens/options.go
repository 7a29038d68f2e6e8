package agentlens

import (
	"log/slog"

	"github.com/ppiankov/agentlens/internal/config"
)

// Option overrides one setting from the config file and environment.
type Option func(*sdkConfig)

type sdkConfig struct {
	configFile string
	overrides  config.Overrides
	logger     *slog.Logger
}

// WithEnabled sets the master switch. Forwarding is off by default.
func WithEnabled(enabled bool) Option {
	return func(c *sdkConfig) { c.overrides.Enabled = config.Bool(enabled) }
}

// WithServerURL sets the endpoint events are POSTed to.
func WithServerURL(url string) Option {
	return func(c *sdkConfig) { c.overrides.ServerURL = config.String(url) }
}

// WithEventsFile also appends every event as one JSON line to path.
func WithEventsFile(path string) Option {
	return func(c *sdkConfig) { c.overrides.EventsFilePath = config.String(path) }
}

// WithDebug enables debug logging of delivery failures.
func WithDebug(debug bool) Option {
	return func(c *sdkConfig) { c.overrides.Debug = config.Bool(debug) }
}

// WithCwd pins the working directory reported on events.
func WithCwd(dir string) Option {
	return func(c *sdkConfig) { c.overrides.Cwd = config.String(dir) }
}

// WithConfigFile reads settings from path instead of ~/.agentlens/config.yaml.
func WithConfigFile(path string) Option {
	return func(c *sdkConfig) { c.configFile = path }
}

// WithLogger sets the logger. The debug setting controls its level only when
// the logger is created by agentlens.
func WithLogger(logger *slog.Logger) Option {
	return func(c *sdkConfig) { c.logger = logger }
}

func buildConfig(opts []Option) sdkConfig {
	var c sdkConfig
	for _, o := range opts {
		o(&c)
	}
	return c
}
