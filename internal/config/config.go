// Package config loads agentlens options from YAML, the environment and
// command-line overrides, and watches the config file for changes.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL  = "http://localhost:4003/event"
	DefaultTimeout    = 2 * time.Second
	DefaultPendingTTL = 10 * time.Minute
	DefaultMaxPending = 4096
)

// Correlation bounds the tool pre/post correlation table.
type Correlation struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// Options is the recognized configuration surface. Enabled defaults to off;
// when off every operation is a no-op.
type Options struct {
	Enabled        bool          `yaml:"enabled"`
	ServerURL      string        `yaml:"server_url"`
	Endpoint       string        `yaml:"endpoint,omitempty"` // alias for server_url
	EventsFilePath string        `yaml:"events_file"`
	Debug          bool          `yaml:"debug"`
	Cwd            string        `yaml:"cwd,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	Correlation    Correlation   `yaml:"correlation"`
}

// Defaults returns the built-in options.
func Defaults() Options {
	return Options{
		ServerURL: DefaultServerURL,
		Timeout:   DefaultTimeout,
		Correlation: Correlation{
			TTL:        DefaultPendingTTL,
			MaxEntries: DefaultMaxPending,
		},
	}
}

// DefaultPath returns ~/.agentlens/config.yaml, or "" without a home dir.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentlens", "config.yaml")
}

// Load reads options from a YAML file on top of the defaults.
// Empty path falls back to DefaultPath. Missing file returns defaults.
// Invalid YAML returns an error.
func Load(path string) (Options, error) {
	if path == "" {
		path = DefaultPath()
	}
	opts := Defaults()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return Options{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return opts.Normalize(), nil
}

// Write saves opts as YAML, creating the parent directory.
func Write(path string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Normalize folds the endpoint alias into ServerURL and fills zero
// durations and limits with defaults.
func (o Options) Normalize() Options {
	if o.Endpoint != "" {
		o.ServerURL = o.Endpoint
		o.Endpoint = ""
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Correlation.TTL <= 0 {
		o.Correlation.TTL = DefaultPendingTTL
	}
	if o.Correlation.MaxEntries <= 0 {
		o.Correlation.MaxEntries = DefaultMaxPending
	}
	return o
}

// Validate reports problems worth a warning. None of them are fatal:
// a bad URL fails at delivery time like any unreachable server.
func (o Options) Validate() []string {
	var warnings []string
	if o.ServerURL != "" {
		u, err := url.Parse(o.ServerURL)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("server_url %q does not parse: %v", o.ServerURL, err))
		case u.Scheme != "http" && u.Scheme != "https":
			warnings = append(warnings, fmt.Sprintf("server_url %q is not an http(s) URL", o.ServerURL))
		case u.Host == "":
			warnings = append(warnings, fmt.Sprintf("server_url %q has no host", o.ServerURL))
		}
	}
	if o.Enabled && o.ServerURL == "" && o.EventsFilePath == "" {
		warnings = append(warnings, "enabled with neither server_url nor events_file: events go nowhere")
	}
	return warnings
}
