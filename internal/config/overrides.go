package config

import (
	"os"
	"strconv"
	"strings"
)

// Overrides carries explicitly set values. Nil fields leave the
// underlying option untouched.
type Overrides struct {
	Enabled        *bool
	ServerURL      *string
	EventsFilePath *string
	Debug          *bool
	Cwd            *string
}

// Apply returns opts with every set override written over it.
func (ov Overrides) Apply(opts Options) Options {
	if ov.Enabled != nil {
		opts.Enabled = *ov.Enabled
	}
	if ov.ServerURL != nil {
		opts.ServerURL = *ov.ServerURL
		opts.Endpoint = ""
	}
	if ov.EventsFilePath != nil {
		opts.EventsFilePath = *ov.EventsFilePath
	}
	if ov.Debug != nil {
		opts.Debug = *ov.Debug
	}
	if ov.Cwd != nil {
		opts.Cwd = *ov.Cwd
	}
	return opts
}

// Environment variable names.
const (
	EnvEnabled    = "AGENTLENS_ENABLED"
	EnvServerURL  = "AGENTLENS_SERVER_URL"
	EnvEventsFile = "AGENTLENS_EVENTS_FILE"
	EnvDebug      = "AGENTLENS_DEBUG"
	EnvCwd        = "AGENTLENS_CWD"
)

// FromEnv reads overrides from AGENTLENS_* variables. Unset or empty
// variables and unparsable booleans are ignored.
func FromEnv() Overrides {
	return Overrides{
		Enabled:        envBool(EnvEnabled),
		ServerURL:      envStr(EnvServerURL),
		EventsFilePath: envStr(EnvEventsFile),
		Debug:          envBool(EnvDebug),
		Cwd:            envStr(EnvCwd),
	}
}

// Resolve loads path, then applies environment and explicit overrides in
// that order of increasing precedence.
func Resolve(path string, explicit Overrides) (Options, error) {
	opts, err := Load(path)
	if err != nil {
		return Options{}, err
	}
	opts = FromEnv().Apply(opts)
	return explicit.Apply(opts).Normalize(), nil
}

func envStr(key string) *string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	return &val
}

func envBool(key string) *bool {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return nil
	}
	return &b
}

// Bool returns a pointer to b, for building Overrides.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s, for building Overrides.
func String(s string) *string { return &s }
