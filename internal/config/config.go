package config

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/agentconsole/agentconsole/internal/invocation"
)

// DefaultTimeoutMS bounds one whole turn, stream included.
const DefaultTimeoutMS = 600000

// DefaultLogLevel is used when no layer sets log_level.
const DefaultLogLevel = "info"

// ErrConfigInvalid is returned when the merged configuration is unusable.
var ErrConfigInvalid = errors.New("config invalid")

// Config is the merged console configuration.
type Config struct {
	// Endpoint is the agent invocation URL.
	Endpoint string
	// TimeoutMS is the request timeout in milliseconds; 0 disables it.
	TimeoutMS int
	// Headers are sent with every invocation.
	Headers map[string]string
	// Fields are extra body fields sent with every invocation.
	Fields map[string]any
	// LogLevel is a logging level name.
	LogLevel string
	// LogFile, when set, receives logs instead of stderr.
	LogFile string
	// Capture records each turn's raw stream.
	Capture bool
	// Sources lists the layers that contributed, in merge order.
	Sources []string
}

// Defaults returns the configuration used when no settings exist.
func Defaults() *Config {
	return &Config{
		Endpoint:  invocation.DefaultEndpoint,
		TimeoutMS: DefaultTimeoutMS,
		Headers:   map[string]string{},
		Fields:    map[string]any{},
		LogLevel:  DefaultLogLevel,
	}
}

// Timeout returns TimeoutMS as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// SetField adds a typed custom field, replacing any earlier value.
func (c *Config) SetField(field CustomField) {
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}
	c.Fields[field.Key] = field.Parse()
}

// SetHeader parses "Key=Value" or "Key: Value" and adds the header.
func (c *Config) SetHeader(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	if !ok {
		key, value, ok = strings.Cut(raw, ":")
	}
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("invalid header %q (want Key=Value)", raw)
	}
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
	c.Headers[key] = strings.TrimSpace(value)
	return nil
}

// Validate normalizes the endpoint and checks required fields.
func (c *Config) Validate() error {
	endpoint, err := invocation.NormalizeEndpoint(c.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	c.Endpoint = endpoint
	if c.TimeoutMS < 0 {
		return fmt.Errorf("%w: timeout_ms must not be negative", ErrConfigInvalid)
	}
	return nil
}

// apply overlays one settings layer.
func (c *Config) apply(layer *fileConfig) {
	if layer.Endpoint != nil {
		c.Endpoint = *layer.Endpoint
	}
	if layer.TimeoutMS != nil {
		c.TimeoutMS = *layer.TimeoutMS
	}
	if layer.LogLevel != nil {
		c.LogLevel = *layer.LogLevel
	}
	if layer.LogFile != nil {
		c.LogFile = *layer.LogFile
	}
	if layer.Capture != nil {
		c.Capture = *layer.Capture
	}
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
	maps.Copy(c.Headers, layer.Headers)
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}
	maps.Copy(c.Fields, layer.Fields)
	for _, field := range layer.CustomFields {
		c.SetField(field)
	}
}
