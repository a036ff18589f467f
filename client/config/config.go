package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
	"gopkg.in/yaml.v3"
)

// UIMode selects how results are shown.
type UIMode string

const (
	// UIANSI draws the matrix with raw escape sequences.
	UIANSI UIMode = "ansi"
	// UITable draws the matrix in a tview table.
	UITable UIMode = "table"
	// UILog only writes log lines. It does not need a terminal.
	UILog UIMode = "log"
)

const (
	DefaultPolicy    = spec.PolicyRoundRobin
	DefaultUI        = UIANSI
	DefaultLogLevel  = "info"
	DefaultUserAgent = "speedmatrix"
)

var (
	ErrNoEndpoints     = errors.New("no endpoints configured")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidLayout   = errors.New("invalid layout")
	ErrInvalidPolicy   = errors.New("invalid scheduling policy")
	ErrInvalidUI       = errors.New("invalid ui mode")
)

// Endpoint is a named download URL. Its identity is its position in
// ClientConfig.Endpoints.
type Endpoint struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DefaultEndpoints are public 1 GB test files, one per region.
var DefaultEndpoints = []Endpoint{
	{Name: "Frankfurt", URL: "https://fra-de-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Paris", URL: "https://par-fr-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "London", URL: "https://lon-gb-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "New York", URL: "https://nj-us-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Singapore", URL: "https://sgp-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Toronto", URL: "https://tor-ca-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Chicago", URL: "https://il-us-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Atlanta", URL: "https://ga-us-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Miami", URL: "https://fl-us-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Tokyo", URL: "https://hnd-jp-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Dallas", URL: "https://tx-us-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Seattle", URL: "https://wa-us-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Silicon Val", URL: "https://sjo-ca-us-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Los Angeles", URL: "https://lax-ca-us-ping.vultr.com/vultr.com.1000MB.bin"},
	{Name: "Sydney", URL: "https://syd-au-ping.vultr.com/vultr.com.1000MB.bin"},
}

type ClientConfig struct {
	// Warmup is the part of each cycle whose bytes are discarded.
	Warmup time.Duration `yaml:"warmup"`

	// Measure is the length of the measurement window.
	Measure time.Duration `yaml:"measure"`

	// Tick is the aggregation and render interval.
	Tick time.Duration `yaml:"tick"`

	// Cooldown is the pause after each cycle.
	Cooldown time.Duration `yaml:"cooldown"`

	ColumnWidth int `yaml:"column_width"`
	HeaderWidth int `yaml:"header_width"`
	BlockRows   int `yaml:"block_rows"`
	LabelEvery  int `yaml:"label_every"`

	// Saturation is the rate, in bytes/s, drawn as a full cell.
	Saturation float64 `yaml:"saturation"`

	Policy spec.Policy `yaml:"policy"`
	UI     UIMode      `yaml:"ui"`

	// Listen is the address of the status server. Empty disables it.
	Listen string `yaml:"listen"`

	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`
	UserAgent string `yaml:"user_agent"`

	Endpoints []Endpoint `yaml:"endpoints"`
}

func New(warmup, measure, tick, cooldown time.Duration, endpoints []Endpoint) *ClientConfig {
	return &ClientConfig{
		Warmup:      warmup,
		Measure:     measure,
		Tick:        tick,
		Cooldown:    cooldown,
		ColumnWidth: spec.DefaultColumnWidth,
		HeaderWidth: spec.DefaultHeaderWidth,
		BlockRows:   spec.DefaultBlockRows,
		LabelEvery:  spec.DefaultLabelEvery,
		Saturation:  spec.DefaultSaturation,
		Policy:      DefaultPolicy,
		UI:          DefaultUI,
		LogLevel:    DefaultLogLevel,
		UserAgent:   DefaultUserAgent,
		Endpoints:   endpoints,
	}
}

func NewDefault() *ClientConfig {
	endpoints := make([]Endpoint, len(DefaultEndpoints))
	copy(endpoints, DefaultEndpoints)
	return New(spec.DefaultWarmup, spec.DefaultMeasure, spec.DefaultTick,
		spec.DefaultCooldown, endpoints)
}

// Load returns the default configuration overlaid with the YAML file at
// path. An empty path returns the defaults. An endpoints list in the file
// replaces the default one.
func Load(path string) (*ClientConfig, error) {
	cfg := NewDefault()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Names returns the endpoint names in order.
func (c *ClientConfig) Names() []string {
	names := make([]string, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		names[i] = ep.Name
	}
	return names
}

// Validate checks that the configuration can run. Warmup and Cooldown may be
// zero; Measure and Tick must be positive.
func (c *ClientConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}
	for i, ep := range c.Endpoints {
		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: #%d (%s): %q", ErrInvalidEndpoint, i, ep.Name, ep.URL)
		}
		if ep.Name == "" {
			return fmt.Errorf("%w: #%d has no name", ErrInvalidEndpoint, i)
		}
	}
	switch {
	case c.Warmup < 0:
		return fmt.Errorf("%w: warmup %v", ErrInvalidDuration, c.Warmup)
	case c.Measure <= 0:
		return fmt.Errorf("%w: measure %v", ErrInvalidDuration, c.Measure)
	case c.Tick <= 0:
		return fmt.Errorf("%w: tick %v", ErrInvalidDuration, c.Tick)
	case c.Cooldown < 0:
		return fmt.Errorf("%w: cooldown %v", ErrInvalidDuration, c.Cooldown)
	}
	switch {
	case c.ColumnWidth < 1:
		return fmt.Errorf("%w: column_width %d", ErrInvalidLayout, c.ColumnWidth)
	case c.HeaderWidth < 0:
		return fmt.Errorf("%w: header_width %d", ErrInvalidLayout, c.HeaderWidth)
	case c.BlockRows < 1:
		return fmt.Errorf("%w: block_rows %d", ErrInvalidLayout, c.BlockRows)
	case c.LabelEvery < 0:
		return fmt.Errorf("%w: label_every %d", ErrInvalidLayout, c.LabelEvery)
	case c.Saturation <= 0:
		return fmt.Errorf("%w: saturation %v", ErrInvalidLayout, c.Saturation)
	}
	switch c.Policy {
	case spec.PolicyRoundRobin, spec.PolicyParallel:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, c.Policy)
	}
	switch c.UI {
	case UIANSI, UITable, UILog:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidUI, c.UI)
	}
	return nil
}
