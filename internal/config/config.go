package config

import (
	"fmt"
	"image"
	"os"
	"sort"
	"time"

	"github.com/dyluth/mosaic/internal/artwork"
	"github.com/dyluth/mosaic/internal/canvas"
	"github.com/dyluth/mosaic/internal/coordinator"
	"github.com/dyluth/mosaic/internal/ledger"
	"github.com/dyluth/mosaic/internal/palette"
	"github.com/dyluth/mosaic/internal/remote"
	"github.com/dyluth/mosaic/internal/worker"
	"gopkg.in/yaml.v3"
)

// DefaultInstance names the ledger namespace when none is configured.
const DefaultInstance = "mosaic"

// MosaicConfig represents the top-level mosaic.yml configuration
type MosaicConfig struct {
	Version    string                  `yaml:"version"`
	Template   TemplateConfig          `yaml:"template"`
	CanvasPath string                  `yaml:"canvas_path,omitempty"` // Offsets file, re-read on every template refresh
	Workers    map[string]WorkerConfig `yaml:"workers"`

	ThreadDelay         *time.Duration `yaml:"thread_delay,omitempty"`          // Gap between worker launches (default 3s)
	UnverifiedRateLimit time.Duration  `yaml:"unverified_rate_limit,omitempty"` // Wait before a worker's first placement

	Scheduler   *SchedulerConfig   `yaml:"scheduler,omitempty"`
	Coordinator *CoordinatorConfig `yaml:"coordinator,omitempty"`
	Remote      *RemoteConfig      `yaml:"remote,omitempty"`

	Proxies  []string        `yaml:"proxies,omitempty"`
	RedisURL string          `yaml:"redis_url,omitempty"`
	Instance string          `yaml:"instance,omitempty"`
	Palette  []palette.Entry `yaml:"palette,omitempty"` // Overrides the built-in palette
}

// TemplateConfig locates the artwork and its anchor on the canvas
type TemplateConfig struct {
	Path string `yaml:"path,omitempty"`
	URL  string `yaml:"url,omitempty"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
}

// WorkerConfig holds one identity's credentials
type WorkerConfig struct {
	Password string `yaml:"password"`
}

// SchedulerConfig tunes per-worker pacing
type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	ErrorBackoff time.Duration `yaml:"error_backoff,omitempty"`
	BanThreshold time.Duration `yaml:"ban_threshold,omitempty"`
	RetryDelay   time.Duration `yaml:"retry_delay,omitempty"` // Login and board-fetch retry delay
}

// CoordinatorConfig tunes the refresh cadence
type CoordinatorConfig struct {
	BoardInterval time.Duration `yaml:"board_interval,omitempty"`
	TemplateEvery int           `yaml:"template_every,omitempty"`
	HealthPort    int           `yaml:"health_port,omitempty"` // 0 disables /healthz
}

// RemoteConfig describes the canvas service
type RemoteConfig struct {
	RegionSize       int `yaml:"region_size,omitempty"`
	RegionColumns    int `yaml:"region_columns,omitempty"`
	remote.Endpoints `yaml:",inline"`
}

// Validate performs strict validation on the configuration and fills defaults
func (c *MosaicConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := c.TemplateSource().Validate(); err != nil {
		return fmt.Errorf("template: %w", err)
	}

	// Required: at least one worker
	if len(c.Workers) == 0 {
		return fmt.Errorf("no workers defined")
	}
	for name, w := range c.Workers {
		if name == "" {
			return fmt.Errorf("worker name cannot be empty")
		}
		if w.Password == "" {
			return fmt.Errorf("worker '%s': password is required", name)
		}
	}

	if c.ThreadDelay == nil {
		d := coordinator.DefaultSettings.LaunchDelay
		c.ThreadDelay = &d
	}
	if *c.ThreadDelay < 0 {
		return fmt.Errorf("thread_delay must be >= 0, got %s", *c.ThreadDelay)
	}
	if c.UnverifiedRateLimit < 0 {
		return fmt.Errorf("unverified_rate_limit must be >= 0, got %s", c.UnverifiedRateLimit)
	}

	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateCoordinator(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}

	if _, err := remote.NewProxyPool(c.Proxies); err != nil {
		return fmt.Errorf("proxies: %w", err)
	}

	if c.Instance == "" {
		c.Instance = DefaultInstance
	}
	if err := ledger.ValidateInstanceName(c.Instance); err != nil {
		return err
	}

	if len(c.Palette) > 0 {
		if _, err := palette.New(c.Palette); err != nil {
			return fmt.Errorf("palette: %w", err)
		}
	}

	return nil
}

func (c *MosaicConfig) validateScheduler() error {
	if c.Scheduler == nil {
		c.Scheduler = &SchedulerConfig{}
	}
	s := c.Scheduler
	if s.PollInterval == 0 {
		s.PollInterval = worker.DefaultSettings.PollInterval
	}
	if s.ErrorBackoff == 0 {
		s.ErrorBackoff = worker.DefaultSettings.ErrorBackoff
	}
	if s.BanThreshold == 0 {
		s.BanThreshold = worker.DefaultSettings.BanThreshold
	}
	if s.RetryDelay == 0 {
		s.RetryDelay = remote.DefaultRetryDelay
	}

	if s.PollInterval < 0 || s.ErrorBackoff < 0 || s.BanThreshold < 0 || s.RetryDelay < 0 {
		return fmt.Errorf("scheduler durations must be positive")
	}
	return nil
}

func (c *MosaicConfig) validateCoordinator() error {
	if c.Coordinator == nil {
		c.Coordinator = &CoordinatorConfig{}
	}
	co := c.Coordinator
	if co.BoardInterval == 0 {
		co.BoardInterval = coordinator.DefaultSettings.BoardInterval
	}
	if co.TemplateEvery == 0 {
		co.TemplateEvery = coordinator.DefaultSettings.TemplateEvery
	}

	if co.BoardInterval < 0 {
		return fmt.Errorf("coordinator.board_interval must be positive, got %s", co.BoardInterval)
	}
	if co.TemplateEvery < 0 {
		return fmt.Errorf("coordinator.template_every must be >= 1, got %d", co.TemplateEvery)
	}
	if co.HealthPort < 0 || co.HealthPort > 65535 {
		return fmt.Errorf("coordinator.health_port out of range: %d", co.HealthPort)
	}
	return nil
}

func (c *MosaicConfig) validateRemote() error {
	if c.Remote == nil {
		c.Remote = &RemoteConfig{}
	}
	r := c.Remote
	if r.RegionSize == 0 {
		r.RegionSize = canvas.DefaultGrid.Size
	}
	if r.RegionColumns == 0 {
		r.RegionColumns = canvas.DefaultGrid.Columns
	}
	if err := c.Grid().Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	r.Endpoints = r.Endpoints.WithDefaults()
	return nil
}

// TemplateSource returns the artwork location.
func (c *MosaicConfig) TemplateSource() artwork.Source {
	return artwork.Source{
		Path:   c.Template.Path,
		URL:    c.Template.URL,
		Anchor: image.Pt(c.Template.X, c.Template.Y),
	}
}

// Identities returns the workers sorted by username.
func (c *MosaicConfig) Identities() []worker.Identity {
	names := make([]string, 0, len(c.Workers))
	for name := range c.Workers {
		names = append(names, name)
	}
	sort.Strings(names)

	ids := make([]worker.Identity, len(names))
	for i, name := range names {
		ids[i] = worker.Identity{Username: name, Password: c.Workers[name].Password}
	}
	return ids
}

// SchedulerSettings returns per-worker pacing. Call after Validate.
func (c *MosaicConfig) SchedulerSettings() worker.Settings {
	return worker.Settings{
		InitialWait:  c.UnverifiedRateLimit,
		PollInterval: c.Scheduler.PollInterval,
		ErrorBackoff: c.Scheduler.ErrorBackoff,
		BanThreshold: c.Scheduler.BanThreshold,
	}
}

// CoordinatorSettings returns launch pacing and refresh cadence. Call after Validate.
func (c *MosaicConfig) CoordinatorSettings() coordinator.Settings {
	return coordinator.Settings{
		LaunchDelay:   *c.ThreadDelay,
		BoardInterval: c.Coordinator.BoardInterval,
		TemplateEvery: c.Coordinator.TemplateEvery,
	}
}

// Grid returns the remote region layout.
func (c *MosaicConfig) Grid() canvas.Grid {
	if c.Remote == nil {
		return canvas.DefaultGrid
	}
	return canvas.Grid{Size: c.Remote.RegionSize, Columns: c.Remote.RegionColumns}
}

// BuildPalette returns the configured palette or the built-in one.
func (c *MosaicConfig) BuildPalette() (*palette.Palette, error) {
	if len(c.Palette) == 0 {
		return palette.Default(), nil
	}
	return palette.New(c.Palette)
}

// Load reads and validates mosaic.yml from the specified path
func Load(path string) (*MosaicConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config MosaicConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
