// Package config loads SDK settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings is the configuration surface of the SDK. Every option has a
// usable default, so a zero-config Runtime works out of the box with caching
// disabled.
type Settings struct {
	// CacheThreshold is the maximum cosine distance for a semantic cache
	// hit. Zero (or negative) disables caching entirely.
	CacheThreshold float64 `envconfig:"VECTORWAVE_CACHE_THRESHOLD" default:"0"`

	// SensitiveKeys names parameters excluded from embedding text and from
	// persisted inputs. Fixed per process so cached candidates for one
	// function were always masked the same way.
	SensitiveKeys []string `envconfig:"VECTORWAVE_SENSITIVE_KEYS"`

	// GlobalTags are attached to every record of the run.
	GlobalTags map[string]string `envconfig:"VECTORWAVE_GLOBAL_TAGS"`

	// TagAllowlist names call parameters eligible to become per-record tags.
	TagAllowlist []string `envconfig:"VECTORWAVE_TAG_ALLOWLIST"`

	// SteadyMargin and DiscoveryMargin are the classifier thresholds; both
	// are cosine distances on the same scale as CacheThreshold.
	SteadyMargin    float64 `envconfig:"VECTORWAVE_STEADY_MARGIN" default:"0.25"`
	DiscoveryMargin float64 `envconfig:"VECTORWAVE_DISCOVERY_MARGIN" default:"0.40"`

	// DriftThreshold is the distance from the golden center beyond which an
	// execution is reported as semantic drift.
	DriftThreshold float64 `envconfig:"VECTORWAVE_DRIFT_THRESHOLD" default:"0.65"`

	// BatchSize and FlushInterval tune the write-behind logger: a flush
	// happens when either trips, whichever first.
	BatchSize     int           `envconfig:"VECTORWAVE_BATCH_SIZE" default:"20"`
	FlushInterval time.Duration `envconfig:"VECTORWAVE_FLUSH_INTERVAL" default:"2s"`

	// QueueSize bounds the logger's enqueue channel; overflow drops.
	QueueSize int `envconfig:"VECTORWAVE_QUEUE_SIZE" default:"1024"`

	// ReplayLimit is the default fetch bound for replay runs.
	ReplayLimit int `envconfig:"VECTORWAVE_REPLAY_LIMIT" default:"50"`

	// HealerModel is the Claude model used for auto-diagnosis.
	HealerModel string `envconfig:"VECTORWAVE_HEALER_MODEL" default:"claude-sonnet-4-20250514"`
}

// Load reads settings from environment variables.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadOrDefault loads from the environment, falling back to defaults.
func LoadOrDefault() *Settings {
	s, err := Load()
	if err != nil {
		return Default()
	}
	return s
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		SteadyMargin:    0.25,
		DiscoveryMargin: 0.40,
		DriftThreshold:  0.65,
		BatchSize:       20,
		FlushInterval:   2 * time.Second,
		QueueSize:       1024,
		ReplayLimit:     50,
		HealerModel:     "claude-sonnet-4-20250514",
	}
}

// Validate rejects settings no component can honor.
func (s *Settings) Validate() error {
	if s.SteadyMargin > s.DiscoveryMargin {
		return fmt.Errorf("steady margin %.3f exceeds discovery margin %.3f", s.SteadyMargin, s.DiscoveryMargin)
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", s.BatchSize)
	}
	if s.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %s", s.FlushInterval)
	}
	if s.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", s.QueueSize)
	}
	return nil
}
