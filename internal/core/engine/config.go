package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/adapter"
	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

// ConflictMode selects whether detected conflicts are resolved immediately or
// parked for user review.
type ConflictMode string

const (
	ConflictModeAuto   ConflictMode = "auto"
	ConflictModeManual ConflictMode = "manual"
)

// Config is the sync manager's construction-time configuration. Validated
// once; invalid configurations never produce a manager.
type Config struct {
	// Adapters names the transports to run, Primary the one whose delivery
	// counts. The rest receive best-effort mirrored pushes.
	Adapters []string `json:"adapters" yaml:"adapters"`
	Primary  string   `json:"primary" yaml:"primary"`

	ConflictMode  ConflictMode  `json:"conflictMode" yaml:"conflictMode"`
	SyncInterval  time.Duration `json:"syncInterval" yaml:"syncInterval"`
	BatchSize     int           `json:"batchSize" yaml:"batchSize"`
	RetryAttempts int           `json:"retryAttempts" yaml:"retryAttempts"`

	// PushTimeout bounds every adapter push/pull call.
	PushTimeout time.Duration `json:"pushTimeout" yaml:"pushTimeout"`

	EnableVersioning bool `json:"enableVersioning" yaml:"enableVersioning"`
	EnableRealtime   bool `json:"enableRealtime" yaml:"enableRealtime"`

	// EntityTypes the manager watches for remote changes.
	EntityTypes []change.EntityType `json:"entityTypes" yaml:"entityTypes"`

	Realtime adapter.RealtimeConfig `json:"realtime" yaml:"realtime"`
}

// DefaultConfig returns the defaults a single-device household starts with.
func DefaultConfig() Config {
	return Config{
		Adapters:         []string{"broadcast", "local"},
		Primary:          "broadcast",
		ConflictMode:     ConflictModeAuto,
		SyncInterval:     30 * time.Second,
		BatchSize:        50,
		RetryAttempts:    3,
		PushTimeout:      10 * time.Second,
		EnableVersioning: true,
		EntityTypes: []change.EntityType{
			change.EntityExpense,
			change.EntityTask,
			change.EntityDocument,
			change.EntityMedication,
			change.EntityCalendar,
		},
		Realtime: adapter.DefaultRealtimeConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Adapters) == 0 {
		return fmt.Errorf("at least one adapter is required")
	}
	if c.Primary == "" {
		return fmt.Errorf("primary adapter is required")
	}
	found := false
	for _, name := range c.Adapters {
		if name == c.Primary {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("primary adapter %q is not in the adapter list", c.Primary)
	}
	switch c.ConflictMode {
	case ConflictModeAuto, ConflictModeManual:
	default:
		return fmt.Errorf("unknown conflict mode %q", c.ConflictMode)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must not be negative")
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("push timeout must be positive")
	}
	return nil
}

// UnmarshalYAML merges a YAML document over the values already in c, so
// callers can start from DefaultConfig and override only the keys they set.
// Durations are written as Go duration strings ("30s", "1m").
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Adapters         []string            `yaml:"adapters"`
		Primary          string              `yaml:"primary"`
		ConflictMode     string              `yaml:"conflictMode"`
		SyncInterval     string              `yaml:"syncInterval"`
		BatchSize        *int                `yaml:"batchSize"`
		RetryAttempts    *int                `yaml:"retryAttempts"`
		PushTimeout      string              `yaml:"pushTimeout"`
		EnableVersioning *bool               `yaml:"enableVersioning"`
		EnableRealtime   *bool               `yaml:"enableRealtime"`
		EntityTypes      []change.EntityType `yaml:"entityTypes"`
		Realtime         *struct {
			URL                  string `yaml:"url"`
			DialTimeout          string `yaml:"dialTimeout"`
			WriteTimeout         string `yaml:"writeTimeout"`
			MaxReconnectAttempts *int   `yaml:"maxReconnectAttempts"`
			ReconnectBackoff     string `yaml:"reconnectBackoff"`
		} `yaml:"realtime"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Adapters != nil {
		c.Adapters = raw.Adapters
	}
	if raw.Primary != "" {
		c.Primary = raw.Primary
	}
	if raw.ConflictMode != "" {
		c.ConflictMode = ConflictMode(raw.ConflictMode)
	}
	if err := setDuration(&c.SyncInterval, raw.SyncInterval, "syncInterval"); err != nil {
		return err
	}
	if raw.BatchSize != nil {
		c.BatchSize = *raw.BatchSize
	}
	if raw.RetryAttempts != nil {
		c.RetryAttempts = *raw.RetryAttempts
	}
	if err := setDuration(&c.PushTimeout, raw.PushTimeout, "pushTimeout"); err != nil {
		return err
	}
	if raw.EnableVersioning != nil {
		c.EnableVersioning = *raw.EnableVersioning
	}
	if raw.EnableRealtime != nil {
		c.EnableRealtime = *raw.EnableRealtime
	}
	if raw.EntityTypes != nil {
		c.EntityTypes = raw.EntityTypes
	}
	if raw.Realtime != nil {
		if raw.Realtime.URL != "" {
			c.Realtime.URL = raw.Realtime.URL
		}
		if err := setDuration(&c.Realtime.DialTimeout, raw.Realtime.DialTimeout, "realtime.dialTimeout"); err != nil {
			return err
		}
		if err := setDuration(&c.Realtime.WriteTimeout, raw.Realtime.WriteTimeout, "realtime.writeTimeout"); err != nil {
			return err
		}
		if raw.Realtime.MaxReconnectAttempts != nil {
			c.Realtime.MaxReconnectAttempts = *raw.Realtime.MaxReconnectAttempts
		}
		if err := setDuration(&c.Realtime.ReconnectBackoff, raw.Realtime.ReconnectBackoff, "realtime.reconnectBackoff"); err != nil {
			return err
		}
	}
	return nil
}

func setDuration(dst *time.Duration, raw, key string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}
