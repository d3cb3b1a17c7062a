package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"morse-service/internal/hardware"
	"morse-service/internal/keyer"
	"morse-service/internal/logger"
	"morse-service/internal/transcript"
)

// Config represents the complete service configuration
type Config struct {
	Keyer      KeyerConfig      `yaml:"keyer"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Actuator   ActuatorConfig   `yaml:"actuator"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// KeyerConfig contains timing settings
type KeyerConfig struct {
	DotTimeMs int `yaml:"dot_time_ms"`
}

// TranscriptConfig contains transcript queue settings
type TranscriptConfig struct {
	Capacity int    `yaml:"capacity"`
	Overflow string `yaml:"overflow"`
}

// ActuatorConfig selects the indicator to key
type ActuatorConfig struct {
	Type       string `yaml:"type"`
	Led        string `yaml:"led"`
	GpioChip   string `yaml:"gpio_chip"`
	GpioLine   int    `yaml:"gpio_line"`
	PwmChannel int    `yaml:"pwm_channel"`
	PwmDuty    int    `yaml:"pwm_duty"`
}

// RedisConfig contains the command/transcript transport settings
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Keyer: KeyerConfig{
			DotTimeMs: keyer.DefaultDotTimeMs,
		},
		Transcript: TranscriptConfig{
			Capacity: transcript.DefaultCapacity,
			Overflow: transcript.DropNewest.String(),
		},
		Actuator: ActuatorConfig{
			Type: hardware.KindLog,
		},
		Redis: RedisConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    6379,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file on top of the defaults
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate repairs recoverable settings and reports them as diagnostics.
// Settings that cannot be repaired are returned as the error.
func (c *Config) Validate() ([]error, error) {
	var diags []error

	if _, err := keyer.EffectiveDotTime(c.Keyer.DotTimeMs); err != nil {
		diags = append(diags, err)
		c.Keyer.DotTimeMs = keyer.DefaultDotTimeMs
	}

	if c.Transcript.Capacity <= 0 {
		diags = append(diags, fmt.Errorf("transcript capacity %d is not positive, using %d",
			c.Transcript.Capacity, transcript.DefaultCapacity))
		c.Transcript.Capacity = transcript.DefaultCapacity
	}

	if _, err := transcript.ParseOverflowPolicy(c.Transcript.Overflow); err != nil {
		return diags, err
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		diags = append(diags, err)
		c.Logging.Level = "info"
	}

	if c.Redis.Enabled && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		return diags, fmt.Errorf("invalid redis port: %d", c.Redis.Port)
	}

	if _, err := hardware.NewDevice(c.ActuatorOptions(), logger.NewLogger(nil, logger.LogLevelNone)); err != nil {
		return diags, err
	}

	return diags, nil
}

func (c *Config) DotTime() time.Duration {
	d, _ := keyer.EffectiveDotTime(c.Keyer.DotTimeMs)
	return d
}

func (c *Config) OverflowPolicy() transcript.OverflowPolicy {
	p, _ := transcript.ParseOverflowPolicy(c.Transcript.Overflow)
	return p
}

func (c *Config) LogLevel() logger.LogLevel {
	lvl, _ := logger.ParseLevel(c.Logging.Level)
	return lvl
}

func (c *Config) ActuatorOptions() hardware.Options {
	return hardware.Options{
		Kind:       c.Actuator.Type,
		LedName:    c.Actuator.Led,
		GpioChip:   c.Actuator.GpioChip,
		GpioLine:   c.Actuator.GpioLine,
		PwmChannel: c.Actuator.PwmChannel,
		PwmDuty:    c.Actuator.PwmDuty,
	}
}

// Summary describes the effective configuration in one line
func (c *Config) Summary() string {
	redis := "disabled"
	if c.Redis.Enabled {
		redis = fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
	}
	return fmt.Sprintf("dot time %v, transcript %s symbols (%s), actuator %s, redis %s",
		c.DotTime(),
		humanize.Comma(int64(c.Transcript.Capacity)),
		c.OverflowPolicy(),
		c.Actuator.Type,
		redis)
}
