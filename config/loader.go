// Package config loads framework configuration from defaults, an optional
// YAML file and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete framework configuration.
type Config struct {
	LLM          LLMConfig          `yaml:"llm" env:"LLM"`
	Agent        AgentConfig        `yaml:"agent" env:"AGENT"`
	Memory       MemoryConfig       `yaml:"memory" env:"MEMORY"`
	Conversation ConversationConfig `yaml:"conversation" env:"CONVERSATION"`
	Log          LogConfig          `yaml:"log" env:"LOG"`
	Metrics      MetricsConfig      `yaml:"metrics" env:"METRICS"`
}

// LLMConfig configures the model provider boundary.
type LLMConfig struct {
	Provider   string        `yaml:"provider" env:"PROVIDER"`
	Model      string        `yaml:"model" env:"MODEL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// AgentConfig configures the reasoning loop.
type AgentConfig struct {
	Name             string `yaml:"name" env:"NAME"`
	SystemPrompt     string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	MaxIterations    int    `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	MaxTokens        int    `yaml:"max_tokens" env:"MAX_TOKENS"`
	ObservationLimit int    `yaml:"observation_limit" env:"OBSERVATION_LIMIT"`
}

// MemoryConfig configures the two memory tiers.
type MemoryConfig struct {
	// Backend selects the durable store: sqlite or redis.
	Backend              string  `yaml:"backend" env:"BACKEND"`
	SQLitePath           string  `yaml:"sqlite_path" env:"SQLITE_PATH"`
	RedisAddr            string  `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword        string  `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB              int     `yaml:"redis_db" env:"REDIS_DB"`
	WorkingCapacity      int     `yaml:"working_capacity" env:"WORKING_CAPACITY"`
	PromoteThreshold     float64 `yaml:"promote_threshold" env:"PROMOTE_THRESHOLD"`
	ConsolidateThreshold float64 `yaml:"consolidate_threshold" env:"CONSOLIDATE_THRESHOLD"`
}

// ConversationConfig bounds per-run conversation state.
type ConversationConfig struct {
	MaxHistory int `yaml:"max_history" env:"MAX_HISTORY"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	Port    int  `yaml:"port" env:"PORT"`
}

// DefaultConfig returns the configuration used when nothing is provided.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			RetryDelay: 500 * time.Millisecond,
		},
		Agent: AgentConfig{
			Name:             "luma",
			MaxIterations:    10,
			MaxTokens:        1024,
			ObservationLimit: 100,
		},
		Memory: MemoryConfig{
			Backend:              "sqlite",
			SQLitePath:           "luma_memory.db",
			RedisAddr:            "localhost:6379",
			WorkingCapacity:      10,
			PromoteThreshold:     0.7,
			ConsolidateThreshold: 0.5,
		},
		Conversation: ConversationConfig{MaxHistory: 10},
		Log:          LogConfig{Level: "info", Format: "json"},
		Metrics:      MetricsConfig{Enabled: false, Port: 9090},
	}
}

// Loader assembles a Config in builder style.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the LUMA env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "LUMA"}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; defaults apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}
	return cfg, nil
}

// MustLoad loads the configuration and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}
