// Package config loads FraudGuard settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FRAUDGUARD_"

type Config struct {
	Http         HTTPConfig         `yaml:"http"`
	Model        ModelConfig        `yaml:"model"`
	Inference    InferenceConfig    `yaml:"inference"`
	Session      SessionConfig      `yaml:"session"`
	Database     DatabaseConfig     `yaml:"database"`
	Log          LogConfig          `yaml:"log"`
	Presentation PresentationConfig `yaml:"presentation"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	Timeout        time.Duration `yaml:"timeout" validate:"min=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      float64       `yaml:"rate_limit" validate:"min=0"`
	RateBurst      int           `yaml:"rate_burst" validate:"min=0"`
}

type ModelConfig struct {
	Kind        string `yaml:"kind" validate:"required,oneof=logistic_regression decision_tree onnx"`
	Path        string `yaml:"path" validate:"required"`
	ONNXLibrary string `yaml:"onnx_library"`
	Watch       bool   `yaml:"watch"`
}

type InferenceConfig struct {
	PreserveInputs bool `yaml:"preserve_inputs"`
	ClampAmount    bool `yaml:"clamp_amount"`
	CacheSize      int  `yaml:"cache_size" validate:"min=0"`
}

type SessionConfig struct {
	MaxSessions int    `yaml:"max_sessions" validate:"min=1"`
	CookieName  string `yaml:"cookie_name" validate:"required"`
}

type DatabaseConfig struct {
	// Path of the SQLite load log. Empty disables it.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"min=0"`
	Compress   bool   `yaml:"compress"`
}

type PresentationConfig struct {
	Locale string `yaml:"locale"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		Http: HTTPConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Model: ModelConfig{
			Kind: "logistic_regression",
			Path: filepath.Join("models", "fraud_detection_model.json"),
		},
		Inference: InferenceConfig{
			PreserveInputs: true,
			ClampAmount:    false,
			CacheSize:      1024,
		},
		Session: SessionConfig{
			MaxSessions: 10000,
			CookieName:  "fraudguard_session",
		},
		Database: DatabaseConfig{
			Path: filepath.Join("data", "fraudguard.db"),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Presentation: PresentationConfig{
			Locale: "en",
		},
	}
}

// Load reads path (if it exists) over the defaults, then .env, then
// FRAUDGUARD_* variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Defaults only.
		default:
			return nil, err
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"MODEL_KIND":          &cfg.Model.Kind,
		"MODEL_PATH":          &cfg.Model.Path,
		"ONNX_LIBRARY":        &cfg.Model.ONNXLibrary,
		"DB_PATH":             &cfg.Database.Path,
		"LOG_LEVEL":           &cfg.Log.Level,
		"LOG_FILE":            &cfg.Log.File,
		"LOCALE":              &cfg.Presentation.Locale,
		"SESSION_COOKIE_NAME": &cfg.Session.CookieName,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"HTTP_PORT":    &cfg.Http.Port,
		"CACHE_SIZE":   &cfg.Inference.CacheSize,
		"MAX_SESSIONS": &cfg.Session.MaxSessions,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"PRESERVE_INPUTS": &cfg.Inference.PreserveInputs,
		"CLAMP_AMOUNT":    &cfg.Inference.ClampAmount,
		"MODEL_WATCH":     &cfg.Model.Watch,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "HTTP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Http.Timeout = d
	}
	return nil
}
