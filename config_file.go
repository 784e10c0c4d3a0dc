package authkit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of a config file. Durations are
// time.ParseDuration strings ("24h", "2h", "30s"). Zero-valued fields keep
// their defaults.
type fileConfig struct {
	Token struct {
		Secret     string `yaml:"secret"`
		Issuer     string `yaml:"issuer"`
		Audience   string `yaml:"audience"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
		Leeway     string `yaml:"leeway"`
	} `yaml:"token"`
	Password struct {
		Memory         uint32 `yaml:"memory_kb"`
		Time           uint32 `yaml:"time"`
		Parallelism    uint8  `yaml:"parallelism"`
		MinLength      int    `yaml:"min_length"`
		UpgradeOnLogin *bool  `yaml:"upgrade_on_login"`
	} `yaml:"password"`
	Lockout struct {
		Threshold int    `yaml:"threshold"`
		Duration  string `yaml:"duration"`
	} `yaml:"lockout"`
	Session struct {
		MaxRefreshTokens int `yaml:"max_refresh_tokens"`
	} `yaml:"session"`
	Audit struct {
		Enabled    *bool `yaml:"enabled"`
		BufferSize int   `yaml:"buffer_size"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// LoadConfig loads configuration from a YAML file on top of the defaults and
// applies the AUTHKIT_TOKEN_SECRET environment override, so deployments can
// keep the signing secret out of the file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if fc.Token.Secret != "" {
		cfg.Token.Secret = []byte(fc.Token.Secret)
	}
	if fc.Token.Issuer != "" {
		cfg.Token.Issuer = fc.Token.Issuer
	}
	if fc.Token.Audience != "" {
		cfg.Token.Audience = fc.Token.Audience
	}
	if err := overrideDuration(&cfg.Token.AccessTTL, fc.Token.AccessTTL, "token.access_ttl"); err != nil {
		return Config{}, err
	}
	if err := overrideDuration(&cfg.Token.RefreshTTL, fc.Token.RefreshTTL, "token.refresh_ttl"); err != nil {
		return Config{}, err
	}
	if err := overrideDuration(&cfg.Token.Leeway, fc.Token.Leeway, "token.leeway"); err != nil {
		return Config{}, err
	}

	if fc.Password.Memory > 0 {
		cfg.Password.Memory = fc.Password.Memory
	}
	if fc.Password.Time > 0 {
		cfg.Password.Time = fc.Password.Time
	}
	if fc.Password.Parallelism > 0 {
		cfg.Password.Parallelism = fc.Password.Parallelism
	}
	if fc.Password.MinLength > 0 {
		cfg.Password.MinLength = fc.Password.MinLength
	}
	if fc.Password.UpgradeOnLogin != nil {
		cfg.Password.UpgradeOnLogin = *fc.Password.UpgradeOnLogin
	}

	if fc.Lockout.Threshold > 0 {
		cfg.Lockout.Threshold = fc.Lockout.Threshold
	}
	if err := overrideDuration(&cfg.Lockout.Duration, fc.Lockout.Duration, "lockout.duration"); err != nil {
		return Config{}, err
	}

	if fc.Session.MaxRefreshTokens > 0 {
		cfg.Session.MaxRefreshTokens = fc.Session.MaxRefreshTokens
	}

	if fc.Audit.Enabled != nil {
		cfg.Audit.Enabled = *fc.Audit.Enabled
	}
	if fc.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = fc.Audit.BufferSize
	}
	if fc.Metrics.Enabled != nil {
		cfg.Metrics.Enabled = *fc.Metrics.Enabled
	}

	if secret := os.Getenv("AUTHKIT_TOKEN_SECRET"); secret != "" {
		cfg.Token.Secret = []byte(secret)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func overrideDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*dst = d
	return nil
}
