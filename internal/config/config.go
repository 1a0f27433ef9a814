package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the gateway needs to run. All values can come
// from a config file (configs/settings.yml) or from env vars with the
// JOTTA_REST prefix, e.g. JOTTA_REST_JOTTA_USERNAME.
type Config struct {
	Listen  string        `mapstructure:"listen"`
	Jotta   JottaConfig   `mapstructure:"jotta"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// JottaConfig describes the vendor backend and its single credential pair.
type JottaConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// PasswordFile is an alternative to Password: the file's trimmed
	// content is used as the password (e.g. a mounted secret).
	PasswordFile string `mapstructure:"password_file"`

	// APIBase is the read/write endpoint root, UploadBase the separate
	// upload host. Overridable for tests and self-hosted deployments.
	APIBase    string `mapstructure:"api_base"`
	UploadBase string `mapstructure:"upload_base"`
	// Mount is the device/mountpoint path segment under the user.
	// Only Archive, Shared and Sync seem to be accepted as mount points.
	Mount string `mapstructure:"mount"`

	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration, applies defaults and validates.
func Load() (Config, error) {
	v := viper.New()

	v.AddConfigPath("./configs")
	v.AddConfigPath("/configs")
	v.SetConfigName("settings")
	v.SetConfigType("yml")

	v.SetEnvPrefix("JOTTA_REST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen", ":8080")
	// Register credential keys so AutomaticEnv can see them even
	// without a config file.
	v.SetDefault("jotta.username", "")
	v.SetDefault("jotta.password", "")
	v.SetDefault("jotta.password_file", "")
	v.SetDefault("jotta.api_base", "https://www.jottacloud.com/jfs")
	v.SetDefault("jotta.upload_base", "https://up.jottacloud.com/jfs")
	v.SetDefault("jotta.mount", "Jotta/Sync")
	v.SetDefault("jotta.upload_timeout", 10*time.Minute)
	v.SetDefault("metrics.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks the minimum the gateway cannot run without.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Jotta.Username) == "" {
		return errors.New("jotta: username is required (JOTTA_REST_JOTTA_USERNAME)")
	}
	if strings.TrimSpace(c.Jotta.Password) == "" && strings.TrimSpace(c.Jotta.PasswordFile) == "" {
		return errors.New("jotta: password or password_file is required")
	}
	if strings.TrimSpace(c.Jotta.APIBase) == "" || strings.TrimSpace(c.Jotta.UploadBase) == "" {
		return errors.New("jotta: api_base and upload_base must not be empty")
	}
	if c.Jotta.UploadTimeout <= 0 {
		return errors.New("jotta: upload_timeout must be positive")
	}
	return nil
}
