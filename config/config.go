// Package config loads the kaldav command line configuration from a YAML file
// and the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/kaldav/go-kaldav"
)

// Config is the resolved configuration. Zero values mean the setting was not
// provided anywhere.
type Config struct {
	Server   Server `mapstructure:"server"`
	Log      Log    `mapstructure:"log"`
	Calendar string `mapstructure:"calendar"`
	Serve    Serve  `mapstructure:"serve"`
}

// Server holds the CalDAV endpoint and its credentials.
type Server struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

// Serve configures the built-in CalDAV server.
type Serve struct {
	Addr      string `mapstructure:"addr"`
	Principal string `mapstructure:"principal"`
	Dir       string `mapstructure:"dir"`
}

var envBindings = map[string]string{
	"server.url":      "KALDAV_SERVER_URL",
	"server.username": "KALDAV_USERNAME",
	"server.password": "KALDAV_PASSWORD",
	"server.token":    "KALDAV_TOKEN",
	"log.level":       "KALDAV_LOG_LEVEL",
	"calendar":        "KALDAV_CALENDAR",
	"serve.addr":      "KALDAV_SERVE_ADDR",
	"serve.principal": "KALDAV_SERVE_PRINCIPAL",
	"serve.dir":       "KALDAV_SERVE_DIR",
}

var configPaths = []string{
	".",
	"$HOME/.kaldav",
	"/etc/kaldav",
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.principal", "/")

	for key, env := range envBindings {
		// BindEnv only fails when no key is given.
		_ = v.BindEnv(key, env)
	}

	return v
}

// Load reads the configuration. If file is empty, a "config.yaml" is looked
// up in the working directory, $HOME/.kaldav and /etc/kaldav; a missing file
// is not an error. Environment variables override the file.
func Load(file string) (*Config, error) {
	v := newViper()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range configPaths {
			v.AddConfigPath(os.ExpandEnv(path))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode config: %w", err)
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("config: invalid log.level: %w", err)
	}

	return &cfg, nil
}

// LogLevel returns the configured logrus level, info if unset.
func (cfg *Config) LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// HTTPClient returns a client authenticating with the configured token or,
// failing that, the configured username and password.
func (cfg *Config) HTTPClient(ctx context.Context) (kaldav.HTTPClient, error) {
	s := cfg.Server
	switch {
	case s.Token != "" && (s.Username != "" || s.Password != ""):
		return nil, fmt.Errorf("config: server.token and server.username/password are mutually exclusive")
	case s.Token != "":
		return kaldav.HTTPClientWithToken(ctx, http.DefaultClient, s.Token), nil
	case s.Username != "":
		return kaldav.HTTPClientWithBasicAuth(http.DefaultClient, s.Username, s.Password), nil
	default:
		return http.DefaultClient, nil
	}
}

// Validate checks the settings needed to talk to a server.
func (cfg *Config) Validate() error {
	if cfg.Server.URL == "" {
		return fmt.Errorf("config: server.url is required (set it in the config file or KALDAV_SERVER_URL)")
	}
	return nil
}
