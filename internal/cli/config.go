// Package cli implements the protocolctl commands.
package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the protocolctl configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Output OutputConfig `mapstructure:"output"`
}

type ServerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OutputConfig struct {
	Colors bool `mapstructure:"colors"`
}

// LoadConfig reads .protocolctl.yaml (or cfgFile) and PROTOCOLCTL_* variables
// into v. Flags bound to v before the call take precedence.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".protocolctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/protocolctl")
	}

	v.SetEnvPrefix("PROTOCOLCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.url", "http://localhost:9010")
	v.SetDefault("server.timeout", 60*time.Second)
	v.SetDefault("output.colors", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("server url is required")
	}
	if cfg.Server.Timeout <= 0 {
		return nil, fmt.Errorf("server timeout must be positive")
	}
	return &cfg, nil
}
