// Package config loads settings from an optional .env file and prefixed
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Prefix is the environment variable prefix read by the server.
const Prefix = "QUERYBUILDER_"

type HTTP struct {
	Port int `mapstructure:"port"`
	// SlowRequest is the duration after which a request is counted as slow.
	SlowRequest time.Duration `mapstructure:"slowrequest"`
}

type Database struct {
	URL string `mapstructure:"url"`
}

type Catalog struct {
	Path string `mapstructure:"path"`
}

type Engine struct {
	MaxDepth      int  `mapstructure:"maxdepth"`
	CaseSensitive bool `mapstructure:"casesensitive"`
	Workers       int  `mapstructure:"workers"`
}

type Cache struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type Session struct {
	// IdleTimeout closes sessions unused for this long. Zero keeps them
	// until they are deleted.
	IdleTimeout time.Duration `mapstructure:"idletimeout"`
}

// Server is the query builder server configuration. Keys are nested with
// underscores in the environment: QUERYBUILDER_ENGINE_MAXDEPTH sets
// Engine.MaxDepth.
type Server struct {
	HTTP     HTTP     `mapstructure:"http"`
	Database Database `mapstructure:"database"`
	Catalog  Catalog  `mapstructure:"catalog"`
	Engine   Engine   `mapstructure:"engine"`
	Cache    Cache    `mapstructure:"cache"`
	Session  Session  `mapstructure:"session"`
}

// Defaults returns the server configuration used when nothing is set.
func Defaults() Server {
	return Server{
		HTTP:    HTTP{Port: 8080, SlowRequest: time.Second},
		Engine:  Engine{MaxDepth: 3},
		Session: Session{IdleTimeout: 30 * time.Minute},
	}
}

// LoadServer returns Defaults overlaid with .env and QUERYBUILDER_ variables.
func LoadServer() (Server, error) {
	cfg := Defaults()
	if err := Load(Prefix, &cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Load fills target from ".env" in the working directory and the process
// environment. Only keys carrying prefix are read. Fields with no matching
// key keep their current value, so callers pre-fill defaults.
func Load(prefix string, target any) error {
	return LoadFile(prefix, ".env", target)
}

// LoadFile is Load with an explicit env file. A missing file is not an error.
func LoadFile(prefix, envFile string, target any) error {
	v := viper.New()
	prefixUpper := strings.ToUpper(prefix)

	if envFile != "" {
		file := viper.New()
		file.SetConfigFile(envFile)
		file.SetConfigType("env")
		if err := file.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read %s: %w", envFile, err)
			}
		}
		// the env reader lowercases keys
		for _, key := range file.AllKeys() {
			set(v, prefixUpper, strings.ToUpper(key), file.GetString(key))
		}
	}

	// environment wins over the file
	for _, envStr := range os.Environ() {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok {
			continue
		}
		set(v, prefixUpper, key, value)
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// set maps PREFIX_DB_HOST to db.host.
func set(v *viper.Viper, prefix, key, value string) {
	if !strings.HasPrefix(key, prefix) {
		return
	}
	propKey := strings.TrimPrefix(key, prefix)
	propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
	propKey = strings.TrimPrefix(propKey, ".")
	if propKey == "" {
		return
	}
	v.Set(propKey, value)
}
