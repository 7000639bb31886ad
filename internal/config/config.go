package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server  Server  `yaml:"server"`
	Auth    Auth    `yaml:"auth"`
	Storage Storage `yaml:"storage"`
	Ops     Ops     `yaml:"ops"`
	Logging Logging `yaml:"logging"`
}

// Duration is a time.Duration that unmarshals from the human form ("5s",
// "12h") used in the config file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Server struct {
	Host string `yaml:"host"`
	// Port is normally supplied as the positional CLI argument; a value here
	// is only used when the argument is absent in tests.
	Port           int      `yaml:"port"`
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	MaxWorkers     int64    `yaml:"max_workers"`
}

type Auth struct {
	JwtKey          string   `yaml:"jwt_key"`
	JwtTTL          Duration `yaml:"jwt_ttl"`
	CredentialsPath string   `yaml:"credentials_path"`
}

type Storage struct {
	// DataDir holds thread files and attachments. Empty disables the
	// file backing (memory only).
	DataDir string `yaml:"data_dir"`
}

type Ops struct {
	// Addr of the HTTP metrics/health listener. Empty disables it.
	Addr string `yaml:"addr"`
}

type Logging struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Host:           "0.0.0.0",
			RequestTimeout: Duration(5 * time.Second),
			MaxRetries:     3,
			MaxWorkers:     64,
		},
		Auth: Auth{
			JwtTTL:          Duration(12 * time.Hour),
			CredentialsPath: "credentials.txt",
		},
		Storage: Storage{DataDir: "data"},
		Logging: Logging{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load that panics, for startup paths where a bad config file is
// unrecoverable.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// ValidPort reports whether p is inside the accepted service port range.
func ValidPort(p int) bool {
	return p >= 1024 && p <= 65535
}
