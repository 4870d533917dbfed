/*
Package config loads server configuration from an optional YAML file with
flag and environment overrides applied by the caller. Sensible defaults
mean a bare binary starts with a local SQLite file and a dev-only secret.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML strings like "30m" or "1h" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// DBPath is the SQLite database path. ":memory:" is valid for demos.
	DBPath string `yaml:"db_path"`

	// JWTSecret signs session tokens. The default is for development only;
	// production deployments must set their own.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the session token lifetime.
	TokenTTL Duration `yaml:"token_ttl"`

	// CORSOrigins lists allowed browser origins. Empty means allow all,
	// which suits local development with the frontend on another port.
	CORSOrigins []string `yaml:"cors_origins"`

	// Admin seeds a first administrator when the member table is empty.
	Admin AdminSeed `yaml:"admin"`
}

// AdminSeed bootstraps the first admin account.
type AdminSeed struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Addr:      ":8080",
		DBPath:    "./data/club.db",
		JWTSecret: "dev-secret-change-me",
		TokenTTL:  Duration(time.Hour),
		Admin: AdminSeed{
			Name:     "Admin",
			Email:    "admin@club.local",
			Password: "admin",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; an unreadable or malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
