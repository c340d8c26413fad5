// Package config loads the service configuration once at startup. Values come
// from the process environment, falling back to an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cameronmore/nerdauth/env"
)

type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
	Test        Environment = "test"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	BackendCookie = "cookie"
	BackendRedis  = "redis"
)

// Config holds runtime settings.
//
// SessionSecrets is ordered: the first secret signs new sessions, every
// secret is accepted when reading one.
type Config struct {
	BaseURL         string
	SessionSecrets  []string
	Environment     Environment
	Addr            string
	DatabaseDriver  string
	DatabaseDSN     string
	SessionBackend  string
	RedisURL        string
	SessionLifetime time.Duration
	BcryptCost      int
}

// ConfigurationError lists every problem found while loading configuration.
type ConfigurationError struct {
	Problems []error
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + errors.Join(e.Problems...).Error()
}

func (e *ConfigurationError) Unwrap() []error {
	return e.Problems
}

func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// Load reads envFile (may be empty or missing) and the process environment,
// then validates the result.
func Load(envFile string) (*Config, error) {
	fileVars, err := env.ProcessOptionalEnv(envFile)
	if err != nil {
		return nil, &ConfigurationError{Problems: []error{err}}
	}
	return FromSource(env.NewSource(fileVars))
}

// FromSource builds and validates a Config from already resolved variables.
func FromSource(src *env.Source) (*Config, error) {
	var problems []error

	driver := src.Get("DATABASE_DRIVER", DriverSQLite)
	defaultDSN := ""
	if driver == DriverSQLite {
		defaultDSN = "nerdauth.db"
	}

	cfg := &Config{
		BaseURL:        src.Get("URL", ""),
		SessionSecrets: splitSecrets(src.Get("SESSION_SECRET", "")),
		Environment:    Environment(strings.ToLower(src.Get("APP_ENV", string(Production)))),
		Addr:           src.Get("ADDR", ":8080"),
		DatabaseDriver: driver,
		DatabaseDSN:    src.Get("DATABASE_DSN", defaultDSN),
		SessionBackend: src.Get("SESSION_BACKEND", BackendCookie),
		RedisURL:       src.Get("REDIS_URL", "redis://127.0.0.1:6379/0"),
	}

	lifetime, err := time.ParseDuration(src.Get("SESSION_LIFETIME", "168h"))
	if err != nil {
		problems = append(problems, fmt.Errorf("SESSION_LIFETIME: %w", err))
	}
	cfg.SessionLifetime = lifetime

	cost, err := strconv.Atoi(src.Get("BCRYPT_COST", strconv.Itoa(bcrypt.DefaultCost)))
	if err != nil {
		problems = append(problems, fmt.Errorf("BCRYPT_COST: %w", err))
	}
	cfg.BcryptCost = cost

	problems = append(problems, cfg.problems()...)
	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	if problems := c.problems(); len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func (c *Config) problems() []error {
	var problems []error

	if c.BaseURL == "" {
		problems = append(problems, errors.New("URL is required"))
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Errorf("URL %q is not an absolute url", c.BaseURL))
	}

	if len(c.SessionSecrets) == 0 {
		problems = append(problems, errors.New("SESSION_SECRET is required"))
	}

	switch c.Environment {
	case Production, Development, Test:
	default:
		problems = append(problems, fmt.Errorf("APP_ENV %q must be one of production, development, test", c.Environment))
	}

	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
		if c.DatabaseDSN == "" {
			problems = append(problems, errors.New("DATABASE_DSN is required"))
		}
	case DriverMemory:
		if c.IsProduction() {
			problems = append(problems, errors.New("DATABASE_DRIVER memory is not allowed in production"))
		}
	default:
		problems = append(problems, fmt.Errorf("DATABASE_DRIVER %q must be one of sqlite3, postgres, memory", c.DatabaseDriver))
	}

	switch c.SessionBackend {
	case BackendCookie:
	case BackendRedis:
		if c.RedisURL == "" {
			problems = append(problems, errors.New("REDIS_URL is required for the redis session backend"))
		}
	default:
		problems = append(problems, fmt.Errorf("SESSION_BACKEND %q must be one of cookie, redis", c.SessionBackend))
	}

	if c.SessionLifetime <= 0 {
		problems = append(problems, errors.New("SESSION_LIFETIME must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		problems = append(problems, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	return problems
}

func splitSecrets(raw string) []string {
	var secrets []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}
