// Package config resolves command options from flags, GITHUB_FACTS_* environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/domain"
	"github.com/naka-gawa/github-facts/internal/ratelimit"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every option when read from the environment.
const EnvPrefix = "GITHUB_FACTS"

const (
	inputDateLayout = "2006/01/02"

	FormatJSON     = "json"
	FormatKeyValue = "kv"

	DefaultConcurrency     = 4
	DefaultTimeout         = 10 * time.Minute
	DefaultPerRepoEstimate = 100
	DefaultWatchInterval   = 30 * time.Second
)

// Option keys. Flags use the same names.
const (
	KeyRepo            = "repo"
	KeyOrg             = "org"
	KeyProject         = "project"
	KeyProjectOwner    = "project-owner-type"
	KeySince           = "since"
	KeyUntil           = "until"
	KeyKinds           = "kinds"
	KeyMaxItems        = "max-items"
	KeyConcurrency     = "concurrency"
	KeyTimeout         = "timeout"
	KeyPerRepoEstimate = "per-repo-estimate"
	KeyFormat          = "format"
	KeyDir             = "dir"
	KeyIncludeArchived = "include-archived"
	KeyWatchInterval   = "watch-interval"
	KeyRetryBase       = "retry-base-delay"
	KeyRetryMultiplier = "retry-multiplier"
	KeyRetryMax        = "retry-max-delay"
	KeyRetries         = "max-retries"
	KeyVerbose         = "verbose"
	KeyLogLevel        = "log-level"
)

// Config holds the resolved options of one invocation.
type Config struct {
	Repos           []domain.RepoRef
	Org             string
	Project         *domain.ProjectRef
	Window          domain.Window
	Kinds           []domain.ItemKind
	MaxItems        int
	Concurrency     int
	Timeout         time.Duration
	PerRepoEstimate int
	Format          string
	Dir             string
	IncludeArchived bool
	WatchInterval   time.Duration
	Backoff         ratelimit.Backoff
	Verbose         bool
	LogLevel        string
}

// New returns a viper instance reading GITHUB_FACTS_* variables, with defaults set.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyProjectOwner, string(domain.ProjectOwnerOrganization))
	v.SetDefault(KeyConcurrency, DefaultConcurrency)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyPerRepoEstimate, DefaultPerRepoEstimate)
	v.SetDefault(KeyFormat, FormatJSON)
	v.SetDefault(KeyWatchInterval, DefaultWatchInterval)
	v.SetDefault(KeyRetryBase, ratelimit.DefaultBackoff.BaseDelay)
	v.SetDefault(KeyRetryMultiplier, ratelimit.DefaultBackoff.Multiplier)
	v.SetDefault(KeyRetryMax, ratelimit.DefaultBackoff.MaxDelay)
	v.SetDefault(KeyRetries, ratelimit.DefaultBackoff.MaxRetries)
	v.SetDefault(KeyLogLevel, "info")
	return v
}

// LoadEnvFile loads variables from path into the process environment without
// overriding ones already set. A missing default .env is not an error.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return apperr.InvalidConfig(fmt.Errorf("failed to load env file %s: %w", path, err))
	}
	return nil
}

// BindFlags makes flags take precedence over the environment.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return apperr.InvalidConfig(fmt.Errorf("failed to bind flags: %w", err))
	}
	return nil
}

// Load reads and validates every option. Validation failures are config errors.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := load(v)
	if err != nil {
		return nil, apperr.InvalidConfig(err)
	}
	return cfg, nil
}

func load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Org:             strings.TrimSpace(v.GetString(KeyOrg)),
		MaxItems:        v.GetInt(KeyMaxItems),
		Concurrency:     v.GetInt(KeyConcurrency),
		Timeout:         v.GetDuration(KeyTimeout),
		PerRepoEstimate: v.GetInt(KeyPerRepoEstimate),
		Format:          v.GetString(KeyFormat),
		Dir:             v.GetString(KeyDir),
		IncludeArchived: v.GetBool(KeyIncludeArchived),
		WatchInterval:   v.GetDuration(KeyWatchInterval),
		Verbose:         v.GetBool(KeyVerbose),
		LogLevel:        v.GetString(KeyLogLevel),
		Backoff: ratelimit.Backoff{
			BaseDelay:  v.GetDuration(KeyRetryBase),
			Multiplier: v.GetFloat64(KeyRetryMultiplier),
			MaxDelay:   v.GetDuration(KeyRetryMax),
			MaxRetries: v.GetInt(KeyRetries),
		},
	}

	for _, s := range splitList(v.GetStringSlice(KeyRepo)) {
		ref, err := domain.ParseRepoRef(s)
		if err != nil {
			return nil, err
		}
		cfg.Repos = append(cfg.Repos, ref)
	}

	if p := strings.TrimSpace(v.GetString(KeyProject)); p != "" {
		ref, err := ParseProjectRef(v.GetString(KeyProjectOwner), p)
		if err != nil {
			return nil, err
		}
		cfg.Project = &ref
	}

	var err error
	if cfg.Window.Since, err = ParseDate(v.GetString(KeySince), false); err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", KeySince, err)
	}
	if cfg.Window.Until, err = ParseDate(v.GetString(KeyUntil), true); err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", KeyUntil, err)
	}
	if !cfg.Window.Since.IsZero() && !cfg.Window.Until.IsZero() && cfg.Window.Until.Before(cfg.Window.Since) {
		return nil, fmt.Errorf("--%s must not be before --%s", KeyUntil, KeySince)
	}

	kinds := splitList(v.GetStringSlice(KeyKinds))
	if len(kinds) == 0 {
		cfg.Kinds = append([]domain.ItemKind(nil), domain.AllKinds...)
	} else {
		for _, s := range kinds {
			k, err := domain.ParseItemKind(s)
			if err != nil {
				return nil, err
			}
			cfg.Kinds = append(cfg.Kinds, k)
		}
	}

	switch {
	case cfg.MaxItems < 0:
		return nil, fmt.Errorf("--%s must not be negative", KeyMaxItems)
	case cfg.Concurrency < 1:
		return nil, fmt.Errorf("--%s must be at least 1", KeyConcurrency)
	case cfg.Timeout <= 0:
		return nil, fmt.Errorf("--%s must be positive", KeyTimeout)
	case cfg.PerRepoEstimate < 0:
		return nil, fmt.Errorf("--%s must not be negative", KeyPerRepoEstimate)
	case cfg.Format != FormatJSON && cfg.Format != FormatKeyValue:
		return nil, fmt.Errorf("--%s must be %q or %q, got %q", KeyFormat, FormatJSON, FormatKeyValue, cfg.Format)
	case cfg.WatchInterval <= 0:
		return nil, fmt.Errorf("--%s must be positive", KeyWatchInterval)
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDate accepts YYYY/MM/DD or RFC3339. A date-only upper bound covers the whole day.
func ParseDate(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(inputDateLayout, s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither YYYY/MM/DD nor RFC3339", s)
	}
	return t.UTC(), nil
}

// ParseProjectRef parses "<owner>/<number>" for the given owner type.
func ParseProjectRef(ownerType, s string) (domain.ProjectRef, error) {
	owner, num, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return domain.ProjectRef{}, fmt.Errorf("project %q must be <owner>/<number>", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return domain.ProjectRef{}, fmt.Errorf("project number %q is not a number", num)
	}
	ref := domain.ProjectRef{OwnerType: domain.ProjectOwnerType(ownerType), Owner: owner, Number: n}
	if err := ref.Validate(); err != nil {
		return domain.ProjectRef{}, err
	}
	return ref, nil
}

// splitList flattens comma separated entries; environment values arrive as one string.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
