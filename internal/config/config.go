// Package config handles application configuration from the environment and the policy file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	// CRON_TZ names IANA zones; minimal images ship without a zone database.
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"autoapply/internal/model"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64
	Workers          int

	HH     HH
	OpenAI OpenAI
	Policy Policy
}

// HH holds job-board API credentials and client settings.
type HH struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	UserAgent     string
	BaseURL       string
	RatePerSecond float64
}

// OpenAI holds settings for the cover-letter model.
type OpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Policy is the scheduling policy, read from POLICY_PATH when set.
type Policy struct {
	PageSize             int                `yaml:"page_size"`
	DiscoveryConcurrency int                `yaml:"discovery_concurrency"`
	UserConcurrency      int                `yaml:"user_concurrency"`
	Caps                 map[model.Plan]int `yaml:"caps"`
	FreeWindow           time.Duration      `yaml:"free_window"`
	Timeouts             Timeouts           `yaml:"timeouts"`
	Retry                Retry              `yaml:"retry"`
	StuckAfter           time.Duration      `yaml:"stuck_after"`
	Triggers             map[string]Trigger `yaml:"triggers"`
}

// Timeouts bound each external call made by a worker.
type Timeouts struct {
	Gateway time.Duration `yaml:"gateway"`
	Letter  time.Duration `yaml:"letter"`
}

// Retry configures backoff for transient gateway errors.
type Retry struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
}

// Trigger is the cadence of one cohort run. Schedule is a five-field cron
// expression and may start with CRON_TZ=<zone>.
type Trigger struct {
	Plans    []model.Plan  `yaml:"plans"`
	RunType  model.RunType `yaml:"run_type"`
	Schedule string        `yaml:"schedule"`
}

// DefaultPolicy returns the policy used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		PageSize:             25,
		DiscoveryConcurrency: 4,
		UserConcurrency:      4,
		Caps: map[model.Plan]int{
			model.PlanFree: 3,
			model.PlanPlus: -1,
			model.PlanPro:  -1,
		},
		FreeWindow: 24 * time.Hour,
		Timeouts:   Timeouts{Gateway: 30 * time.Second, Letter: 60 * time.Second},
		Retry:      Retry{Attempts: 3, BaseDelay: time.Second},
		StuckAfter: 30 * time.Minute,
		Triggers: map[string]Trigger{
			"hourly": {
				Plans:    []model.Plan{model.PlanPlus, model.PlanPro},
				RunType:  model.RunPaidHourly,
				Schedule: "0 * * * *",
			},
			"daily": {
				Plans:    []model.Plan{model.PlanFree},
				RunType:  model.RunFreeDaily,
				Schedule: "CRON_TZ=Europe/Moscow 0 12 * * *",
			},
		},
	}
}

// Load reads .env (if present), environment variables and the optional policy file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabasePath:     envOr("DATABASE_PATH", "./data/autoapply.db"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		HH: HH{
			ClientID:     os.Getenv("HH_CLIENT_ID"),
			ClientSecret: os.Getenv("HH_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("HH_REDIRECT_URL"),
			UserAgent:    envOr("HH_USER_AGENT", "autoapply/1.0"),
			BaseURL:      envOr("HH_BASE_URL", "https://api.hh.ru"),
		},
		OpenAI: OpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   envOr("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
	}

	var err error
	if cfg.Workers, err = envInt("WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("WORKERS must be positive, got %d", cfg.Workers)
	}

	rate := envOr("HH_RATE_PER_SECOND", "5")
	cfg.HH.RatePerSecond, err = strconv.ParseFloat(rate, 64)
	if err != nil || cfg.HH.RatePerSecond <= 0 {
		return nil, fmt.Errorf("invalid HH_RATE_PER_SECOND %q", rate)
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
	}

	cfg.Policy = DefaultPolicy()
	if path := os.Getenv("POLICY_PATH"); path != "" {
		if cfg.Policy, err = LoadPolicy(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// LoadPolicy reads a YAML policy file. Keys absent from the file keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML over DefaultPolicy and validates the result.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	// Maps decode by merging into the defaults; triggers are replaced whole.
	var raw struct {
		Triggers map[string]Trigger `yaml:"triggers"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if raw.Triggers != nil {
		p.Triggers = nil
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy for values the scheduler cannot work with.
func (p Policy) Validate() error {
	if p.PageSize < 1 {
		return fmt.Errorf("policy page_size must be positive, got %d", p.PageSize)
	}
	if p.DiscoveryConcurrency < 1 {
		return fmt.Errorf("policy discovery_concurrency must be positive, got %d", p.DiscoveryConcurrency)
	}
	if p.UserConcurrency < 1 {
		return fmt.Errorf("policy user_concurrency must be positive, got %d", p.UserConcurrency)
	}
	for plan, c := range p.Caps {
		switch plan {
		case model.PlanFree, model.PlanPlus, model.PlanPro:
		default:
			return fmt.Errorf("policy caps: unknown plan %q", plan)
		}
		if c < -1 {
			return fmt.Errorf("policy caps.%s must be -1 or greater, got %d", plan, c)
		}
	}
	if p.FreeWindow < 0 {
		return fmt.Errorf("policy free_window must not be negative")
	}
	if p.Timeouts.Gateway <= 0 || p.Timeouts.Letter <= 0 {
		return fmt.Errorf("policy timeouts must be positive")
	}
	if p.Retry.Attempts < 1 {
		return fmt.Errorf("policy retry.attempts must be positive, got %d", p.Retry.Attempts)
	}
	if p.Retry.BaseDelay <= 0 {
		return fmt.Errorf("policy retry.base_delay must be positive")
	}
	if p.StuckAfter <= 0 {
		return fmt.Errorf("policy stuck_after must be positive")
	}
	for name, t := range p.Triggers {
		if len(t.Plans) == 0 {
			return fmt.Errorf("policy triggers.%s.plans is empty", name)
		}
		if !t.RunType.Valid() {
			return fmt.Errorf("policy triggers.%s.run_type %q is unknown", name, t.RunType)
		}
		if _, err := cron.ParseStandard(t.Schedule); err != nil {
			return fmt.Errorf("policy triggers.%s.schedule: %w", name, err)
		}
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
