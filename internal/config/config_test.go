package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"autoapply/internal/model"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "ALLOWED_USERS", "WORKERS", "POLICY_PATH",
	"HH_CLIENT_ID", "HH_CLIENT_SECRET", "HH_REDIRECT_URL", "HH_USER_AGENT", "HH_BASE_URL", "HH_RATE_PER_SECOND",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
}

func defaults() *Config {
	return &Config{
		DatabasePath: "./data/autoapply.db",
		LogLevel:     "info",
		Workers:      4,
		HH: HH{
			UserAgent:     "autoapply/1.0",
			BaseURL:       "https://api.hh.ru",
			RatePerSecond: 5,
		},
		OpenAI: OpenAI{Model: "gpt-4o-mini"},
		Policy: DefaultPolicy(),
	}
}

func TestLoad(t *testing.T) {
	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(policyPath, []byte("page_size: 50\ncaps:\n  plus: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: defaults,
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"DATABASE_PATH":      "/tmp/app.db",
				"LOG_LEVEL":          "debug",
				"ALLOWED_USERS":      "111,222,333",
				"WORKERS":            "8",
				"HH_CLIENT_ID":       "cid",
				"HH_CLIENT_SECRET":   "secret",
				"HH_RATE_PER_SECOND": "2.5",
				"OPENAI_API_KEY":     "sk",
				"OPENAI_MODEL":       "gpt-4o",
				"POLICY_PATH":        policyPath,
			},
			want: func() *Config {
				c := defaults()
				c.TelegramBotToken = "tok"
				c.DatabasePath = "/tmp/app.db"
				c.LogLevel = "debug"
				c.AllowedUsers = []int64{111, 222, 333}
				c.Workers = 8
				c.HH.ClientID = "cid"
				c.HH.ClientSecret = "secret"
				c.HH.RatePerSecond = 2.5
				c.OpenAI.APIKey = "sk"
				c.OpenAI.Model = "gpt-4o"
				c.Policy.PageSize = 50
				c.Policy.Caps[model.PlanPlus] = 10
				return c
			},
		},
		{
			name: "allowed users with spaces",
			env:  map[string]string{"ALLOWED_USERS": " 10 , 20 , "},
			want: func() *Config {
				c := defaults()
				c.AllowedUsers = []int64{10, 20}
				return c
			},
		},
		{
			name:    "invalid user id",
			env:     map[string]string{"ALLOWED_USERS": "123,abc"},
			wantErr: true,
		},
		{
			name:    "invalid workers",
			env:     map[string]string{"WORKERS": "0"},
			wantErr: true,
		},
		{
			name:    "invalid rate",
			env:     map[string]string{"HH_RATE_PER_SECOND": "fast"},
			wantErr: true,
		},
		{
			name:    "missing policy file",
			env:     map[string]string{"POLICY_PATH": filepath.Join(t.TempDir(), "nope.yaml")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, p Policy)
		wantErr bool
	}{
		{
			name: "empty keeps defaults",
			yaml: "",
			check: func(t *testing.T, p Policy) {
				if diff := cmp.Diff(DefaultPolicy(), p); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name: "durations and caps",
			yaml: "free_window: 12h\nstuck_after: 5m\ncaps:\n  free: 5\ntimeouts:\n  letter: 90s\n",
			check: func(t *testing.T, p Policy) {
				if p.FreeWindow != 12*time.Hour || p.StuckAfter != 5*time.Minute {
					t.Errorf("durations = %v/%v", p.FreeWindow, p.StuckAfter)
				}
				if p.Caps[model.PlanFree] != 5 || p.Caps[model.PlanPro] != -1 {
					t.Errorf("caps = %v", p.Caps)
				}
				if p.Timeouts.Letter != 90*time.Second || p.Timeouts.Gateway != 30*time.Second {
					t.Errorf("timeouts = %+v", p.Timeouts)
				}
			},
		},
		{
			name: "triggers replace defaults",
			yaml: "triggers:\n  nightly:\n    plans: [free]\n    run_type: free_daily\n    schedule: \"CRON_TZ=UTC 0 3 * * *\"\n",
			check: func(t *testing.T, p Policy) {
				want := map[string]Trigger{
					"nightly": {Plans: []model.Plan{model.PlanFree}, RunType: model.RunFreeDaily, Schedule: "CRON_TZ=UTC 0 3 * * *"},
				}
				if diff := cmp.Diff(want, p.Triggers); diff != "" {
					t.Errorf("triggers mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{name: "bad yaml", yaml: "page_size: [", wantErr: true},
		{name: "zero page size", yaml: "page_size: 0", wantErr: true},
		{name: "unknown plan cap", yaml: "caps:\n  gold: 1\n", wantErr: true},
		{name: "cap below -1", yaml: "caps:\n  free: -2\n", wantErr: true},
		{name: "zero retry attempts", yaml: "retry:\n  attempts: 0\n", wantErr: true},
		{
			name:    "trigger without schedule",
			yaml:    "triggers:\n  x:\n    plans: [pro]\n    run_type: paid_hourly\n",
			wantErr: true,
		},
		{
			name:    "trigger with unknown zone",
			yaml:    "triggers:\n  x:\n    plans: [pro]\n    run_type: paid_hourly\n    schedule: \"CRON_TZ=Mars/Olympus 0 * * * *\"\n",
			wantErr: true,
		},
		{
			name:    "trigger with unknown run type",
			yaml:    "triggers:\n  x:\n    plans: [pro]\n    run_type: weekly\n    schedule: \"0 * * * *\"\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePolicy([]byte(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
