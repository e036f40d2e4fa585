package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testYAML = `
accounts:
  - name: work
    email: work@example.com
    calendars:
      - label: primary
        calendar_id: work@example.com
        name: Work
      - label: team
        calendar_id: team@example.com
  - name: personal
    email: me@example.com
    calendars:
      - label: primary
        calendar_id: me@example.com
        name: Personal
  - name: feeds
    auth_type: ics
    calendars:
      - label: holidays
        calendar_id: https://example.com/h.ics
sync_rules:
  - id: work_to_personal
    source_calendar: work.primary
    destination:
      - calendar: personal.primary
        privacy_mode: private
        show_time: true
      - calendar: work.team
        enabled: false
default_identifier: testinst
sync:
  window_past_days: 7
  window_future_days: 14
`

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if cfg.Identifier() != "calmirror" {
		t.Errorf("Identifier() = %q, want calmirror", cfg.Identifier())
	}
	if cfg.Sync.WindowPastDays != 30 || cfg.Sync.WindowFutureDays != 30 {
		t.Errorf("window = %d/%d, want 30/30", cfg.Sync.WindowPastDays, cfg.Sync.WindowFutureDays)
	}
	if cfg.Output.Format != "table" {
		t.Errorf("expected Output.Format to be 'table', got %q", cfg.Output.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestParse_YAML(t *testing.T) {
	cfg, err := Parse([]byte(testYAML), false)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(cfg.Accounts) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(cfg.Accounts))
	}
	if cfg.Identifier() != "testinst" {
		t.Errorf("Identifier() = %q", cfg.Identifier())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default lost, got %q", cfg.LogLevel)
	}

	past, future := cfg.Window()
	if past != 7*24*time.Hour || future != 14*24*time.Hour {
		t.Errorf("Window() = %v, %v", past, future)
	}

	rule := cfg.Rule("work_to_personal")
	if rule == nil {
		t.Fatal("Rule(work_to_personal) = nil")
	}
	targets := rule.EnabledTargets()
	if len(targets) != 1 || targets[0].Calendar != "personal.primary" {
		t.Errorf("EnabledTargets() = %+v", targets)
	}
	if !targets[0].ShowTime {
		t.Error("show_time not decoded")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_identifier = "tomlinst"

[[accounts]]
name = "a"
email = "a@example.com"

  [[accounts.calendars]]
  label = "one"
  calendar_id = "one@example.com"

  [[accounts.calendars]]
  label = "two"
  calendar_id = "two@example.com"

[[sync_rules]]
id = "r"
source_calendar = "a.one"

  [[sync_rules.destination]]
  calendar = "a.two"
  privacy_mode = "private"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Identifier() != "tomlinst" {
		t.Errorf("Identifier() = %q", cfg.Identifier())
	}
	if _, cal := cfg.CalendarByLabel("a.two"); cal == nil || cal.CalendarID != "two@example.com" {
		t.Errorf("CalendarByLabel(a.two) = %+v", cal)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("accounts: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse([]byte(testYAML), false)
			if err != nil {
				t.Fatal(err)
			}
			path := filepath.Join(t.TempDir(), "nested", name)
			if err := cfg.SaveToPath(path); err != nil {
				t.Fatalf("SaveToPath() error = %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0o600 {
				t.Errorf("perm = %o, want 600", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(loaded.SyncRules) != 1 || len(loaded.SyncRules[0].Destination) != 2 {
				t.Fatalf("rules not preserved: %+v", loaded.SyncRules)
			}
			if loaded.SyncRules[0].Destination[1].IsEnabled() {
				t.Error("enabled: false not preserved")
			}
		})
	}
}

func TestApplyEnvironment(t *testing.T) {
	t.Setenv("CALMIRROR_IDENTIFIER", "envinst")
	t.Setenv("CALMIRROR_LOG_LEVEL", "debug")
	t.Setenv("CALMIRROR_SCHEDULE", "0 * * * *")
	t.Setenv("CALMIRROR_METRICS_LISTEN", "127.0.0.1:9999")
	t.Setenv("CALMIRROR_WINDOW_PAST_DAYS", "3")
	t.Setenv("CALMIRROR_WINDOW_FUTURE_DAYS", "bogus")

	cfg, err := Parse([]byte(testYAML), false)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Identifier() != "envinst" {
		t.Errorf("Identifier() = %q", cfg.Identifier())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Schedule != "0 * * * *" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9999" {
		t.Errorf("Metrics.Listen = %q", cfg.Metrics.Listen)
	}
	if cfg.Sync.WindowPastDays != 3 {
		t.Errorf("WindowPastDays = %d", cfg.Sync.WindowPastDays)
	}
	if cfg.Sync.WindowFutureDays != 14 {
		t.Errorf("invalid env value should be ignored, got %d", cfg.Sync.WindowFutureDays)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	t.Setenv("CALMIRROR_CONFIG", "")
	if got := ResolvePath(""); got != filepath.Join("/xdg", "calmirror", "config.yaml") {
		t.Errorf("default ResolvePath() = %q", got)
	}

	t.Setenv("CALMIRROR_CONFIG", "/env/config.yaml")
	if got := ResolvePath(""); got != "/env/config.yaml" {
		t.Errorf("env ResolvePath() = %q", got)
	}
	if got := ResolvePath("/flag/c.yaml"); got != "/flag/c.yaml" {
		t.Errorf("flag ResolvePath() = %q", got)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := map[string]struct {
		mutate    func(*Config)
		wantField string
	}{
		"missing email": {
			mutate:    func(c *Config) { c.Accounts[0].Email = "" },
			wantField: "accounts[0].email",
		},
		"duplicate account": {
			mutate:    func(c *Config) { c.Accounts[1].Name = "work" },
			wantField: "accounts[1].name",
		},
		"unknown auth type": {
			mutate:    func(c *Config) { c.Accounts[0].AuthType = "kerberos" },
			wantField: "accounts[0].auth_type",
		},
		"missing calendar id": {
			mutate:    func(c *Config) { c.Accounts[0].Calendars[0].CalendarID = "" },
			wantField: "accounts[0].calendars[0].calendar_id",
		},
		"unknown source": {
			mutate:    func(c *Config) { c.SyncRules[0].SourceCalendar = "work.nope" },
			wantField: "sync_rules[0].source_calendar",
		},
		"unknown destination": {
			mutate:    func(c *Config) { c.SyncRules[0].Destination[0].Calendar = "nobody.primary" },
			wantField: "sync_rules[0].destination[0].calendar",
		},
		"self sync": {
			mutate:    func(c *Config) { c.SyncRules[0].Destination[0].Calendar = "work.primary" },
			wantField: "sync_rules[0].destination[0].calendar",
		},
		"ics destination": {
			mutate:    func(c *Config) { c.SyncRules[0].Destination[0].Calendar = "feeds.holidays" },
			wantField: "sync_rules[0].destination[0].calendar",
		},
		"duplicate rule": {
			mutate: func(c *Config) {
				c.SyncRules = append(c.SyncRules, c.SyncRules[0])
			},
			wantField: "sync_rules[1].id",
		},
		"bad identifier": {
			mutate:    func(c *Config) { c.DefaultIdentifier = "a=b" },
			wantField: "default_identifier",
		},
		"bad schedule": {
			mutate:    func(c *Config) { c.Schedule = "every tuesday" },
			wantField: "schedule",
		},
		"bad log level": {
			mutate:    func(c *Config) { c.LogLevel = "chatty" },
			wantField: "log_level",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := Parse([]byte(testYAML), false)
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			var errs Errors
			if !errors.As(err, &errs) {
				t.Fatalf("Validate() = %v, want Errors", err)
			}
			found := false
			for _, fe := range errs {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %q in %v", tt.wantField, errs)
			}

			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Error("errors.As(*FieldError) failed")
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	cfg, err := Parse([]byte(testYAML), false)
	if err != nil {
		t.Fatal(err)
	}
	if w := cfg.Warnings(); len(w) != 0 {
		t.Errorf("unexpected warnings: %v", w)
	}

	cfg.SyncRules[0].Destination[0].PrivacyMode = "secret"
	w := cfg.Warnings()
	if len(w) != 1 || !strings.Contains(w[0], "secret") {
		t.Errorf("Warnings() = %v", w)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unknown privacy mode must not fail validation: %v", err)
	}
}

func TestLookups(t *testing.T) {
	cfg, err := Parse([]byte(testYAML), false)
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]struct {
		ref     string
		wantID  string
		wantNil bool
	}{
		"resolves":        {ref: "work.team", wantID: "team@example.com"},
		"unknown account": {ref: "nobody.primary", wantNil: true},
		"unknown label":   {ref: "work.nope", wantNil: true},
		"no dot":          {ref: "work", wantNil: true},
		"empty label":     {ref: "work.", wantNil: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			acct, cal := cfg.CalendarByLabel(tt.ref)
			if tt.wantNil {
				if acct != nil || cal != nil {
					t.Errorf("CalendarByLabel(%q) = %v, %v; want nil", tt.ref, acct, cal)
				}
				return
			}
			if cal == nil || cal.CalendarID != tt.wantID {
				t.Errorf("CalendarByLabel(%q) = %+v, want %s", tt.ref, cal, tt.wantID)
			}
		})
	}

	if acct, _ := cfg.CalendarByID("me@example.com"); acct == nil || acct.Name != "personal" {
		t.Errorf("CalendarByID() account = %+v", acct)
	}
	if cfg.Rule("missing") != nil {
		t.Error("Rule(missing) != nil")
	}
	if got := cfg.RuleTags("r1").RuleKey(); got != "testinst_r1" {
		t.Errorf("RuleTags().RuleKey() = %q", got)
	}
	if len(cfg.EnabledRules()) != 1 {
		t.Errorf("EnabledRules() = %d", len(cfg.EnabledRules()))
	}
	if !cfg.Account("feeds").IsICS() {
		t.Error("feeds account should be ICS")
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Parse([]byte(ExampleConfig()), false)
	if err != nil {
		t.Fatalf("ExampleConfig() does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("ExampleConfig() does not validate: %v", err)
	}
	if len(cfg.SyncRules) == 0 {
		t.Error("ExampleConfig() has no rules")
	}
}
