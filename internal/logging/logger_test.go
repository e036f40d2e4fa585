package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/klauern/calmirror/internal/logging"
)

func TestNew(t *testing.T) {
	tests := map[string]struct {
		opts logging.Options
		want []string
		skip []string
	}{
		"text at info": {
			opts: logging.Options{Level: logging.LevelInfo},
			want: []string{"rule synced", "rule=work_to_personal", "count=3"},
			skip: []string{"mirror lookup"},
		},
		"warn hides info": {
			opts: logging.Options{Level: logging.LevelWarn},
			want: []string{"feed degraded"},
			skip: []string{"rule synced", "mirror lookup"},
		},
		"debug shows all": {
			opts: logging.Options{Level: logging.LevelDebug},
			want: []string{"mirror lookup", "rule synced", "feed degraded"},
		},
		"source location": {
			opts: logging.Options{Level: logging.LevelInfo, AddSource: true},
			want: []string{"source=", "logger_test.go"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf
			logger := logging.New(tt.opts)

			logger.Debug("mirror lookup", logging.Event("evt1"))
			logger.Info("rule synced", logging.Rule("work_to_personal"), logging.Count(3))
			logger.Warn("feed degraded", logging.Calendar("team.offsites"))

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, s := range tt.skip {
				if strings.Contains(out, s) {
					t.Errorf("output should not contain %q:\n%s", s, out)
				}
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Level: logging.LevelInfo, Output: &buf, JSON: true})

	logger.Error("apply failed",
		logging.Target("personal.main"),
		logging.Account("personal"),
		logging.Err(errors.New("quota exceeded")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	want := map[string]string{
		"msg":     "apply failed",
		"target":  "personal.main",
		"account": "personal",
		"error":   "quota exceeded",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestErr_Nil(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Level: logging.LevelInfo, Output: &buf})

	logger.Info("fetched", logging.Err(nil))

	if strings.Contains(buf.String(), "error") {
		t.Errorf("nil error should add no attribute: %s", buf.String())
	}
}

func TestSetDefault(t *testing.T) {
	prev := logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	var buf bytes.Buffer
	logging.SetDefault(logging.New(logging.Options{Level: logging.LevelInfo, Output: &buf}))

	logging.Default().Info("via package default")
	slog.Info("via slog default")

	for _, w := range []string{"via package default", "via slog default"} {
		if !strings.Contains(buf.String(), w) {
			t.Errorf("output missing %q", w)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		"debug":      {in: "debug", want: logging.LevelDebug},
		"upper info": {in: "INFO", want: logging.LevelInfo},
		"empty":      {in: "", want: logging.LevelInfo},
		"warning":    {in: "warning", want: logging.LevelWarn},
		"error":      {in: " error ", want: logging.LevelError},
		"unknown":    {in: "chatty", want: logging.LevelInfo, wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTimer(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Level: logging.LevelDebug, Output: &buf})

	logging.Timer(logger, "sync_rule")()

	out := buf.String()
	for _, w := range []string{"operation=sync_rule", "duration="} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q: %s", w, out)
		}
	}
}

func TestDiscard(t *testing.T) {
	if logging.Discard().Enabled(context.Background(), logging.LevelError) {
		t.Error("discard logger should drop error level")
	}
}
