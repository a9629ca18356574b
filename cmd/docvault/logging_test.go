package main

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{raw: "", want: slog.LevelInfo},
		{raw: "debug", want: slog.LevelDebug},
		{raw: " INFO ", want: slog.LevelInfo},
		{raw: "warn", want: slog.LevelWarn},
		{raw: "Warning", want: slog.LevelWarn},
		{raw: "error", want: slog.LevelError},
		{raw: "-4", want: slog.LevelDebug},
		{raw: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: parse level: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("%q: expected %v, got %v", tt.raw, tt.want, got)
		}
	}
}

func TestSelectedLogLevelPrecedence(t *testing.T) {
	tests := []struct {
		flag, env, config string
		wantRaw, wantFrom string
	}{
		{"debug", "error", "warn", "debug", "flag"},
		{"", "warn", "info", "warn", "env"},
		{"  ", "", "error", "error", "config"},
		{"", "", "", "", "default"},
	}
	for _, tt := range tests {
		raw, source := selectedLogLevel(tt.flag, tt.env, tt.config)
		if raw != tt.wantRaw || source != tt.wantFrom {
			t.Fatalf("selectedLogLevel(%q, %q, %q) = %q/%q, want %q/%q",
				tt.flag, tt.env, tt.config, raw, source, tt.wantRaw, tt.wantFrom)
		}
	}
}

func TestConfigureLoggerForCLI(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		flag        string
		config      string
		wantErr     bool
		wantWarning string
	}{
		{name: "flag overrides invalid env", env: "invalid", flag: "debug", config: "info"},
		{name: "invalid flag is an error", flag: "verbose", config: "info", wantErr: true},
		{name: "invalid env falls back", env: "verbose", config: "info", wantWarning: "invalid DOCVAULT_LOG_LEVEL"},
		{name: "invalid config falls back", config: "verbose", wantWarning: "invalid log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(logLevelEnvKey, tt.env)
			warning, err := configureLoggerForCLI(tt.flag, tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("configure logger: %v", err)
			}
			if tt.wantWarning == "" {
				if warning != "" {
					t.Fatalf("expected no warning, got %q", warning)
				}
				return
			}
			if !strings.Contains(warning, tt.wantWarning) || !strings.Contains(warning, "defaulting to info") {
				t.Fatalf("expected fallback warning about %q, got %q", tt.wantWarning, warning)
			}
			ctx := context.Background()
			if !slog.Default().Enabled(ctx, slog.LevelInfo) || slog.Default().Enabled(ctx, slog.LevelDebug) {
				t.Fatal("expected info level after fallback")
			}
		})
	}
}

func TestDropTimeUnderJournal(t *testing.T) {
	timeAttr := slog.Time(slog.TimeKey, time.Now())

	if got := dropTimeUnderJournal(true)(nil, timeAttr); got.Key != "" {
		t.Fatalf("expected time dropped under journald, got %v", got)
	}
	if got := dropTimeUnderJournal(false)(nil, timeAttr); got.Key != slog.TimeKey {
		t.Fatalf("expected time kept on a terminal, got %v", got)
	}
	if got := dropTimeUnderJournal(true)([]string{"req"}, timeAttr); got.Key != slog.TimeKey {
		t.Fatalf("expected grouped time attribute kept, got %v", got)
	}
}
