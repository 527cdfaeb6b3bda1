package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("ANALYSIS_TIME_WINDOW", "30s"); err != nil {
		t.Fatalf("Failed to set ANALYSIS_TIME_WINDOW: %v", err)
	}
	if err := os.Setenv("ANALYSIS_DEGRADED_MODE", "true"); err != nil {
		t.Fatalf("Failed to set ANALYSIS_DEGRADED_MODE: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("ANALYSIS_TIME_WINDOW")
		_ = os.Unsetenv("ANALYSIS_DEGRADED_MODE")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Analysis.TimeWindow != 30*time.Second {
		t.Errorf("Analysis.TimeWindow = %v, want %v", cfg.Analysis.TimeWindow, 30*time.Second)
	}

	if !cfg.Analysis.Degraded {
		t.Errorf("Analysis.Degraded = false, want true")
	}
}

func TestEffectiveConcurrency(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		degraded    bool
		want        int
	}{
		{
			name:        "normal mode keeps the configured width",
			concurrency: 5,
			degraded:    false,
			want:        5,
		},
		{
			name:        "degraded mode halves the width",
			concurrency: 6,
			degraded:    true,
			want:        3,
		},
		{
			name:        "odd widths round down",
			concurrency: 5,
			degraded:    true,
			want:        2,
		},
		{
			name:        "degraded mode never goes below one",
			concurrency: 1,
			degraded:    true,
			want:        1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AnalysisConfig{Concurrency: tt.concurrency, Degraded: tt.degraded}
			if got := a.EffectiveConcurrency(); got != tt.want {
				t.Errorf("EffectiveConcurrency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectiveBatchDelay(t *testing.T) {
	tests := []struct {
		name     string
		delay    time.Duration
		degraded bool
		want     time.Duration
	}{
		{
			name:     "normal mode keeps the configured delay",
			delay:    500 * time.Millisecond,
			degraded: false,
			want:     500 * time.Millisecond,
		},
		{
			name:     "degraded mode doubles the delay",
			delay:    500 * time.Millisecond,
			degraded: true,
			want:     time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AnalysisConfig{BatchDelay: tt.delay, Degraded: tt.degraded}
			if got := a.EffectiveBatchDelay(); got != tt.want {
				t.Errorf("EffectiveBatchDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns boolean when valid",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_BOOL_INVALID",
			defaultValue: false,
			envValue:     "maybe",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOTSET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsBool() = %v, want %v", got, tt.want)
			}
		})
	}
}
