package logger

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"WARN", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfigure(t *testing.T) {
	prev := GetLevel()
	defer SetLevel(prev)

	if err := Configure("debug", 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if GetLevel() != LevelDebug {
		t.Errorf("level = %v, want DEBUG", GetLevel())
	}

	if err := Configure("loud", 0); err == nil {
		t.Error("expected error for unknown level")
	}
	if GetLevel() != LevelDebug {
		t.Errorf("a rejected level must not change the current one, got %v", GetLevel())
	}
}

func TestDomainHelpersCount(t *testing.T) {
	before := PartialReports.Load()
	warnings := TotalWarnings.Load()

	WarnPartialReport("partial report", "report_id", "r1")

	if got := PartialReports.Load() - before; got != 1 {
		t.Errorf("PartialReports increased by %d, want 1", got)
	}
	if got := TotalWarnings.Load() - warnings; got != 1 {
		t.Errorf("TotalWarnings increased by %d, want 1", got)
	}
}
