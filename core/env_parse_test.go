package core

import (
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	const key = "BATCHGEN_TEST_STRING"
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"set", "custom", "custom"},
		{"trimmed", "  custom \n", "custom"},
		{"empty", "", "default"},
		{"blank", "   ", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(key, tt.value)
			if got := GetEnvOrDefault(key, "default"); got != tt.want {
				t.Errorf("GetEnvOrDefault() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	const key = "BATCHGEN_TEST_INT"
	tests := []struct {
		value string
		want  int
	}{
		{"42", 42},
		{" 7 ", 7},
		{"-3", -3},
		{"", 10},
		{"ten", 10},
		{"1.5", 10},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(key, tt.value)
			if got := ParseIntEnv(key, 10); got != tt.want {
				t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseBoolEnv(t *testing.T) {
	const key = "BATCHGEN_TEST_BOOL"
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"1", false, true},
		{"false", true, false},
		{"Off", true, false},
		{"0", true, false},
		{"", true, true},
		{"   ", true, true},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(key, tt.value)
			if got := ParseBoolEnv(key, tt.def); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	const key = "BATCHGEN_TEST_SECONDS"
	t.Setenv(key, "90")
	if got := ParseDurationEnv(key, 30); got != 90*time.Second {
		t.Errorf("ParseDurationEnv() = %v, want 90s", got)
	}
	t.Setenv(key, "")
	if got := ParseDurationEnv(key, 30); got != 30*time.Second {
		t.Errorf("ParseDurationEnv() default = %v, want 30s", got)
	}
}

func TestParseMillisEnv(t *testing.T) {
	const key = "BATCHGEN_TEST_MILLIS"
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"250", 250 * time.Millisecond},
		{"0", 0},
		{"-5", 2 * time.Second},
		{"", 2 * time.Second},
		{"soon", 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(key, tt.value)
			if got := ParseMillisEnv(key, 2000); got != tt.want {
				t.Errorf("ParseMillisEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
