package orchestrator

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"A cat on a sofa", "A_cat_on_a_sofa"},
		{"  Hello, world!  ", "Hello_world"},
		{"dash-kept and under_score", "dash-kept_and_under_score"},
		{"çay bahçesi, güneşli", "çay_bahçesi_güneşli"},
		{"a  _ b", "a_b"},
		{"!!!", "prompt"},
		{"one two three four five six seven eight nine", "one_two_three_four_five_six_seven_eight_"},
	}
	for _, tt := range tests {
		if got := Slug(tt.prompt); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 10, 19, 14, 3, 9, 0, time.UTC)
	if got, want := FileName(0, "A red fox", at, 2), "1_A_red_fox_20261019_140309_3"; got != want {
		t.Errorf("FileName() = %q, want %q", got, want)
	}
}

type shortErr struct{}

func (shortErr) Error() string { return "whisk: generate: response had no image panels" }
func (shortErr) ShortReason() string { return "No panels" }

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"short text", errors.New("HTTP 500"), "HTTP 500"},
		{"long text truncated", errors.New("context deadline exceeded (Client.Timeout exceeded)"), "context deadline exceeded (Cli"},
		{"short reasoner", shortErr{}, "No panels"},
		{"wrapped short reasoner", fmt.Errorf("row 1: %w", shortErr{}), "No panels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReasonOf(tt.err); got != tt.want {
				t.Errorf("ReasonOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSettings_ModelFor(t *testing.T) {
	s := Settings{Model: "imagen-3.0-generate-001", SingleRefModel: "GEM_PIX", MultiRefModel: "R2I"}
	for refs, want := range map[int]string{0: s.Model, 1: "GEM_PIX", 2: "R2I", 5: "R2I"} {
		if got := s.ModelFor(refs); got != want {
			t.Errorf("ModelFor(%d) = %q, want %q", refs, got, want)
		}
	}
}

func TestRowProgress_Status(t *testing.T) {
	tests := []struct {
		p    RowProgress
		want RowStatus
	}{
		{RowProgress{Total: 2}, RowPending},
		{RowProgress{Total: 2, Started: 1}, RowInProgress},
		{RowProgress{Total: 2, Started: 2, Succeeded: 2}, RowDone},
		{RowProgress{Total: 2, Started: 2, Succeeded: 1, Failed: 1}, RowError},
		{RowProgress{Total: 2, Started: 2, Succeeded: 1}, RowInProgress},
	}
	for _, tt := range tests {
		if got := tt.p.Status(); got != tt.want {
			t.Errorf("Status(%+v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
