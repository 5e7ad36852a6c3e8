package domain

import (
	"testing"
	"time"

	"artist_ipo/pkg/quant"
)

func TestVestingSchedule_VestedAt(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	s := VestingSchedule{
		Start:    start,
		Cliff:    30 * day,
		Duration: 180 * day,
		Total:    quant.Tokens(180),
	}

	tests := []struct {
		name string
		at   time.Time
		want quant.Wei
	}{
		{"at start", start, quant.Wei{}},
		{"one second before cliff", s.CliffEnds().Add(-time.Second), quant.Wei{}},
		{"at cliff", s.CliffEnds(), quant.Wei{}},
		{"ten days after cliff", s.CliffEnds().Add(10 * day), quant.Tokens(10)},
		{"at end", s.Ends(), quant.Tokens(180)},
		{"long after end", s.Ends().Add(365 * day), quant.Tokens(180)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.VestedAt(tt.at); !got.Eq(tt.want) {
				t.Errorf("VestedAt = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestVestingSchedule_Releasable(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := VestingSchedule{Start: start, Cliff: time.Hour, Duration: 10 * time.Hour, Total: quant.Tokens(10)}

	at := s.CliffEnds().Add(4 * time.Hour)
	if got := s.Releasable(at); !got.Eq(quant.Tokens(4)) {
		t.Fatalf("Releasable = %s, want 4 tokens", got)
	}

	s.Released = quant.Tokens(4)
	if got := s.Releasable(at); !got.IsZero() {
		t.Errorf("Releasable after release = %s, want 0", got)
	}
	if got := s.Releasable(at.Add(time.Hour)); !got.Eq(quant.Tokens(1)) {
		t.Errorf("Releasable an hour later = %s, want 1 token", got)
	}
}
