package domain

import (
	"errors"
	"fmt"
	"testing"

	"artist_ipo/pkg/quant"
)

func TestPhaseError(t *testing.T) {
	base := fmt.Errorf("%w: vault paused", ErrPurchaseRejected)

	t.Run("with iteration", func(t *testing.T) {
		err := NewPhaseError("sale", 4, base)
		want := "sale [iteration 4]: purchase rejected: vault paused"
		if err.Error() != want {
			t.Errorf("Error message = %q, want %q", err.Error(), want)
		}
		if !errors.Is(err, ErrPurchaseRejected) {
			t.Error("Expected error to wrap ErrPurchaseRejected")
		}
	})

	t.Run("without iteration", func(t *testing.T) {
		err := NewPhaseError("vesting", 0, ErrReleaseRejected)
		if err.Error() != "vesting: release rejected" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("PhaseOf through wrapping", func(t *testing.T) {
		err := fmt.Errorf("run failed: %w", NewPhaseError("impact", 7, ErrPurchaseRejected))
		phase, it, ok := PhaseOf(err)
		if !ok || phase != "impact" || it != 7 {
			t.Errorf("PhaseOf = (%q, %d, %v)", phase, it, ok)
		}
		if _, _, ok := PhaseOf(errors.New("plain")); ok {
			t.Error("PhaseOf should not match a plain error")
		}
	})
}

func TestScaleOverflowIsShared(t *testing.T) {
	_, err := quant.ToSettlementCost(quant.Tokens(1), -1)
	if errors.Is(err, ErrScaleOverflow) {
		t.Error("negative price is not an overflow")
	}
	if ErrScaleOverflow != quant.ErrScaleOverflow {
		t.Error("domain and quant must share the overflow sentinel")
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("must be positive")
	err := &ConfigError{Field: "impact.steps", Err: baseErr}

	expected := "config error [impact.steps]: must be positive"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, baseErr) {
		t.Error("Expected ConfigError to unwrap")
	}
}
