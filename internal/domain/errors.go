package domain

import (
	"errors"
	"fmt"

	"artist_ipo/pkg/quant"
)

var (
	// ErrScaleOverflow is returned when a fixed-point intermediate exceeds its integer range.
	ErrScaleOverflow = quant.ErrScaleOverflow

	// ErrCapViolation is returned when a purchase would exceed the configured cap.
	ErrCapViolation = errors.New("cap violation")

	// ErrPurchaseRejected is returned when the sale vault or the market refuses a purchase.
	ErrPurchaseRejected = errors.New("purchase rejected")

	// ErrReleaseRejected is returned when the lockup vault refuses a release.
	ErrReleaseRejected = errors.New("release rejected")

	// ErrIndivisibleNotional is returned when a notional does not split evenly into steps.
	ErrIndivisibleNotional = errors.New("indivisible notional")

	// ErrFundingFailed is returned when a buyer could not be funded.
	ErrFundingFailed = errors.New("funding failed")

	// ErrUnknownContract is returned when an address book has no entry for a name.
	ErrUnknownContract = errors.New("unknown contract")
)

// PhaseError records where in a run an error surfaced.
// Iteration is 1-based; zero means the error is not tied to a loop iteration.
type PhaseError struct {
	Phase     string
	Iteration int
	Err       error
}

func (e *PhaseError) Error() string {
	if e.Iteration > 0 {
		return fmt.Sprintf("%s [iteration %d]: %v", e.Phase, e.Iteration, e.Err)
	}
	return e.Phase + ": " + e.Err.Error()
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewPhaseError wraps err with its phase and iteration.
func NewPhaseError(phase string, iteration int, err error) *PhaseError {
	return &PhaseError{Phase: phase, Iteration: iteration, Err: err}
}

// PhaseOf returns the phase and iteration of the outermost PhaseError in err's chain.
func PhaseOf(err error) (string, int, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, pe.Iteration, true
	}
	return "", 0, false
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
