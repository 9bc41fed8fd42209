package enums

import "fmt"

// CheckoutState is the lifecycle of a single checkout attempt.
type CheckoutState string

const (
	CheckoutCollecting CheckoutState = "collecting"
	CheckoutSettled    CheckoutState = "settled"
	CheckoutFinalized  CheckoutState = "finalized"
	CheckoutAborted    CheckoutState = "aborted"
)

var validCheckoutStates = []CheckoutState{
	CheckoutCollecting,
	CheckoutSettled,
	CheckoutFinalized,
	CheckoutAborted,
}

// String implements fmt.Stringer.
func (s CheckoutState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutState.
func (s CheckoutState) IsValid() bool {
	for _, candidate := range validCheckoutStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutFinalized || s == CheckoutAborted
}

// CanTransitionTo encodes collecting -> settled -> finalized and collecting -> aborted.
func (s CheckoutState) CanTransitionTo(next CheckoutState) bool {
	switch s {
	case CheckoutCollecting:
		return next == CheckoutSettled || next == CheckoutAborted
	case CheckoutSettled:
		return next == CheckoutFinalized
	}
	return false
}

// ParseCheckoutState converts raw input into a CheckoutState.
func ParseCheckoutState(value string) (CheckoutState, error) {
	for _, candidate := range validCheckoutStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout state %q", value)
}
