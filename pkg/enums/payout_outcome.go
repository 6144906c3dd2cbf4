package enums

import "fmt"

// PayoutOutcome is the settlement rail's verdict on a pending withdrawal.
type PayoutOutcome string

const (
	PayoutOutcomeCompleted PayoutOutcome = "completed"
	PayoutOutcomeFailed    PayoutOutcome = "failed"
)

var validPayoutOutcomes = []PayoutOutcome{
	PayoutOutcomeCompleted,
	PayoutOutcomeFailed,
}

// IsValid reports whether the value is known.
func (o PayoutOutcome) IsValid() bool {
	for _, candidate := range validPayoutOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// Status returns the withdrawal status the outcome transitions into.
func (o PayoutOutcome) Status() WithdrawalStatus {
	if o == PayoutOutcomeFailed {
		return WithdrawalStatusFailed
	}
	return WithdrawalStatusCompleted
}

// ParsePayoutOutcome converts raw input into a PayoutOutcome.
func ParsePayoutOutcome(value string) (PayoutOutcome, error) {
	for _, candidate := range validPayoutOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout outcome %q", value)
}
