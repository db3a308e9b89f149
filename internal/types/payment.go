package types

import (
	"fmt"

	"github.com/samber/lo"
)

// PaymentAttemptStatus is the outcome of one PaymentCollector attempt against
// the provider.
type PaymentAttemptStatus string

const (
	PaymentAttemptStatusSucceeded PaymentAttemptStatus = "succeeded"
	PaymentAttemptStatusFailed    PaymentAttemptStatus = "failed"
)

func (s PaymentAttemptStatus) String() string {
	return string(s)
}

func (s PaymentAttemptStatus) Validate() error {
	allowed := []PaymentAttemptStatus{
		PaymentAttemptStatusSucceeded,
		PaymentAttemptStatusFailed,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid payment attempt status: %s", s)
	}
	return nil
}
