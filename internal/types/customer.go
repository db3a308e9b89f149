package types

import (
	"fmt"
	"net/mail"
	"strings"

	ierr "github.com/usagebilling/core/internal/ierr"
)

// IsValidEmail reports whether s parses as an RFC 5322 address.
func IsValidEmail(s string) bool {
	_, err := mail.ParseAddress(s)
	return err == nil
}

// Common validation rules for IDs: cannot contain invalid characters % or space.
func validateID(id string, idType string) error {
	invalidChars := []string{"%", " "}
	for _, char := range invalidChars {
		if strings.Contains(id, char) {
			return ierr.NewError(fmt.Sprintf("invalid %s", idType)).
				WithHint(fmt.Sprintf("Please provide a valid %s - cannot contain: %s", idType, char)).
				Mark(ierr.ErrValidation)
		}
	}

	return nil
}

// ValidateCustomerID validates the customer id
func ValidateCustomerID(id string) error {
	if strings.HasPrefix(id, "_") || strings.HasSuffix(id, "_") {
		return ierr.NewError("invalid customer id").
			WithHint("Please provide a valid customer id").
			Mark(ierr.ErrValidation)
	}

	return validateID(id, "customer id")
}
