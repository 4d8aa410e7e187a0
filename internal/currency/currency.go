// Package currency holds the closed set of selectable currency codes.
package currency

import (
	"errors"
	"slices"
	"strings"
)

// Code is a three-letter ISO-4217-like currency code.
type Code string

// Default is the code used when no selection has been persisted yet.
const Default Code = "USD"

// ErrInvalidCodeFormat indicates the value is not a three-letter code.
var ErrInvalidCodeFormat = errors.New("invalid currency code format")

// ErrUnsupportedCurrency is returned when a code is not in the supported list.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// String implements fmt.Stringer.
func (c Code) String() string { return string(c) }

// IsValidCodeFormat checks whether a string is a 3-letter currency code (case-insensitive).
func IsValidCodeFormat(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range strings.ToUpper(code) {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// Parse normalizes s to upper case and checks it against the supported list.
func Parse(s string) (Code, error) {
	s = strings.TrimSpace(s)
	if !IsValidCodeFormat(s) {
		return "", ErrInvalidCodeFormat
	}
	code := Code(strings.ToUpper(s))
	if _, ok := supportedSet[code]; !ok {
		return "", ErrUnsupportedCurrency
	}
	return code, nil
}

// All returns a copy of the supported codes in display order.
func All() []Code {
	return slices.Clone(supportedCodes)
}

// Validator defines the interface for currency validation.
type Validator interface {
	Validate(code Code) error
	IsSupported(code Code) bool
}

type validator struct{}

// NewValidator creates a validator backed by the supported list.
func NewValidator() Validator {
	return &validator{}
}

// Validate returns ErrUnsupportedCurrency for codes outside the list.
func (v *validator) Validate(code Code) error {
	if v.IsSupported(code) {
		return nil
	}
	return ErrUnsupportedCurrency
}

// IsSupported reports whether code is in the list (case-insensitive).
func (v *validator) IsSupported(code Code) bool {
	_, ok := supportedSet[Code(strings.ToUpper(string(code)))]
	return ok
}
