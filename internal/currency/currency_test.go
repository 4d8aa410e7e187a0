package currency

import (
	"errors"
	"testing"
)

func TestIsValidCodeFormat(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"USD", true},
		{"mxn", true},
		{"US", false},
		{"USDA", false},
		{"US1", false},
		{"US$", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			if got := IsValidCodeFormat(tc.code); got != tc.valid {
				t.Errorf("IsValidCodeFormat(%q) = %v, want %v", tc.code, got, tc.valid)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Code
		wantErr error
	}{
		{"USD", "USD", nil},
		{" eur ", "EUR", nil},
		{"zwl", "ZWL", nil},
		{"MXN", "", ErrUnsupportedCurrency},
		{"ABC", "", ErrUnsupportedCurrency},
		{"EURO", "", ErrInvalidCodeFormat},
		{"", "", ErrInvalidCodeFormat},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Parse(%q) error = %v, want %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	if err := v.Validate("usd"); err != nil {
		t.Errorf("expected usd to be supported, got %v", err)
	}
	if err := v.Validate("XYZ"); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Errorf("expected ErrUnsupportedCurrency, got %v", err)
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	codes := All()
	if len(codes) != len(supportedCodes) {
		t.Fatalf("expected %d codes, got %d", len(supportedCodes), len(codes))
	}
	codes[0] = "XXX"
	if supportedCodes[0] == "XXX" {
		t.Fatal("All must not expose the backing slice")
	}
	if _, ok := supportedSet[Default]; !ok {
		t.Fatalf("default %s must be supported", Default)
	}
}
