// Package validation holds the form rules shared by the client stores and the dev content API.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrValidation matches every *Error with errors.Is
var ErrValidation = errors.New("validation failed")

// Error describes a rule violated by one field
type Error struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrValidation) true for field errors
func (e *Error) Is(target error) bool {
	return target == ErrValidation
}

// Limits for user-entered values
const (
	MaxListTitleLength   = 60
	MaxProductNameLength = 80
	MaxQuantity          = 999
	ShareCodeLength      = 8
)

var shareCodePattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// Required validates that a string is not blank
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &Error{Field: field, Code: "required_field_missing", Message: field + " is required"}
	}
	return nil
}

// MaxLength validates that a string has at most maxLen characters
func MaxLength(field, value string, maxLen int) error {
	if utf8.RuneCountInString(value) > maxLen {
		return &Error{
			Field:   field,
			Code:    "max_length_exceeded",
			Message: field + " must be at most " + strconv.Itoa(maxLen) + " characters",
		}
	}
	return nil
}

// MinLength validates that a string has at least minLen characters
func MinLength(field, value string, minLen int) error {
	if utf8.RuneCountInString(value) < minLen {
		return &Error{
			Field:   field,
			Code:    "min_length_not_met",
			Message: field + " must be at least " + strconv.Itoa(minLen) + " characters",
		}
	}
	return nil
}

// Max validates that a number is not greater than max
func Max(field string, value, max int) error {
	if value > max {
		return &Error{Field: field, Code: "max_value_exceeded", Message: field + " must be at most " + strconv.Itoa(max)}
	}
	return nil
}

// Min validates that a number is not less than min
func Min(field string, value, min int) error {
	if value < min {
		return &Error{Field: field, Code: "min_value_not_met", Message: field + " must be at least " + strconv.Itoa(min)}
	}
	return nil
}

// First returns the first non-nil error
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateListTitle checks a list title
func ValidateListTitle(title string) error {
	return First(
		Required("title", title),
		MaxLength("title", strings.TrimSpace(title), MaxListTitleLength),
	)
}

// ValidateProductName checks the name of a custom product
func ValidateProductName(name string) error {
	return First(
		Required("name", name),
		MinLength("name", strings.TrimSpace(name), 2),
		MaxLength("name", strings.TrimSpace(name), MaxProductNameLength),
	)
}

// ValidateQuantity checks the quantity of a product on a list
func ValidateQuantity(quantity int) error {
	return First(
		Min("quantity", quantity, 1),
		Max("quantity", quantity, MaxQuantity),
	)
}

// NormalizeShareCode upper-cases a share code and strips spaces and dashes
func NormalizeShareCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer(" ", "", "-", "").Replace(code)
}

// ValidateShareCode checks a share code after normalization
func ValidateShareCode(code string) error {
	code = NormalizeShareCode(code)
	if err := Required("code", code); err != nil {
		return err
	}
	if len(code) != ShareCodeLength || !shareCodePattern.MatchString(code) {
		return &Error{
			Field:   "code",
			Code:    "invalid_share_code",
			Message: fmt.Sprintf("code must be %d letters or digits", ShareCodeLength),
		}
	}
	return nil
}
