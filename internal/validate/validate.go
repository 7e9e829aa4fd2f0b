package validate

import (
	"regexp"
	"strings"
	"unicode"

	"knot-backend/internal/api"
)

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneStrip        = regexp.MustCompile(`[\s\-().]`)
	phonePattern      = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)
	namePattern       = regexp.MustCompile(`^[a-zA-Z\s'.-]+$`)
	maxEmailLength    = 254
	minPasswordLength = 6
	maxPasswordLength = 128
)

// Errors accumulates field failures in the order they are found.
type Errors []api.ErrorDetail

func (e *Errors) Add(field, rule, msg string) {
	*e = append(*e, api.ErrorDetail{Field: field, Rule: rule, Message: msg})
}

func (e Errors) Empty() bool { return len(e) == 0 }

// Err returns the 422 AppError, or nil when nothing failed.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return api.ValidationError(e)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips spaces, dashes, parentheses and dots.
func NormalizePhone(phone string) string {
	return phoneStrip.ReplaceAllString(strings.TrimSpace(phone), "")
}

func Email(errs *Errors, field, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		errs.Add(field, "required", "Email is required")
	case len(email) > maxEmailLength:
		errs.Add(field, "max_length", "Email is too long")
	case !emailPattern.MatchString(email):
		errs.Add(field, "format", "Please enter a valid email address")
	}
}

func Phone(errs *Errors, field, phone string) {
	cleaned := NormalizePhone(phone)
	switch {
	case cleaned == "":
		errs.Add(field, "required", "Phone number is required")
	case len(cleaned) < 10 || len(cleaned) > 15:
		errs.Add(field, "length", "Phone number must be between 10 and 15 digits")
	case !phonePattern.MatchString(cleaned):
		errs.Add(field, "format", "Please enter a valid phone number")
	}
}

func Name(errs *Errors, field, name string) {
	name = strings.TrimSpace(name)
	n := len([]rune(name))
	switch {
	case name == "":
		errs.Add(field, "required", "Name is required")
	case n < 2:
		errs.Add(field, "min_length", "Name must be at least 2 characters")
	case n > 100:
		errs.Add(field, "max_length", "Name must be less than 100 characters")
	case !namePattern.MatchString(name):
		errs.Add(field, "format", "Name can only contain letters, spaces, apostrophes, periods and hyphens")
	}
}

func Password(errs *Errors, field, password string) {
	n := len(password)
	switch {
	case password == "":
		errs.Add(field, "required", "Password is required")
	case n < minPasswordLength:
		errs.Add(field, "min_length", "Password must be at least 6 characters")
	case n > maxPasswordLength:
		errs.Add(field, "max_length", "Password must be less than 128 characters")
	case !hasLowerAndDigit(password):
		errs.Add(field, "format", "Password must contain at least one lowercase letter and one number")
	}
}

func Required(errs *Errors, field, value, msg string) {
	if strings.TrimSpace(value) == "" {
		errs.Add(field, "required", msg)
	}
}

func MinLength(errs *Errors, field, value string, min int, msg string) {
	if len([]rune(strings.TrimSpace(value))) < min {
		errs.Add(field, "min_length", msg)
	}
}

func OneOf(errs *Errors, field, value string, allowed []string, msg string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	errs.Add(field, "enum", msg)
}

func hasLowerAndDigit(s string) bool {
	var lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r) && r < unicode.MaxASCII:
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && digit
}
