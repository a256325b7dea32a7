package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinPasswordLength = 6
	MaxFullNameLength = 100
	MaxUsernameLength = 50
)

/* Two-part local@domain.tld shape, no RFC 5322 parsing */
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

/* ValidationError is a single field-level problem */
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

/* RawSignup is the signup payload as decoded from JSON; values are untyped
 * so a non-string field is reported instead of failing the decode */
type RawSignup struct {
	Email    interface{} `json:"email"`
	Password interface{} `json:"password"`
	FullName interface{} `json:"fullName"`
	Username interface{} `json:"username"`
}

/* Signup is a validated, sanitized signup request */
type Signup struct {
	Email    string
	Password string
	FullName string
	Username string
}

/* ValidateSignup sanitizes every field first and checks the sanitized
 * values, so the returned request is exactly what was validated. It returns
 * either that request or the accumulated list of problems, never both. */
func ValidateSignup(raw RawSignup) (*Signup, []error) {
	var errs []error

	email, err := requiredString("email", "Email", raw.Email, true)
	if err != nil {
		errs = append(errs, err)
	} else if !emailPattern.MatchString(email) {
		errs = append(errs, &ValidationError{Field: "email", Message: "Invalid email format"})
	}

	password, err := requiredString("password", "Password", raw.Password, false)
	if err != nil {
		errs = append(errs, err)
	} else if utf8.RuneCountInString(password) < MinPasswordLength {
		errs = append(errs, &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("Password must be at least %d characters", MinPasswordLength),
		})
	}

	fullName, err := requiredString("fullName", "Full name", raw.FullName, true)
	if err != nil {
		errs = append(errs, err)
	} else if utf8.RuneCountInString(fullName) > MaxFullNameLength {
		errs = append(errs, &ValidationError{
			Field:   "fullName",
			Message: fmt.Sprintf("Full name must be less than %d characters", MaxFullNameLength),
		})
	}

	username, err := requiredString("username", "Username", raw.Username, true)
	if err != nil {
		errs = append(errs, err)
	} else if utf8.RuneCountInString(username) > MaxUsernameLength {
		errs = append(errs, &ValidationError{
			Field:   "username",
			Message: fmt.Sprintf("Username must be less than %d characters", MaxUsernameLength),
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &Signup{
		Email:    strings.ToLower(email),
		Password: password,
		FullName: fullName,
		Username: username,
	}, nil
}

/* SanitizeInput drops angle brackets, then trims whitespace. It is meant for
 * plain-text storage only and does not escape quotes or ampersands. */
func SanitizeInput(s string) string {
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	return strings.TrimSpace(s)
}

/* Messages flattens validation errors into their user-facing messages */
func Messages(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		if ve, ok := err.(*ValidationError); ok {
			out = append(out, ve.Message)
			continue
		}
		out = append(out, err.Error())
	}
	return out
}

/* requiredString returns the sanitized value when sanitize is set. Passwords
 * are passed through untouched, so whitespace counts toward their length. */
func requiredString(field, label string, v interface{}, sanitize bool) (string, error) {
	if v == nil {
		return "", &ValidationError{Field: field, Message: label + " is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ValidationError{Field: field, Message: label + " must be a string"}
	}
	if sanitize {
		s = SanitizeInput(s)
	}
	if s == "" {
		return "", &ValidationError{Field: field, Message: label + " is required"}
	}
	return s, nil
}
