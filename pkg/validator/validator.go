package validator

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/nikola43/socks5gate/pkg/errors"
)

// Validator performs input validation
type Validator struct {
	errors []errors.ValidationError
}

// New creates a new validator
func New() *Validator {
	return &Validator{
		errors: []errors.ValidationError{},
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, errors.ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []errors.ValidationError {
	return v.errors
}

// Error returns an AppError with all validation errors
func (v *Validator) Error() *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	return errors.NewValidationError(v.errors)
}

// Required validates that a field is not empty
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, fmt.Sprintf("%s is required", field))
	}
}

// MinLength validates minimum string length
func (v *Validator) MinLength(field, value string, min int) {
	if len(value) < min {
		v.AddError(field, fmt.Sprintf("%s must be at least %d characters", field, min))
	}
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) {
	if len(value) > max {
		v.AddError(field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
}

// In validates that value is in a list of allowed values
func (v *Validator) In(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// Username validates a username: 1-255 chars, no control characters or
// spaces, matching the range RFC 1929's one-octet length field allows.
func (v *Validator) Username(field, value string) {
	if value == "" {
		return
	}
	pattern := `^[\x21-\x7E]{1,255}$`
	matched, _ := regexp.MatchString(pattern, value)
	if !matched {
		v.AddError(field, "username must be 1-255 printable, non-whitespace characters")
	}
}

// Password validates a password's length against RFC 1929's one-octet
// length field; it does not enforce a character-class policy, since
// SOCKS5 credentials are arbitrary octets agreed out of band.
func (v *Validator) Password(field, value string) {
	if value == "" {
		return
	}
	if len(value) > 255 {
		v.AddError(field, fmt.Sprintf("%s must be at most 255 characters", field))
	}
}

// Port validates a port number
func (v *Validator) Port(field string, value int) {
	if value < 1 || value > 65535 {
		v.AddError(field, "port must be between 1 and 65535")
	}
}

// IP validates an IP address
func (v *Validator) IP(field, value string) {
	if value == "" {
		return
	}
	pattern := `^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$|^(?:[A-F0-9]{1,4}:){7}[A-F0-9]{1,4}$`
	matched, _ := regexp.MatchString(pattern, strings.ToUpper(value))
	if !matched {
		v.AddError(field, "invalid IP address")
	}
}

// Hostname validates a hostname
func (v *Validator) Hostname(field, value string) {
	if value == "" {
		return
	}
	pattern := `^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?$`
	matched, _ := regexp.MatchString(pattern, value)
	if !matched {
		v.AddError(field, "invalid hostname")
	}
}

// Helper functions for common validations

// ValidateListenAddr validates the host/port pair the server binds to.
// The host may be an IP literal (v4 or v6, including the wildcards) or
// a resolvable hostname.
func ValidateListenAddr(host string, port int) *errors.AppError {
	v := New()
	if host != "" && net.ParseIP(host) == nil {
		v.Hostname("listen_host", host)
	}
	v.Port("listen_port", port)
	return v.Error()
}

// ValidateCredentialEntry validates one username/password pair loaded
// from a credentials file.
func ValidateCredentialEntry(username, password string) *errors.AppError {
	v := New()
	v.Required("username", username)
	v.Username("username", username)
	v.Password("password", password)
	return v.Error()
}

// ValidateAuthMethod validates the configured authentication method.
func ValidateAuthMethod(method string) *errors.AppError {
	v := New()
	v.In("auth_method", method, []string{"none", "password"})
	return v.Error()
}
