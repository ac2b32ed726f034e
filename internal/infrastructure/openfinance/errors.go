package openfinance

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the closed classification of aggregator failures.
type ErrorKind string

const (
	KindLoginRequired     ErrorKind = "LOGIN_REQUIRED"
	KindSandboxRestricted ErrorKind = "SANDBOX_RESTRICTED"
	KindUnknown           ErrorKind = "UNKNOWN"
)

// ProviderError is returned by every Client call that fails.
type ProviderError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pluggy %s", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

var loginSignals = []string{
	"login",
	"credential",
	"password",
	"mfa",
	"user_input",
	"user input",
	"user_action",
	"user_authorization",
	"account_locked",
	"needs_action",
	"already_logged",
	"consent",
}

var sandboxSignals = []string{
	"sandbox",
	"trial",
	"not available in",
	"restricted",
}

// ClassifyError maps a status code and the provider's error code and message
// to an ErrorKind. Any login-related signal wins over everything else.
func ClassifyError(statusCode int, code, message string) ErrorKind {
	text := strings.ToLower(code + " " + message)

	for _, s := range loginSignals {
		if strings.Contains(text, s) {
			return KindLoginRequired
		}
	}
	for _, s := range sandboxSignals {
		if strings.Contains(text, s) {
			return KindSandboxRestricted
		}
	}
	if statusCode == http.StatusForbidden && strings.Contains(text, "plan") {
		return KindSandboxRestricted
	}
	return KindUnknown
}

func newProviderError(op string, statusCode int, code, message string, err error) *ProviderError {
	return &ProviderError{
		Kind:       ClassifyError(statusCode, code, message),
		Op:         op,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

// KindOf returns the classification of err, or KindUnknown when err is not a
// ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsLoginRequired reports whether err carries a login-required classification.
func IsLoginRequired(err error) bool {
	return err != nil && KindOf(err) == KindLoginRequired
}
