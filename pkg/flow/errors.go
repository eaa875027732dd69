package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a surfaced failure. Every error crossing the client
// boundary carries exactly one kind; callers branch on kinds (or the Is*
// helpers), never on raw status codes.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindTransient      ErrorKind = "transient"
	KindUnknown        ErrorKind = "unknown"
)

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return KindTransient
	default:
		return KindUnknown
	}
}

// APIError represents an error surfaced from the flow service or gateway.
// Detail preserves the remote-provided message verbatim when one exists.
type APIError struct {
	Kind       ErrorKind `json:"kind"        yaml:"kind"`
	StatusCode int       `json:"status_code" yaml:"status_code"`
	Method     string    `json:"method"      yaml:"method"`
	Path       string    `json:"path"        yaml:"path"`
	Detail     string    `json:"detail"      yaml:"detail"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s failed: %s (status: %d)", e.Method, e.Path, e.Kind, e.StatusCode)
	}

	return fmt.Sprintf("%s %s failed: %s (status: %d): %s", e.Method, e.Path, e.Kind, e.StatusCode, e.Detail)
}

// errorBody is the JSON error envelope some gateway deployments return.
// Plain-text bodies are preserved as-is.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewAPIError builds a typed error from a non-2xx response, extracting the
// remote message from a JSON envelope when present and keeping the raw body
// otherwise.
func NewAPIError(method, path string, statusCode int, body []byte) *APIError {
	detail := strings.TrimSpace(string(body))

	var envelope errorBody
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Message != "":
			detail = envelope.Message
		case envelope.Error != "":
			detail = envelope.Error
		}
	}

	return &APIError{
		Kind:       KindForStatus(statusCode),
		StatusCode: statusCode,
		Method:     method,
		Path:       path,
		Detail:     detail,
	}
}

// ConflictError reports a revision mismatch detected by the service (409).
// Latest carries the freshest entity snapshot the client could obtain after
// the conflict; the retry decision belongs to the caller.
type ConflictError struct {
	APIError *APIError
	Latest   *Entity
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Latest != nil && e.Latest.Revision != nil {
		return fmt.Sprintf("%s (latest revision: %d)", e.APIError.Error(), e.Latest.Revision.Version)
	}

	return e.APIError.Error()
}

// Unwrap exposes the underlying APIError for errors.As chains.
func (e *ConflictError) Unwrap() error {
	return e.APIError
}

// PreconditionFailedError reports a destructive operation blocked by an unmet
// precondition. Condition names the specific check that failed.
type PreconditionFailedError struct {
	Condition string
	EntityID  string
	Detail    string
}

// Error implements the error interface.
func (e *PreconditionFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("precondition failed for %q: %s", e.EntityID, e.Condition)
	}

	return fmt.Sprintf("precondition failed for %q: %s (%s)", e.EntityID, e.Condition, e.Detail)
}

// Common static errors that can be wrapped with context.
var (
	ErrConfigRequired           = errors.New("config is required")
	ErrNoEndpoint               = errors.New("API base or gateway URL is required")
	ErrNoHostInURL              = errors.New("no host specified in URL")
	ErrNoCredentials            = errors.New("no credentials configured")
	ErrReadOnlyMode             = errors.New("read-only mode is enabled")
	ErrVerbNotAllowed           = errors.New("verb is not permitted by the allowed-verbs policy")
	ErrUnknownVerb              = errors.New("unknown verb")
	ErrUnknownCapability        = errors.New("service capabilities are unknown")
	ErrCABundleUnreadable       = errors.New("CA bundle file is not readable")
	ErrCABundleInvalid          = errors.New("CA bundle contains no usable certificates")
	ErrSkipTLSOnlyInDev         = errors.New("skipTLS is only allowed in development environments")
	ErrEmptyTokenResponse       = errors.New("token exchange returned an empty token")
	ErrCredentialNotRefreshable = errors.New("credential cannot be refreshed")
	ErrCacheKeyNotFound         = errors.New("key not found")
	ErrCacheEntryExpired        = errors.New("entry expired")
)

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

// IsUnauthorized checks if the error is an authentication error.
func IsUnauthorized(err error) bool {
	return kindOf(err) == KindAuthentication
}

// IsForbidden checks if the error is an authorization error.
func IsForbidden(err error) bool {
	return kindOf(err) == KindAuthorization
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return kindOf(err) == KindValidation
}

// IsConflict checks if the error is a revision conflict.
func IsConflict(err error) bool {
	return kindOf(err) == KindConflict
}

// IsTransient checks if the error is a transient transport or 5xx error.
func IsTransient(err error) bool {
	return kindOf(err) == KindTransient
}

// IsReadOnly checks if the error was raised by the read-only gate.
func IsReadOnly(err error) bool {
	return errors.Is(err, ErrReadOnlyMode)
}

// IsPreconditionFailed checks if the error is an unmet destructive-operation
// precondition.
func IsPreconditionFailed(err error) bool {
	target := &PreconditionFailedError{}

	return errors.As(err, &target)
}

// IsUnknownCapability checks if the error indicates a failed capability probe.
func IsUnknownCapability(err error) bool {
	return errors.Is(err, ErrUnknownCapability)
}

// ConflictSnapshot extracts the freshest entity snapshot from a conflict
// error, or nil when the error is not a conflict.
func ConflictSnapshot(err error) *Entity {
	conflict := &ConflictError{}
	if errors.As(err, &conflict) {
		return conflict.Latest
	}

	return nil
}

func kindOf(err error) ErrorKind {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	return ""
}
