package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for exit-code and
// remediation handling.
type ErrorClass string

const (
	// ErrorClassConfig indicates a local setup problem detected before any
	// mutation. Examples: git-flow not initialised, missing origin remote,
	// missing platform credential.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassResolution indicates the deployment targets could not be
	// resolved from the configured remote.
	ErrorClassResolution ErrorClass = "resolution"

	// ErrorClassAmbiguous indicates revision pointers that automation cannot
	// reconcile.
	ErrorClassAmbiguous ErrorClass = "ambiguous"

	// ErrorClassScript indicates a failed command script.
	ErrorClassScript ErrorClass = "script"

	// ErrorClassPlatform indicates a failed write against the platform API.
	ErrorClassPlatform ErrorClass = "platform"

	// ErrorClassPolicy indicates an action denied by a release policy.
	ErrorClassPolicy ErrorClass = "policy"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Remediation tells the operator how to fix the problem.
	Remediation string `json:"remediation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Operation != "" {
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{
		Class:   class,
		Message: message,
		Err:     err,
	}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, err error) *EngineError {
	return newError(ErrorClassConfig, message, err)
}

// NewResolutionError creates a new target resolution error.
func NewResolutionError(message string, err error) *EngineError {
	return newError(ErrorClassResolution, message, err)
}

// NewAmbiguousError creates a new ambiguous-state error.
func NewAmbiguousError(message string) *EngineError {
	return newError(ErrorClassAmbiguous, message, nil)
}

// NewScriptError creates a new script error.
func NewScriptError(message string, err error) *EngineError {
	return newError(ErrorClassScript, message, err)
}

// NewPlatformError creates a new platform error.
func NewPlatformError(message string, err error) *EngineError {
	return newError(ErrorClassPlatform, message, err)
}

// NewPolicyError creates a new policy error.
func NewPolicyError(message string, err error) *EngineError {
	return newError(ErrorClassPolicy, message, err)
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithRemediation attaches operator-facing fix instructions.
func (e *EngineError) WithRemediation(format string, args ...interface{}) *EngineError {
	e.Remediation = fmt.Sprintf(format, args...)
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of the first EngineError in the chain, or "".
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// RemediationOf returns the remediation text of the first EngineError in the
// chain, or "".
func RemediationOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Remediation
	}
	return ""
}

// IsConfig returns true if the error is classified as a configuration error.
func IsConfig(err error) bool { return ClassOf(err) == ErrorClassConfig }

// IsResolution returns true if the error is classified as a resolution error.
func IsResolution(err error) bool { return ClassOf(err) == ErrorClassResolution }

// IsAmbiguous returns true if the error is classified as ambiguous state.
func IsAmbiguous(err error) bool { return ClassOf(err) == ErrorClassAmbiguous }

// IsPolicy returns true if the error is classified as a policy denial.
func IsPolicy(err error) bool { return ClassOf(err) == ErrorClassPolicy }

// Common error codes.
const (
	ErrCodeNoWorkTree        = "NO_WORK_TREE"
	ErrCodeNoOrigin          = "NO_ORIGIN"
	ErrCodeGitFlow           = "GITFLOW_NOT_CONFIGURED"
	ErrCodeTagPrefix         = "FORBIDDEN_TAG_PREFIX"
	ErrCodeMissingCredential = "MISSING_CREDENTIAL"
	ErrCodeNoTarget          = "NO_TARGET"
	ErrCodeMultipleTargets   = "MULTIPLE_TARGETS"
	ErrCodeWrongRole         = "WRONG_PIPELINE_ROLE"
	ErrCodeMergeConflict     = "MERGE_CONFLICT"
	ErrCodeDenied            = "DENIED"
	ErrCodePromotionFailed   = "PROMOTION_FAILED"
)
