package errors

import "fmt"

// NewConfigurationError reports a missing credential. It is raised before any
// network traffic and is never retried.
func NewConfigurationError(service, setting string) *Error {
	return New(ErrCodeMissingCredential, fmt.Sprintf("%s API key is not configured", service)).
		WithContext("setting", setting).
		WithUserMessage(fmt.Sprintf("%s API key is not configured.", service)).
		WithRemediation(fmt.Sprintf("set %s in ~/.diffapply/config.yaml or the matching environment variable", setting))
}

// NewRemoteServiceError wraps a transport, timeout or response failure from a
// remote model service.
func NewRemoteServiceError(service string, cause error) *Error {
	return Wrap(cause, ErrCodeRemoteService, fmt.Sprintf("%s request failed", service)).
		WithContext("service", service)
}

// NewRemoteTimeoutError is a RemoteServiceError raised when the deadline elapsed.
func NewRemoteTimeoutError(service string, cause error) *Error {
	return Wrap(cause, ErrCodeRemoteTimeout, fmt.Sprintf("%s request timed out", service)).
		WithContext("service", service)
}

// NewEmptyResultError marks a service reply that carried no usable content.
func NewEmptyResultError(service string) *Error {
	return New(ErrCodeEmptyResult, fmt.Sprintf("%s returned no content", service)).
		WithContext("service", service)
}

// NewApplyError wraps a failure to commit the rewritten text to the document.
func NewApplyError(target string, cause error) *Error {
	if cause == nil {
		cause = fmt.Errorf("unknown failure")
	}
	return Wrap(cause, ErrCodeApplyFailed, "failed to apply optimization").
		WithContext("document", target)
}

// IsConfigurationError reports whether err is a missing-credential error.
func IsConfigurationError(err error) bool {
	return IsCode(err, ErrCodeMissingCredential)
}

// IsRemoteServiceError reports whether err came from a remote model call.
// Configuration errors count, since they are raised by the remote clients.
func IsRemoteServiceError(err error) bool {
	return IsCode(err, ErrCodeRemoteService) ||
		IsCode(err, ErrCodeRemoteTimeout) ||
		IsCode(err, ErrCodeMissingCredential)
}

// IsEmptyResult reports whether err is a soft "no content" failure.
func IsEmptyResult(err error) bool {
	return IsCode(err, ErrCodeEmptyResult)
}

// IsApplyError reports whether err is a failed document write.
func IsApplyError(err error) bool {
	return IsCode(err, ErrCodeApplyFailed)
}
