package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	apperrors "github.com/odvcencio/diffapply/pkg/errors"
)

// Classify maps a ChatCompletion failure onto the diffapply error taxonomy.
// service is the human name of the remote ("OpenRouter", "Morph") and
// setting the config key holding its credential.
func Classify(service, setting string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMissingAPIKey):
		return apperrors.NewConfigurationError(service, setting)
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return apperrors.NewRemoteTimeoutError(service, err)
	}

	remoteErr := apperrors.NewRemoteServiceError(service, err)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		remoteErr.WithContext("status", apiErr.StatusCode).WithRetryable(apiErr.Retryable)
		switch {
		case apiErr.IsAuthError():
			remoteErr.WithUserMessage(service + " rejected the API key.").
				WithRemediation("check " + setting + " in ~/.diffapply/config.yaml")
		case apiErr.IsRateLimitError():
			remoteErr.WithUserMessage(rateLimitMessage(service, apiErr.RetryAfter))
			if apiErr.RetryAfter > 0 {
				remoteErr.WithContext("retry_after", apiErr.RetryAfter.String())
			}
		}
	}
	return remoteErr
}

func rateLimitMessage(service string, retryAfter time.Duration) string {
	if retryAfter < time.Second {
		return service + " is rate limiting requests. Try again shortly."
	}
	return fmt.Sprintf("%s is rate limiting requests. Try again in %s.", service, retryAfter.Round(time.Second))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
