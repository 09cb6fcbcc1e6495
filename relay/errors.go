package relay

import (
	"errors"
	"fmt"
)

var (
	ErrMissingState       = errors.New("no state provided")
	ErrNoCodeStored       = errors.New("no code stored")
	ErrStateMismatch      = errors.New("state mismatch")
	ErrMissingCodeOrState = errors.New("no code or state provided")
)

// ProviderError is the error the OAuth provider redirected with instead of a
// code, e.g. access_denied when the user declined consent.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// IsRelayError reports whether err is one of the expected outcomes of a
// deposit or withdrawal, as opposed to a storage failure.
func IsRelayError(err error) bool {
	var providerErr *ProviderError
	return errors.Is(err, ErrMissingState) ||
		errors.Is(err, ErrNoCodeStored) ||
		errors.Is(err, ErrStateMismatch) ||
		errors.Is(err, ErrMissingCodeOrState) ||
		errors.As(err, &providerErr)
}
