package remote

import (
	"errors"
	"fmt"
)

// ErrUnavailable covers transport failures and non-2xx responses.
var ErrUnavailable = errors.New("remote unavailable")

type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
	}

	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnavailable
}
