package genai

import "fmt"

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

// serverError is returned on HTTP 5xx.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error (HTTP %d)", e.status)
}

// transportError wraps network-level failures, including per-call timeouts.
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.err)
}

func (e *transportError) Unwrap() error {
	return e.err
}

// isTransient reports whether the error class is worth one retry with the
// next key. Malformed requests (4xx other than 429) and parse failures are
// not: a different key would fail the same way.
func isTransient(err error) bool {
	switch err.(type) {
	case *rateLimitError, *serverError, *transportError:
		return true
	}
	return false
}
