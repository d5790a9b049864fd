package send

import "errors"

// ErrEmptyResponse marks a send whose server reply contained no messages;
// treated like any other failed attempt.
var ErrEmptyResponse = errors.New("empty send response")

// NetworkError is the recognized transport failure shape. The transport
// wraps timeouts, connection errors and 5xx responses in it; the
// orchestrator maps it to a user-facing toast. Anything else is marked
// failed silently.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return e.Op + ": network error"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err carries a NetworkError anywhere in
// its chain.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
