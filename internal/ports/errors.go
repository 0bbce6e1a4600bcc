package ports

import "errors"

var (
	// ErrQueueClosed is the expected terminal signal a drained queue
	// returns during shutdown. It is not an error condition.
	ErrQueueClosed = errors.New("frame queue closed")

	// ErrWouldBlock is returned by TryPop on an empty open queue.
	ErrWouldBlock = errors.New("frame queue empty")

	// ErrSourceExhausted reports that a source ran out of retries on a
	// transient failure.
	ErrSourceExhausted = errors.New("source exhausted after retries")
)

// PermanentError marks a sink or source error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
