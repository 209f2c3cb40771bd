package imagepulse

import "fmt"

// InitError reports that the store could not be initialized. It is
// fatal: the service must not start serving traffic when Initialize
// returns one of these.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("store initialization failed: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// WriteError reports a storage failure while recording data. Handlers
// map it to a 500 response; the process keeps running.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ValidationError reports malformed ingestion input. Field names the
// offending field so the 400 response can point at it. A validation
// failure never reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
