package binding

import "fmt"

// ReadError is a failed or interrupted subscription. The binding keeps the
// last successfully delivered items.
type ReadError struct {
	Collection string
	Err        error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Collection, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is a rejected Add, Update or Delete. Writes are never retried.
type WriteError struct {
	Op         string
	Collection string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
