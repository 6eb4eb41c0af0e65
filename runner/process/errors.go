package process

import "fmt"

// Operations where a run could fail before producing a result
const (
	OpLookup   = "lookup"
	OpFiles    = "files"
	OpStart    = "start"
	OpPlatform = "platform"
	OpCancel   = "cancel"
)

// Error is returned when the program could not be run to completion
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
