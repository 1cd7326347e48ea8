package query

import (
	"errors"
	"fmt"
)

// Argument errors. Their client text is fixed, see Message.
var (
	ErrInvalidSizeRange = errors.New("invalid size range")
	ErrNoDate           = errors.New("no date provided")
	ErrBadDate          = errors.New("invalid date format")
	ErrExtensionCount   = errors.New("invalid number of extensions")
)

// Failure is a local resource failure. Msg is what the client sees; Err is
// kept for the node log.
type Failure struct {
	Msg string
	Err error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Msg, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

func fail(msg string, err error) error {
	return &Failure{Msg: msg, Err: err}
}

// Message renders err as the response text sent to the client.
func Message(err error) string {
	var f *Failure
	switch {
	case errors.As(err, &f):
		return f.Msg
	case errors.Is(err, ErrInvalidSizeRange):
		return MsgInvalidSizeRange
	case errors.Is(err, ErrNoDate):
		return MsgNoDate
	case errors.Is(err, ErrBadDate):
		return MsgBadDate
	case errors.Is(err, ErrExtensionCount):
		return MsgExtensionCount
	}
	return "Internal error"
}
