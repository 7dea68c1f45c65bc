package gmd

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the input path does not resolve to a
	// readable file.
	ErrNotFound = errors.New("gmd: file not found")
	// ErrNotSupported is returned for a bad magic or an unrecognized version.
	ErrNotSupported = errors.New("gmd: not supported")
	// ErrUnknownKeypair means the text blob matches none of the fixed key pairs.
	ErrUnknownKeypair = errors.New("gmd: data can't be deXOR'ed, file uses unknown keypair")
	// ErrUnsupportedPlatform is returned by encoders that have no layout for
	// the requested platform.
	ErrUnsupportedPlatform = errors.New("gmd: platform not supported")
	// ErrStructure is matched by every *StructuralError.
	ErrStructure = errors.New("gmd: malformed archive")
)

// StructuralError reports a header or offset inconsistency found while
// decoding, or a value that cannot be represented while encoding.
type StructuralError struct {
	Op     string
	Offset int64
	Msg    string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("gmd: %s at 0x%X: %s", e.Op, e.Offset, e.Msg)
}

func (e *StructuralError) Is(target error) bool { return target == ErrStructure }

func structErr(op string, off int64, format string, args ...any) error {
	return &StructuralError{Op: op, Offset: off, Msg: fmt.Sprintf(format, args...)}
}
