package ipc

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when the word counts a command declares
	// do not match the shape its handler expects.
	ErrShapeMismatch = errors.New("ipc: command shape mismatch")

	// ErrReadOverrun is returned when a handler pops more words than the
	// request declared for a section.
	ErrReadOverrun = errors.New("ipc: read past declared parameters")

	// ErrWriteOverrun is returned when a handler pushes more words than
	// the response declared.
	ErrWriteOverrun = errors.New("ipc: write past declared parameters")

	// ErrDescriptor is returned when a translate parameter carries a
	// descriptor of the wrong kind.
	ErrDescriptor = errors.New("ipc: unexpected translate descriptor")
)

// ShapeMismatchError reports the declared and expected shape of a message.
type ShapeMismatchError struct {
	CommandID          uint16
	Stage              string // "request" or "response"
	Normal, Translate  uint32
	WantNormal, WantTr uint32
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("ipc: %s %#x: shape (%d,%d), want (%d,%d)",
		e.Stage, e.CommandID, e.Normal, e.Translate, e.WantNormal, e.WantTr)
}

func (e *ShapeMismatchError) Unwrap() error {
	return ErrShapeMismatch
}

// DescriptorError reports a translate descriptor of the wrong kind.
type DescriptorError struct {
	Index int
	Got   DescriptorType
	Want  DescriptorType
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("ipc: word %d: %s descriptor, want %s", e.Index, e.Got, e.Want)
}

func (e *DescriptorError) Unwrap() error {
	return ErrDescriptor
}
