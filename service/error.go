package service

import (
	"errors"
	"fmt"

	"github.com/bobuhiro11/gohle/ipc"
	"github.com/bobuhiro11/gohle/kernel"
	"github.com/bobuhiro11/gohle/memory"
)

var (
	// ErrUnknownCommand is returned for a command id no handler is
	// registered for.
	ErrUnknownCommand = errors.New("service: unknown command")

	// ErrUnimplemented is returned for a known command without a handler.
	ErrUnimplemented = errors.New("service: unimplemented function")

	// ErrNoSuchPort is returned by Manager for an unregistered port name.
	ErrNoSuchPort = errors.New("service: no such port")
)

var (
	resultInvalidCommand = ipc.MakeResult(ipc.DescriptionInvalidCommand, ipc.ModuleOS,
		ipc.SummaryWrongArgument, ipc.LevelPermanent)
	resultNotImplemented = ipc.MakeResult(ipc.DescriptionNotImplemented, ipc.ModuleOS,
		ipc.SummaryNotSupported, ipc.LevelPermanent)
	resultInvalidBuffer = ipc.MakeResult(ipc.DescriptionInvalidBufferDsc, ipc.ModuleOS,
		ipc.SummaryWrongArgument, ipc.LevelPermanent)
	resultOutOfHandles = ipc.MakeResult(ipc.DescriptionOutOfHandles, ipc.ModuleKernel,
		ipc.SummaryOutOfResource, ipc.LevelPermanent)
	resultInvalidHandle = ipc.MakeResult(ipc.DescriptionInvalidHandle, ipc.ModuleKernel,
		ipc.SummaryInvalidArgument, ipc.LevelPermanent)
	resultInvalidAddress = ipc.MakeResult(ipc.DescriptionInvalidAddress, ipc.ModuleOS,
		ipc.SummaryInvalidArgument, ipc.LevelUsage)
	resultInternal = ipc.MakeResult(ipc.DescriptionNotImplemented, ipc.ModuleCommon,
		ipc.SummaryInternal, ipc.LevelFatal)
)

// UnknownCommandError reports a request for an unregistered command id.
type UnknownCommandError struct {
	Port   string
	Header ipc.Header
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("service %s: unknown command %v", e.Port, e.Header)
}

func (e *UnknownCommandError) Unwrap() error {
	return ErrUnknownCommand
}

// UnimplementedError reports a request for a command the service lists but
// does not serve.
type UnimplementedError struct {
	Port   string
	Name   string
	Header ipc.Header
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("service %s: unimplemented function %s %v", e.Port, e.Name, e.Header)
}

func (e *UnimplementedError) Unwrap() error {
	return ErrUnimplemented
}

// ResultCoder is implemented by service-specific errors that know the
// result code the guest should see.
type ResultCoder interface {
	Result() ipc.ResultCode
}

// ResultFor maps a dispatch error onto the result code written back to the
// guest. It never returns ResultSuccess for a non-nil error.
func ResultFor(err error) ipc.ResultCode {
	var rc ResultCoder

	switch {
	case err == nil:
		return ipc.ResultSuccess
	case errors.As(err, &rc):
		if r := rc.Result(); !r.IsSuccess() {
			return r
		}

		return resultInternal
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ipc.ErrShapeMismatch):
		return resultInvalidCommand
	case errors.Is(err, ErrUnimplemented):
		return resultNotImplemented
	case errors.Is(err, ipc.ErrReadOverrun), errors.Is(err, ipc.ErrDescriptor):
		return resultInvalidBuffer
	case errors.Is(err, kernel.ErrHandleTableExhausted):
		return resultOutOfHandles
	case errors.Is(err, kernel.ErrInvalidHandle):
		return resultInvalidHandle
	case errors.Is(err, memory.ErrUnmapped), errors.Is(err, memory.ErrReadOnly):
		return resultInvalidAddress
	}

	return resultInternal
}
