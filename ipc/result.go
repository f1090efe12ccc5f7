package ipc

import "fmt"

// ResultCode is the first response parameter of every command. Zero is
// success; any other value is a packed error.
//
//	31    27 26    21 20        10 9            0
//	+-------+--------+------------+--------------+
//	| level | summary|   module   | description  |
//	+-------+--------+------------+--------------+
type ResultCode uint32

type (
	ErrorDescription uint32
	ErrorModule      uint32
	ErrorSummary     uint32
	ErrorLevel       uint32
)

const (
	DescriptionSuccess          ErrorDescription = 0
	DescriptionOutOfHandles     ErrorDescription = 19
	DescriptionInvalidHandle    ErrorDescription = 1015
	DescriptionInvalidSize      ErrorDescription = 1016
	DescriptionInvalidAddress   ErrorDescription = 1017
	DescriptionInvalidBufferDsc ErrorDescription = 48
	DescriptionNotImplemented   ErrorDescription = 1018
	DescriptionInvalidCommand   ErrorDescription = 1019
)

const (
	ModuleCommon ErrorModule = 0
	ModuleKernel ErrorModule = 1
	ModuleOS     ErrorModule = 6
	ModuleNFC    ErrorModule = 84
)

const (
	SummarySuccess         ErrorSummary = 0
	SummaryOutOfResource   ErrorSummary = 3
	SummaryNotFound        ErrorSummary = 4
	SummaryInvalidState    ErrorSummary = 5
	SummaryNotSupported    ErrorSummary = 6
	SummaryInvalidArgument ErrorSummary = 7
	SummaryWrongArgument   ErrorSummary = 8
	SummaryInternal        ErrorSummary = 11
)

const (
	LevelSuccess   ErrorLevel = 0
	LevelTemporary ErrorLevel = 26
	LevelPermanent ErrorLevel = 27
	LevelUsage     ErrorLevel = 28
	LevelFatal     ErrorLevel = 31
)

const ResultSuccess ResultCode = 0

func MakeResult(d ErrorDescription, m ErrorModule, s ErrorSummary, l ErrorLevel) ResultCode {
	return ResultCode(uint32(d)&0x3ff | (uint32(m)&0xff)<<10 | (uint32(s)&0x3f)<<21 | (uint32(l)&0x1f)<<27)
}

func (r ResultCode) Description() ErrorDescription { return ErrorDescription(uint32(r) & 0x3ff) }
func (r ResultCode) Module() ErrorModule           { return ErrorModule((uint32(r) >> 10) & 0xff) }
func (r ResultCode) Summary() ErrorSummary         { return ErrorSummary((uint32(r) >> 21) & 0x3f) }
func (r ResultCode) Level() ErrorLevel             { return ErrorLevel((uint32(r) >> 27) & 0x1f) }

func (r ResultCode) IsSuccess() bool {
	return r == ResultSuccess
}

func (r ResultCode) String() string {
	if r.IsSuccess() {
		return "success"
	}

	return fmt.Sprintf("%#08x(desc=%d,module=%d,summary=%d,level=%d)",
		uint32(r), r.Description(), r.Module(), r.Summary(), r.Level())
}
