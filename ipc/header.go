// Package ipc implements the command buffer codec shared between guest code
// and HLE services: the packed command header, translate descriptors, and
// the request parser / response builder pair that walk a buffer against a
// declared shape.
package ipc

import "fmt"

// Header is the first word of every command buffer.
//
//	31             16 15    12 11        6 5          0
//	+----------------+--------+-----------+------------+
//	|   command id   |  rsvd  |  normal   | translate  |
//	+----------------+--------+-----------+------------+
type Header uint32

const (
	paramCountMask  = 0x3f
	normalShift     = 6
	commandIDShift  = 16
	maxParamWords   = paramCountMask
	headerWordCount = 1
)

// MakeHeader packs a command id and the two parameter word counts.
// Counts wider than 6 bits are truncated, as the guest would do.
func MakeHeader(commandID uint16, normal, translate uint32) Header {
	return Header(uint32(commandID)<<commandIDShift |
		(normal&paramCountMask)<<normalShift |
		translate&paramCountMask)
}

func (h Header) CommandID() uint16 {
	return uint16(uint32(h) >> commandIDShift)
}

func (h Header) NormalParams() uint32 {
	return (uint32(h) >> normalShift) & paramCountMask
}

func (h Header) TranslateParams() uint32 {
	return uint32(h) & paramCountMask
}

// Words returns the number of words the message occupies including the
// header itself.
func (h Header) Words() int {
	return headerWordCount + int(h.NormalParams()) + int(h.TranslateParams())
}

func (h Header) String() string {
	return fmt.Sprintf("%#08x(id=%#x,normal=%d,translate=%d)",
		uint32(h), h.CommandID(), h.NormalParams(), h.TranslateParams())
}
