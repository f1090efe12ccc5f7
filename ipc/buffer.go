package ipc

import (
	"encoding/binary"
	"fmt"
)

const (
	// CommandWords is the size of the message area of a thread's command
	// buffer.
	CommandWords = 0x40

	// StaticBufferDescriptors is the number of receive static buffers a
	// thread can register.
	StaticBufferDescriptors = 16

	// staticBufferArea is the word index of the first receive static buffer
	// descriptor. It directly follows the message area.
	staticBufferArea = CommandWords

	// CommandBufferWords covers the message area and the static buffer
	// descriptor/address pairs.
	CommandBufferWords = CommandWords + 2*StaticBufferDescriptors

	// CommandBufferSize is the byte size of a command buffer in guest
	// memory.
	CommandBufferSize = CommandBufferWords * 4
)

// CommandBuffer is the word view of a thread's IPC buffer. Words are
// little-endian in guest memory.
type CommandBuffer []uint32

// NewCommandBuffer returns a zeroed buffer of CommandBufferWords words.
func NewCommandBuffer() CommandBuffer {
	return make(CommandBuffer, CommandBufferWords)
}

// NewRequest returns a fresh buffer holding header h followed by params.
func NewRequest(h Header, params ...uint32) CommandBuffer {
	buf := NewCommandBuffer()
	buf[0] = uint32(h)
	copy(buf[1:CommandWords], params)

	return buf
}

func (c CommandBuffer) Header() Header {
	return Header(c[0])
}

// SetStaticBuffer registers a receive static buffer in descriptor slot id,
// the way a guest thread does before issuing a request that returns data
// through it.
func (c CommandBuffer) SetStaticBuffer(id uint8, addr, size uint32) {
	i := staticBufferArea + 2*int(id&staticIDMask)
	c[i] = StaticBufferDesc(size, id)
	c[i+1] = addr
}

// Message returns the words of the message described by the header,
// including the header itself.
func (c CommandBuffer) Message() []uint32 {
	n := c.Header().Words()
	if n > CommandWords {
		n = CommandWords
	}

	return c[:n]
}

// MarshalBinary encodes the buffer in its guest memory byte layout.
func (c CommandBuffer) MarshalBinary() ([]byte, error) {
	b := make([]byte, len(c)*4)

	for i, w := range c {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}

	return b, nil
}

// UnmarshalBinary decodes a guest memory image into the buffer. The buffer
// must already have the right length.
func (c CommandBuffer) UnmarshalBinary(b []byte) error {
	if len(b) != len(c)*4 {
		return fmt.Errorf("command buffer: %d bytes for %d words", len(b), len(c))
	}

	for i := range c {
		c[i] = binary.LittleEndian.Uint32(b[i*4:])
	}

	return nil
}

// Reader reads a guest memory range.
type Reader interface {
	ReadBlock(addr, size uint32) ([]byte, error)
}

// Writer writes a guest memory range.
type Writer interface {
	WriteBlock(addr uint32, data []byte) error
}

// ReadCommandBuffer loads the command buffer stored at addr.
func ReadCommandBuffer(r Reader, addr uint32) (CommandBuffer, error) {
	b, err := r.ReadBlock(addr, CommandBufferSize)
	if err != nil {
		return nil, fmt.Errorf("read command buffer at %#x: %w", addr, err)
	}

	c := NewCommandBuffer()
	if err := c.UnmarshalBinary(b); err != nil {
		return nil, err
	}

	return c, nil
}

// WriteCommandBuffer stores c at addr.
func WriteCommandBuffer(w Writer, addr uint32, c CommandBuffer) error {
	b, err := c.MarshalBinary()
	if err != nil {
		return err
	}

	if err := w.WriteBlock(addr, b); err != nil {
		return fmt.Errorf("write command buffer at %#x: %w", addr, err)
	}

	return nil
}
