package ipc

import "fmt"

// ResponseBuilder writes a response into a command buffer. The header is
// written up front; Finish checks that exactly the declared words were
// pushed.
type ResponseBuilder struct {
	buf       CommandBuffer
	commandID uint16
	normal    uint32
	translate uint32
	index     int
	normalEnd int
	end       int
	err       error
}

func NewResponseBuilder(buf CommandBuffer, commandID uint16, normal, translate uint32) *ResponseBuilder {
	h := MakeHeader(commandID, normal, translate)
	b := &ResponseBuilder{
		buf:       buf,
		commandID: commandID,
		normal:    normal,
		translate: translate,
		index:     headerWordCount,
		normalEnd: headerWordCount + int(normal),
		end:       h.Words(),
	}

	if len(buf) < b.end {
		b.err = fmt.Errorf("%w: response %v needs %d words, buffer holds %d",
			ErrWriteOverrun, h, b.end, len(buf))

		return b
	}

	buf[0] = uint32(h)

	return b
}

func (b *ResponseBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *ResponseBuilder) normalWord(w uint32) {
	if b.err != nil {
		return
	}

	if b.index >= b.normalEnd {
		b.fail(fmt.Errorf("%w: normal word %d of response %#x declares %d",
			ErrWriteOverrun, b.index, b.commandID, b.normal))

		return
	}

	b.buf[b.index] = w
	b.index++
}

func (b *ResponseBuilder) translateWord(w uint32) {
	if b.err != nil {
		return
	}

	if b.index < b.normalEnd {
		b.fail(fmt.Errorf("%w: translate write at word %d with %d normal words unwritten",
			ErrWriteOverrun, b.index, b.normalEnd-b.index))

		return
	}

	if b.index >= b.end {
		b.fail(fmt.Errorf("%w: translate word %d of response %#x declares %d",
			ErrWriteOverrun, b.index, b.commandID, b.translate))

		return
	}

	b.buf[b.index] = w
	b.index++
}

func (b *ResponseBuilder) PushResult(r ResultCode) {
	b.normalWord(uint32(r))
}

func (b *ResponseBuilder) PushU8(v uint8) {
	b.normalWord(uint32(v))
}

func (b *ResponseBuilder) PushU16(v uint16) {
	b.normalWord(uint32(v))
}

func (b *ResponseBuilder) PushU32(v uint32) {
	b.normalWord(v)
}

// PushU64 writes two words, low word first.
func (b *ResponseBuilder) PushU64(v uint64) {
	b.normalWord(uint32(v))
	b.normalWord(uint32(v >> 32))
}

func (b *ResponseBuilder) PushBool(v bool) {
	if v {
		b.normalWord(1)
	} else {
		b.normalWord(0)
	}
}

// PushRaw writes a fixed-layout structure, zero-padding the last word.
func (b *ResponseBuilder) PushRaw(data []byte) {
	words := (len(data) + 3) / 4
	if b.err == nil && b.index+words > b.normalEnd {
		b.fail(fmt.Errorf("%w: %d-byte raw value at word %d of response %#x declares %d",
			ErrWriteOverrun, len(data), b.index, b.commandID, b.normal))

		return
	}

	for i := 0; i < words; i++ {
		var w uint32

		for j := 0; j < 4 && i*4+j < len(data); j++ {
			w |= uint32(data[i*4+j]) << (8 * j)
		}

		b.normalWord(w)
	}
}

// PushCopyHandles writes a copy handle descriptor followed by handles.
func (b *ResponseBuilder) PushCopyHandles(handles ...uint32) {
	b.pushHandles(CopyHandleDesc, handles)
}

// PushMoveHandles writes a move handle descriptor followed by handles.
func (b *ResponseBuilder) PushMoveHandles(handles ...uint32) {
	b.pushHandles(MoveHandleDesc, handles)
}

func (b *ResponseBuilder) pushHandles(desc func(uint32) uint32, handles []uint32) {
	if len(handles) == 0 {
		b.fail(fmt.Errorf("%w: empty handle list", ErrDescriptor))

		return
	}

	b.translateWord(desc(uint32(len(handles))))

	for _, h := range handles {
		b.translateWord(h)
	}
}

// PushStaticBuffer writes a static buffer descriptor and its address.
func (b *ResponseBuilder) PushStaticBuffer(buf StaticBuffer) {
	b.translateWord(StaticBufferDesc(buf.Size, buf.ID))
	b.translateWord(buf.Address)
}

// Err returns the first push error, if any.
func (b *ResponseBuilder) Err() error {
	return b.err
}

// Finish returns an error unless the declared response shape was written
// exactly.
func (b *ResponseBuilder) Finish() error {
	if b.err != nil {
		return b.err
	}

	if b.index != b.end {
		written := b.index - headerWordCount
		wroteNormal := written
		wroteTranslate := 0

		if wroteNormal > int(b.normal) {
			wroteTranslate = wroteNormal - int(b.normal)
			wroteNormal = int(b.normal)
		}

		return &ShapeMismatchError{
			CommandID:  b.commandID,
			Stage:      "response",
			Normal:     uint32(wroteNormal),
			Translate:  uint32(wroteTranslate),
			WantNormal: b.normal,
			WantTr:     b.translate,
		}
	}

	return nil
}
