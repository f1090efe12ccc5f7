package ipc

import "fmt"

// RequestParser walks the parameters of a request against the shape its
// handler declares.
//
// Errors are sticky: the first failed pop is recorded, returned by Err, and
// every later pop yields zero values. Handlers pop everything they need and
// check Err once before touching any state.
type RequestParser struct {
	buf       CommandBuffer
	header    Header
	index     int
	normalEnd int
	end       int
	err       error
}

// NewRequestParser binds a parser to buf. The header in buf must carry
// commandID with exactly normal and translate parameter words.
func NewRequestParser(buf CommandBuffer, commandID uint16, normal, translate uint32) (*RequestParser, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty command buffer", ErrReadOverrun)
	}

	h := buf.Header()
	if h.CommandID() != commandID || h.NormalParams() != normal || h.TranslateParams() != translate {
		return nil, &ShapeMismatchError{
			CommandID:  h.CommandID(),
			Stage:      "request",
			Normal:     h.NormalParams(),
			Translate:  h.TranslateParams(),
			WantNormal: normal,
			WantTr:     translate,
		}
	}

	if h.Words() > len(buf) {
		return nil, fmt.Errorf("%w: header %v needs %d words, buffer holds %d",
			ErrReadOverrun, h, h.Words(), len(buf))
	}

	return &RequestParser{
		buf:       buf,
		header:    h,
		index:     headerWordCount,
		normalEnd: headerWordCount + int(normal),
		end:       h.Words(),
	}, nil
}

func (p *RequestParser) Header() Header {
	return p.header
}

// Err returns the first error met while popping, if any.
func (p *RequestParser) Err() error {
	return p.err
}

func (p *RequestParser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *RequestParser) normalWord() uint32 {
	if p.err != nil {
		return 0
	}

	if p.index >= p.normalEnd {
		p.fail(fmt.Errorf("%w: normal word %d of command %#x declares %d",
			ErrReadOverrun, p.index, p.header.CommandID(), p.header.NormalParams()))

		return 0
	}

	w := p.buf[p.index]
	p.index++

	return w
}

func (p *RequestParser) translateWord() uint32 {
	if p.err != nil {
		return 0
	}

	if p.index < p.normalEnd {
		p.fail(fmt.Errorf("%w: translate read at word %d with %d normal words unread",
			ErrReadOverrun, p.index, p.normalEnd-p.index))

		return 0
	}

	if p.index >= p.end {
		p.fail(fmt.Errorf("%w: translate word %d of command %#x declares %d",
			ErrReadOverrun, p.index, p.header.CommandID(), p.header.TranslateParams()))

		return 0
	}

	w := p.buf[p.index]
	p.index++

	return w
}

func (p *RequestParser) PopU8() uint8 {
	return uint8(p.normalWord())
}

func (p *RequestParser) PopU16() uint16 {
	return uint16(p.normalWord())
}

func (p *RequestParser) PopU32() uint32 {
	return p.normalWord()
}

// PopU64 reads two words, low word first.
func (p *RequestParser) PopU64() uint64 {
	lo := p.normalWord()
	hi := p.normalWord()

	return uint64(hi)<<32 | uint64(lo)
}

func (p *RequestParser) PopBool() bool {
	return p.normalWord() != 0
}

// PopRaw reads a fixed-layout structure of size bytes. The structure
// occupies size rounded up to whole words; trailing pad bytes are dropped.
func (p *RequestParser) PopRaw(size int) []byte {
	words := (size + 3) / 4
	if p.err == nil && p.index+words > p.normalEnd {
		p.fail(fmt.Errorf("%w: %d-byte raw value at word %d of command %#x declares %d",
			ErrReadOverrun, size, p.index, p.header.CommandID(), p.header.NormalParams()))
	}

	b := make([]byte, words*4)
	if p.err != nil {
		return b[:size]
	}

	for i := 0; i < words; i++ {
		w := p.normalWord()
		b[i*4] = byte(w)
		b[i*4+1] = byte(w >> 8)
		b[i*4+2] = byte(w >> 16)
		b[i*4+3] = byte(w >> 24)
	}

	return b[:size]
}

func (p *RequestParser) descriptor(want DescriptorType) (uint32, bool) {
	at := p.index
	desc := p.translateWord()

	if p.err != nil {
		return 0, false
	}

	if got := DescriptorTypeOf(desc); got != want {
		p.fail(&DescriptorError{Index: at, Got: got, Want: want})

		return 0, false
	}

	return desc, true
}

// PopHandles reads a copy or move handle descriptor and the handle values
// that follow it.
func (p *RequestParser) PopHandles() []uint32 {
	at := p.index
	desc := p.translateWord()

	if p.err != nil {
		return nil
	}

	if !IsHandleDescriptor(desc) {
		p.fail(&DescriptorError{Index: at, Got: DescriptorTypeOf(desc), Want: DescCopyHandle})

		return nil
	}

	handles := make([]uint32, HandleCount(desc))
	for i := range handles {
		handles[i] = p.translateWord()
	}

	if p.err != nil {
		return nil
	}

	return handles
}

// PopHandle reads a handle descriptor that must carry exactly one handle.
func (p *RequestParser) PopHandle() uint32 {
	handles := p.PopHandles()
	if p.err != nil {
		return 0
	}

	if len(handles) != 1 {
		p.fail(fmt.Errorf("%w: %d handles, want 1", ErrDescriptor, len(handles)))

		return 0
	}

	return handles[0]
}

// PopPID reads a calling-pid descriptor and the process id the kernel
// wrote after it.
func (p *RequestParser) PopPID() uint32 {
	if _, ok := p.descriptor(DescCallingPID); !ok {
		return 0
	}

	return p.translateWord()
}

// PopStaticBuffer reads a static buffer descriptor and its address.
func (p *RequestParser) PopStaticBuffer() StaticBuffer {
	desc, ok := p.descriptor(DescStaticBuffer)
	if !ok {
		return StaticBuffer{}
	}

	addr := p.translateWord()
	if p.err != nil {
		return StaticBuffer{}
	}

	size, id := StaticBufferInfo(desc)

	return StaticBuffer{ID: id, Address: addr, Size: size}
}

// PopMappedBuffer reads a mapped buffer descriptor and its address.
func (p *RequestParser) PopMappedBuffer() MappedBuffer {
	desc, ok := p.descriptor(DescMappedBuffer)
	if !ok {
		return MappedBuffer{}
	}

	addr := p.translateWord()
	if p.err != nil {
		return MappedBuffer{}
	}

	size, perms := MappedBufferInfo(desc)

	return MappedBuffer{Address: addr, Size: size, Permissions: perms}
}

// PeekStaticBuffer resolves the receive static buffer the calling thread
// registered in slot id. The cursor does not move.
func (p *RequestParser) PeekStaticBuffer(id uint8) StaticBuffer {
	if p.err != nil {
		return StaticBuffer{}
	}

	i := staticBufferArea + 2*int(id&staticIDMask)
	if i+1 >= len(p.buf) {
		p.fail(fmt.Errorf("%w: static buffer %d outside a %d-word buffer", ErrReadOverrun, id, len(p.buf)))

		return StaticBuffer{}
	}

	desc := p.buf[i]
	if got := DescriptorTypeOf(desc); got != DescStaticBuffer {
		p.fail(&DescriptorError{Index: i, Got: got, Want: DescStaticBuffer})

		return StaticBuffer{}
	}

	size, _ := StaticBufferInfo(desc)

	return StaticBuffer{ID: id, Address: p.buf[i+1], Size: size}
}

// MakeBuilder starts the response to this request in the same buffer.
func (p *RequestParser) MakeBuilder(normal, translate uint32) *ResponseBuilder {
	return NewResponseBuilder(p.buf, p.header.CommandID(), normal, translate)
}
