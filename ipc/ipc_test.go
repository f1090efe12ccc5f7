package ipc_test

import (
	"errors"
	"testing"

	"github.com/bobuhiro11/gohle/ipc"
	"github.com/google/go-cmp/cmp"
)

func TestMakeHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id        uint16
		normal    uint32
		translate uint32
		want      uint32
	}{
		{0x01, 1, 0, 0x00010040},
		{0x09, 0, 2, 0x00090002},
		{0x0B, 1, 2, 0x000B0042},
		{0x16, 9, 2, 0x00160242},
		{0x17, 43, 0, 0x00170AC0},
	}

	for _, tt := range tests {
		h := ipc.MakeHeader(tt.id, tt.normal, tt.translate)
		if uint32(h) != tt.want {
			t.Errorf("MakeHeader(%#x,%d,%d) = %#x, want %#x", tt.id, tt.normal, tt.translate, uint32(h), tt.want)
		}

		if h.CommandID() != tt.id || h.NormalParams() != tt.normal || h.TranslateParams() != tt.translate {
			t.Errorf("%v does not decode back to (%#x,%d,%d)", h, tt.id, tt.normal, tt.translate)
		}
	}
}

func TestDescriptorTypeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc uint32
		want ipc.DescriptorType
	}{
		{ipc.CopyHandleDesc(1), ipc.DescCopyHandle},
		{ipc.CopyHandleDesc(3), ipc.DescCopyHandle},
		{ipc.MoveHandleDesc(2), ipc.DescMoveHandle},
		{ipc.CallingPIDDesc(), ipc.DescCallingPID},
		{ipc.StaticBufferDesc(0xD8, 0), ipc.DescStaticBuffer},
		{ipc.MappedBufferDesc(0x100, ipc.MappedRW), ipc.DescMappedBuffer},
		{0x30, ipc.DescUnknown},
	}

	for _, tt := range tests {
		if got := ipc.DescriptorTypeOf(tt.desc); got != tt.want {
			t.Errorf("DescriptorTypeOf(%#x) = %v, want %v", tt.desc, got, tt.want)
		}
	}

	if n := ipc.HandleCount(ipc.CopyHandleDesc(3)); n != 3 {
		t.Fatalf("HandleCount = %d, want 3", n)
	}

	size, id := ipc.StaticBufferInfo(ipc.StaticBufferDesc(0xD8, 5))
	if size != 0xD8 || id != 5 {
		t.Fatalf("StaticBufferInfo = (%#x,%d), want (0xd8,5)", size, id)
	}

	size, perms := ipc.MappedBufferInfo(ipc.MappedBufferDesc(0x40, ipc.MappedW))
	if size != 0x40 || perms != ipc.MappedW {
		t.Fatalf("MappedBufferInfo = (%#x,%d), want (0x40,%d)", size, perms, ipc.MappedW)
	}
}

func TestCommandBufferBinary(t *testing.T) {
	t.Parallel()

	buf := ipc.NewRequest(ipc.MakeHeader(0x15, 1, 0), 0xD8)
	buf.SetStaticBuffer(0, 0x08000000, 0xD8)

	b, err := buf.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	if len(b) != ipc.CommandBufferSize {
		t.Fatalf("encoded %d bytes, want %d", len(b), ipc.CommandBufferSize)
	}

	if diff := cmp.Diff([]byte{0x40, 0x00, 0x15, 0x00, 0xD8, 0x00, 0x00, 0x00}, b[:8]); diff != "" {
		t.Fatalf("leading words (-want +got):\n%s", diff)
	}

	got := ipc.NewCommandBuffer()
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(buf, got); diff != "" {
		t.Fatalf("decoded buffer (-want +got):\n%s", diff)
	}

	if err := got.UnmarshalBinary(b[:4]); err == nil {
		t.Fatal("short image decoded without error")
	}
}

func TestParserShapeMismatch(t *testing.T) {
	t.Parallel()

	buf := ipc.NewRequest(ipc.MakeHeader(0x01, 2, 0), 1, 2)

	_, err := ipc.NewRequestParser(buf, 0x01, 1, 0)
	if !errors.Is(err, ipc.ErrShapeMismatch) {
		t.Fatalf("got %v, want ErrShapeMismatch", err)
	}

	var sm *ipc.ShapeMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("got %T, want *ShapeMismatchError", err)
	}

	if sm.Normal != 2 || sm.WantNormal != 1 || sm.Stage != "request" {
		t.Fatalf("unexpected mismatch detail: %+v", sm)
	}

	if _, err := ipc.NewRequestParser(buf, 0x02, 2, 0); !errors.Is(err, ipc.ErrShapeMismatch) {
		t.Fatalf("command id mismatch: got %v", err)
	}
}

func TestParserScalars(t *testing.T) {
	t.Parallel()

	buf := ipc.NewRequest(ipc.MakeHeader(0x30, 6, 0), 0x1ff, 0x12345, 0xdeadbeef, 0x11111111, 0x22222222, 1)

	p, err := ipc.NewRequestParser(buf, 0x30, 6, 0)
	if err != nil {
		t.Fatal(err)
	}

	if v := p.PopU8(); v != 0xff {
		t.Errorf("PopU8 = %#x", v)
	}

	if v := p.PopU16(); v != 0x2345 {
		t.Errorf("PopU16 = %#x", v)
	}

	if v := p.PopU32(); v != 0xdeadbeef {
		t.Errorf("PopU32 = %#x", v)
	}

	if v := p.PopU64(); v != 0x2222222211111111 {
		t.Errorf("PopU64 = %#x", v)
	}

	if v := p.PopBool(); !v {
		t.Errorf("PopBool = %v", v)
	}

	if err := p.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestParserOverrunIsSticky(t *testing.T) {
	t.Parallel()

	buf := ipc.NewRequest(ipc.MakeHeader(0x05, 1, 0), 7, 99)

	p, err := ipc.NewRequestParser(buf, 0x05, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	if v := p.PopU16(); v != 7 {
		t.Fatalf("PopU16 = %d, want 7", v)
	}

	if v := p.PopU32(); v != 0 {
		t.Fatalf("overrun pop returned %d, want 0", v)
	}

	if !errors.Is(p.Err(), ipc.ErrReadOverrun) {
		t.Fatalf("Err = %v, want ErrReadOverrun", p.Err())
	}

	first := p.Err()
	p.PopU8()

	if p.Err() != first {
		t.Fatal("later pop replaced the first error")
	}
}

func TestParserRaw(t *testing.T) {
	t.Parallel()

	raw := []byte{1, 2, 3, 4, 5, 6}
	buf := ipc.NewRequest(ipc.MakeHeader(0x40, 3, 0), 0x04030201, 0x00000605, 0xaa)

	p, err := ipc.NewRequestParser(buf, 0x40, 3, 0)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(raw, p.PopRaw(len(raw))); diff != "" {
		t.Fatalf("PopRaw (-want +got):\n%s", diff)
	}

	if v := p.PopU32(); v != 0xaa {
		t.Fatalf("word after raw = %#x, want 0xaa", v)
	}

	p.PopRaw(4)

	if !errors.Is(p.Err(), ipc.ErrReadOverrun) {
		t.Fatalf("Err = %v, want ErrReadOverrun", p.Err())
	}
}

func TestParserTranslate(t *testing.T) {
	t.Parallel()

	buf := ipc.NewRequest(ipc.MakeHeader(0x50, 1, 10),
		0x20,
		ipc.CallingPIDDesc(), 0,
		ipc.CopyHandleDesc(2), 0x11, 0x22,
		ipc.StaticBufferDesc(0x80, 1), 0x08001000,
		ipc.MappedBufferDesc(0x40, ipc.MappedR), 0x08002000,
	)

	p, err := ipc.NewRequestParser(buf, 0x50, 1, 10)
	if err != nil {
		t.Fatal(err)
	}

	p.PopPID()

	if !errors.Is(p.Err(), ipc.ErrReadOverrun) {
		t.Fatalf("translate pop before normal words: Err = %v", p.Err())
	}

	p, _ = ipc.NewRequestParser(buf, 0x50, 1, 10)
	p.PopU32()
	p.PopPID()

	if diff := cmp.Diff([]uint32{0x11, 0x22}, p.PopHandles()); diff != "" {
		t.Fatalf("PopHandles (-want +got):\n%s", diff)
	}

	sb := p.PopStaticBuffer()
	if diff := cmp.Diff(ipc.StaticBuffer{ID: 1, Address: 0x08001000, Size: 0x80}, sb); diff != "" {
		t.Fatalf("PopStaticBuffer (-want +got):\n%s", diff)
	}

	mb := p.PopMappedBuffer()
	if diff := cmp.Diff(ipc.MappedBuffer{Address: 0x08002000, Size: 0x40, Permissions: ipc.MappedR}, mb); diff != "" {
		t.Fatalf("PopMappedBuffer (-want +got):\n%s", diff)
	}

	if err := p.Err(); err != nil {
		t.Fatal(err)
	}

	p.PopHandle()

	if !errors.Is(p.Err(), ipc.ErrReadOverrun) {
		t.Fatalf("Err = %v, want ErrReadOverrun", p.Err())
	}
}

func TestParserWrongDescriptor(t *testing.T) {
	t.Parallel()

	buf := ipc.NewRequest(ipc.MakeHeader(0x16, 0, 2), ipc.CopyHandleDesc(1), 0x1234)

	p, err := ipc.NewRequestParser(buf, 0x16, 0, 2)
	if err != nil {
		t.Fatal(err)
	}

	if sb := p.PopStaticBuffer(); sb != (ipc.StaticBuffer{}) {
		t.Fatalf("PopStaticBuffer = %+v, want zero", sb)
	}

	var de *ipc.DescriptorError
	if !errors.As(p.Err(), &de) {
		t.Fatalf("Err = %v, want *DescriptorError", p.Err())
	}

	if de.Got != ipc.DescCopyHandle || de.Want != ipc.DescStaticBuffer {
		t.Fatalf("unexpected descriptor detail: %+v", de)
	}

	buf = ipc.NewRequest(ipc.MakeHeader(0x16, 0, 3), ipc.CopyHandleDesc(2), 1, 2)
	p, _ = ipc.NewRequestParser(buf, 0x16, 0, 3)
	p.PopHandle()

	if !errors.Is(p.Err(), ipc.ErrDescriptor) {
		t.Fatalf("two handles for PopHandle: Err = %v", p.Err())
	}
}

func TestPeekStaticBuffer(t *testing.T) {
	t.Parallel()

	buf := ipc.NewRequest(ipc.MakeHeader(0x15, 1, 0), 0xD8)
	buf.SetStaticBuffer(0, 0x08000100, 0xD8)

	p, err := ipc.NewRequestParser(buf, 0x15, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	sb := p.PeekStaticBuffer(0)
	if diff := cmp.Diff(ipc.StaticBuffer{ID: 0, Address: 0x08000100, Size: 0xD8}, sb); diff != "" {
		t.Fatalf("PeekStaticBuffer (-want +got):\n%s", diff)
	}

	if v := p.PopU32(); v != 0xD8 {
		t.Fatalf("peek moved the cursor: PopU32 = %#x", v)
	}

	p.PeekStaticBuffer(1)

	if !errors.Is(p.Err(), ipc.ErrDescriptor) {
		t.Fatalf("unregistered slot: Err = %v, want ErrDescriptor", p.Err())
	}
}

func TestBuilderExactShape(t *testing.T) {
	t.Parallel()

	buf := ipc.NewRequest(ipc.MakeHeader(0x0B, 0, 0))

	p, err := ipc.NewRequestParser(buf, 0x0B, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	rb := p.MakeBuilder(1, 2)
	rb.PushResult(ipc.ResultSuccess)
	rb.PushCopyHandles(0x8001)

	if err := rb.Finish(); err != nil {
		t.Fatal(err)
	}

	want := []uint32{0x000B0042, 0, ipc.CopyHandleDesc(1), 0x8001}
	if diff := cmp.Diff(want, []uint32(buf.Message())); diff != "" {
		t.Fatalf("response (-want +got):\n%s", diff)
	}
}

func TestBuilderWideAndTranslate(t *testing.T) {
	t.Parallel()

	buf := ipc.NewCommandBuffer()
	rb := ipc.NewResponseBuilder(buf, 0x20, 3, 4)
	rb.PushResult(ipc.ResultSuccess)
	rb.PushU64(0x1122334455667788)
	rb.PushMoveHandles(0x10)
	rb.PushStaticBuffer(ipc.StaticBuffer{ID: 2, Address: 0x08000100, Size: 0x40})

	if err := rb.Finish(); err != nil {
		t.Fatal(err)
	}

	want := []uint32{
		uint32(ipc.MakeHeader(0x20, 3, 4)),
		0,
		0x55667788, 0x11223344,
		ipc.MoveHandleDesc(1), 0x10,
		ipc.StaticBufferDesc(0x40, 2), 0x08000100,
	}
	if diff := cmp.Diff(want, []uint32(buf.Message())); diff != "" {
		t.Fatalf("response (-want +got):\n%s", diff)
	}

	rb = ipc.NewResponseBuilder(ipc.NewCommandBuffer(), 0x20, 1, 2)
	rb.PushResult(ipc.ResultSuccess)
	rb.PushMoveHandles()

	if err := rb.Finish(); !errors.Is(err, ipc.ErrDescriptor) {
		t.Fatalf("empty handle list: Finish = %v, want ErrDescriptor", err)
	}
}

func TestBuilderRawPadding(t *testing.T) {
	t.Parallel()

	buf := ipc.NewCommandBuffer()
	rb := ipc.NewResponseBuilder(buf, 0x11, 3, 0)
	rb.PushResult(ipc.ResultSuccess)
	rb.PushRaw([]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee})

	if err := rb.Finish(); err != nil {
		t.Fatal(err)
	}

	if buf[2] != 0xddccbbaa || buf[3] != 0x000000ee {
		t.Fatalf("raw words = %#x %#x", buf[2], buf[3])
	}
}

func TestBuilderUnderfill(t *testing.T) {
	t.Parallel()

	rb := ipc.NewResponseBuilder(ipc.NewCommandBuffer(), 0x0D, 2, 0)
	rb.PushResult(ipc.ResultSuccess)

	err := rb.Finish()

	var sm *ipc.ShapeMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("Finish = %v, want *ShapeMismatchError", err)
	}

	if sm.Stage != "response" || sm.Normal != 1 || sm.WantNormal != 2 {
		t.Fatalf("unexpected mismatch detail: %+v", sm)
	}
}

func TestBuilderOverrun(t *testing.T) {
	t.Parallel()

	rb := ipc.NewResponseBuilder(ipc.NewCommandBuffer(), 0x01, 1, 0)
	rb.PushResult(ipc.ResultSuccess)
	rb.PushU8(1)

	if err := rb.Finish(); !errors.Is(err, ipc.ErrWriteOverrun) {
		t.Fatalf("Finish = %v, want ErrWriteOverrun", err)
	}

	rb = ipc.NewResponseBuilder(ipc.NewCommandBuffer(), 0x0C, 1, 2)
	rb.PushCopyHandles(1)

	if err := rb.Finish(); !errors.Is(err, ipc.ErrWriteOverrun) {
		t.Fatalf("handles before result: Finish = %v, want ErrWriteOverrun", err)
	}
}

func TestResultCode(t *testing.T) {
	t.Parallel()

	r := ipc.MakeResult(ipc.DescriptionInvalidSize, ipc.ModuleNFC, ipc.SummaryInvalidArgument, ipc.LevelPermanent)

	if r.IsSuccess() {
		t.Fatal("error result reports success")
	}

	if r.Description() != ipc.DescriptionInvalidSize || r.Module() != ipc.ModuleNFC ||
		r.Summary() != ipc.SummaryInvalidArgument || r.Level() != ipc.LevelPermanent {
		t.Fatalf("fields do not round trip: %v", r)
	}

	if !ipc.ResultSuccess.IsSuccess() || uint32(ipc.ResultSuccess) != 0 {
		t.Fatal("ResultSuccess is not zero")
	}
}
