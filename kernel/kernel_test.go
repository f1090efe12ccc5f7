package kernel_test

import (
	"errors"
	"testing"

	"github.com/bobuhiro11/gohle/kernel"
	"go.uber.org/zap/zaptest"
)

func newKernel(t *testing.T, max int) *kernel.Kernel {
	t.Helper()

	k, err := kernel.New(max, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	return k
}

func TestOneShotEvent(t *testing.T) {
	t.Parallel()

	k := newKernel(t, 8)
	e := k.CreateEvent(kernel.OneShot, "oneshot")

	if e.Acquire() {
		t.Fatal("unsignalled event acquired")
	}

	e.Signal()

	if !e.Signaled() {
		t.Fatal("event not signalled after Signal")
	}

	if !e.Acquire() {
		t.Fatal("signalled event not acquired")
	}

	if e.Signaled() || e.Acquire() {
		t.Fatal("one-shot event still signalled after one wait")
	}

	if n := e.SignalCount(); n != 1 {
		t.Fatalf("SignalCount = %d, want 1", n)
	}
}

func TestStickyEvent(t *testing.T) {
	t.Parallel()

	k := newKernel(t, 8)
	e := k.CreateEvent(kernel.Sticky, "sticky")
	e.Signal()

	for i := 0; i < 3; i++ {
		if !e.Acquire() {
			t.Fatalf("sticky event not acquired on wait %d", i)
		}
	}

	e.Clear()

	if e.Acquire() {
		t.Fatal("cleared sticky event acquired")
	}
}

func TestHandleLookup(t *testing.T) {
	t.Parallel()

	k := newKernel(t, 8)
	e := k.CreateEvent(kernel.OneShot, "e")

	h1, err := k.CreateHandle(e)
	if err != nil {
		t.Fatal(err)
	}

	h2, err := k.CreateHandle(e)
	if err != nil {
		t.Fatal(err)
	}

	if h1 == h2 || h1 == kernel.InvalidHandle {
		t.Fatalf("handles %v and %v are not distinct valid handles", h1, h2)
	}

	got, err := k.LookupEvent(h2)
	if err != nil {
		t.Fatal(err)
	}

	if got != e {
		t.Fatal("handle resolved to a different event")
	}

	if err := k.CloseHandle(h1); err != nil {
		t.Fatal(err)
	}

	if _, err := k.Lookup(h1); !errors.Is(err, kernel.ErrInvalidHandle) {
		t.Fatalf("closed handle: got %v, want ErrInvalidHandle", err)
	}

	if err := k.CloseHandle(h1); !errors.Is(err, kernel.ErrInvalidHandle) {
		t.Fatalf("double close: got %v, want ErrInvalidHandle", err)
	}
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	t.Parallel()

	k := newKernel(t, 1)
	e := k.CreateEvent(kernel.OneShot, "e")

	h1, err := k.CreateHandle(e)
	if err != nil {
		t.Fatal(err)
	}

	if err := k.CloseHandle(h1); err != nil {
		t.Fatal(err)
	}

	h2, err := k.CreateHandle(e)
	if err != nil {
		t.Fatal(err)
	}

	if h1 == h2 {
		t.Fatal("reused slot produced the same handle value")
	}

	if _, err := k.Lookup(h1); !errors.Is(err, kernel.ErrInvalidHandle) {
		t.Fatalf("stale handle: got %v, want ErrInvalidHandle", err)
	}
}

func TestHandleTableExhausted(t *testing.T) {
	t.Parallel()

	k := newKernel(t, 2)
	e := k.CreateEvent(kernel.OneShot, "e")

	for i := 0; i < 2; i++ {
		if _, err := k.CreateHandle(e); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := k.CreateHandle(e); !errors.Is(err, kernel.ErrHandleTableExhausted) {
		t.Fatalf("got %v, want ErrHandleTableExhausted", err)
	}
}

func TestReleaseInvalidatesHandles(t *testing.T) {
	t.Parallel()

	k := newKernel(t, 8)
	e := k.CreateEvent(kernel.OneShot, "e")
	other := k.CreateEvent(kernel.OneShot, "other")

	h, err := k.CreateHandle(e)
	if err != nil {
		t.Fatal(err)
	}

	ho, err := k.CreateHandle(other)
	if err != nil {
		t.Fatal(err)
	}

	k.Release(e)

	if _, err := k.Lookup(h); !errors.Is(err, kernel.ErrInvalidHandle) {
		t.Fatalf("handle to released event: got %v, want ErrInvalidHandle", err)
	}

	if _, err := k.CreateHandle(e); !errors.Is(err, kernel.ErrInvalidHandle) {
		t.Fatalf("handle for released event: got %v, want ErrInvalidHandle", err)
	}

	if _, err := k.Lookup(ho); err != nil {
		t.Fatalf("unrelated handle: %v", err)
	}

	if n := k.HandlesInUse(); n != 1 {
		t.Fatalf("HandlesInUse = %d, want 1", n)
	}

	if n := k.Objects(); n != 1 {
		t.Fatalf("Objects = %d, want 1", n)
	}
}

func TestPseudoHandlesDoNotResolve(t *testing.T) {
	t.Parallel()

	k := newKernel(t, 8)

	for _, h := range []kernel.Handle{kernel.InvalidHandle, kernel.CurrentThread, kernel.CurrentProcess} {
		if _, err := k.Lookup(h); !errors.Is(err, kernel.ErrInvalidHandle) {
			t.Errorf("Lookup(%v) = %v, want ErrInvalidHandle", h, err)
		}
	}
}

func TestNewHandleTableBounds(t *testing.T) {
	t.Parallel()

	if _, err := kernel.NewHandleTable(0); err == nil {
		t.Fatal("zero-sized table accepted")
	}

	if _, err := kernel.NewHandleTable(1 << 16); err == nil {
		t.Fatal("oversized table accepted")
	}
}
