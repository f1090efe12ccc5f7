package kernel

import (
	"errors"
	"fmt"
)

// Handle is a process-local reference to a kernel object.
//
// A handle packs the table slot in its low 15 bits and a generation above
// it, so a stale handle to a reused slot never resolves.
type Handle uint32

const (
	// InvalidHandle never refers to an object.
	InvalidHandle Handle = 0

	// CurrentThread and CurrentProcess are pseudo handles resolved by the
	// kernel without a table entry.
	CurrentThread  Handle = 0xFFFF8000
	CurrentProcess Handle = 0xFFFF8001

	// DefaultMaxHandles is the per-process handle limit.
	DefaultMaxHandles = 4096

	slotBits       = 15
	slotMask       = 1<<slotBits - 1
	maxGeneration  = 1<<slotBits - 1
	maxTableLength = 1 << slotBits
)

var (
	// ErrHandleTableExhausted is returned when every slot is in use.
	ErrHandleTableExhausted = errors.New("kernel: out of handles")

	// ErrInvalidHandle is returned for a handle that is closed, stale, or
	// refers to a released object.
	ErrInvalidHandle = errors.New("kernel: invalid handle")
)

func (h Handle) slot() int {
	return int(uint32(h) & slotMask)
}

func (h Handle) generation() uint32 {
	return uint32(h) >> slotBits
}

func (h Handle) String() string {
	return fmt.Sprintf("%#08x", uint32(h))
}

type tableEntry struct {
	objectID   uint64
	generation uint32
	used       bool
}

// HandleTable maps handles to object ids. It holds no reference to the
// objects themselves; resolving a handle to an object goes through the
// Kernel, which invalidates entries when an object is released.
//
// HandleTable is not safe for concurrent use; the Kernel serialises access.
type HandleTable struct {
	entries        []tableEntry
	free           []int
	nextGeneration uint32
	inUse          int
}

func NewHandleTable(max int) (*HandleTable, error) {
	if max <= 0 || max > maxTableLength {
		return nil, fmt.Errorf("kernel: handle table size %d out of range (1-%d)", max, maxTableLength)
	}

	t := &HandleTable{
		entries:        make([]tableEntry, max),
		free:           make([]int, 0, max),
		nextGeneration: 1,
	}

	// Hand out low slots first.
	for i := max - 1; i >= 0; i-- {
		t.free = append(t.free, i)
	}

	return t, nil
}

// Create allocates a handle for objectID.
func (t *HandleTable) Create(objectID uint64) (Handle, error) {
	if len(t.free) == 0 {
		return InvalidHandle, fmt.Errorf("%w (%d in use)", ErrHandleTableExhausted, t.inUse)
	}

	slot := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	gen := t.nextGeneration

	t.nextGeneration++
	if t.nextGeneration > maxGeneration {
		t.nextGeneration = 1
	}

	t.entries[slot] = tableEntry{objectID: objectID, generation: gen, used: true}
	t.inUse++

	return Handle(gen<<slotBits | uint32(slot)), nil
}

// Get returns the object id h refers to.
func (t *HandleTable) Get(h Handle) (uint64, error) {
	e, err := t.entry(h)
	if err != nil {
		return 0, err
	}

	return e.objectID, nil
}

// Close frees the slot h occupies.
func (t *HandleTable) Close(h Handle) error {
	if _, err := t.entry(h); err != nil {
		return err
	}

	t.release(h.slot())

	return nil
}

// Invalidate closes every handle that refers to objectID and returns how
// many there were.
func (t *HandleTable) Invalidate(objectID uint64) int {
	n := 0

	for i := range t.entries {
		if t.entries[i].used && t.entries[i].objectID == objectID {
			t.release(i)
			n++
		}
	}

	return n
}

// Len returns the number of handles in use.
func (t *HandleTable) Len() int {
	return t.inUse
}

// Cap returns the table capacity.
func (t *HandleTable) Cap() int {
	return len(t.entries)
}

func (t *HandleTable) entry(h Handle) (*tableEntry, error) {
	slot := h.slot()
	if h == InvalidHandle || slot >= len(t.entries) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}

	e := &t.entries[slot]
	if !e.used || e.generation != h.generation() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}

	return e, nil
}

func (t *HandleTable) release(slot int) {
	t.entries[slot] = tableEntry{}
	t.free = append(t.free, slot)
	t.inUse--
}
