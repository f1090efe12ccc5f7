// Package memory provides the guest memory the HLE services read and
// write: a flat 32-bit virtual address space populated with mmap-backed
// regions.
package memory

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrUnmapped is returned for an access that is not wholly inside one
	// mapped region.
	ErrUnmapped = errors.New("memory: address range not mapped")

	// ErrReadOnly is returned for a write to a ROM region.
	ErrReadOnly = errors.New("memory: region is read-only")

	errNoSlotsAvail = errors.New("maximal numbers of slots exhausted")
	errSlotNotFound = errors.New("unable to find MemorySlot")
	errZeroSize     = errors.New("memory: zero-sized region")
)

// Poison fills fresh regions so reads of memory nobody wrote stand out in
// dumps.
const Poison = "\xDE\xAD\xBE\xEF"

// DefaultMaxSlots bounds the number of regions a Memory accepts.
const DefaultMaxSlots = 32

type RegionType uint8

const (
	RAM RegionType = 0 + iota
	ROM
	IO
)

func (t RegionType) String() string {
	switch t {
	case RAM:
		return "ram"
	case ROM:
		return "rom"
	case IO:
		return "io"
	}

	return fmt.Sprintf("RegionType(%d)", uint8(t))
}

// Memory is the guest virtual address space.
//
// Accesses to distinct addresses may run concurrently; Memory does no
// locking of its own, like the hardware it stands in for.
type Memory struct {
	Slots    []*MemorySlot
	MaxSlots uint32
	as       *AddressSpace
}

type MemorySlot struct {
	Name string
	Addr uint32
	Size uint32
	Type RegionType
	AS   *AddressSpace
	Buf  []byte
}

func New(maxSlots uint32) *Memory {
	if maxSlots == 0 {
		maxSlots = DefaultMaxSlots
	}

	return &Memory{
		MaxSlots: maxSlots,
		as:       NewAddressSpace("virtual", 0, 0xffffffff),
	}
}

// NewMemorySlot maps size bytes at guest address addr.
func (m *Memory) NewMemorySlot(name string, addr, size uint32, typ RegionType) error {
	var err error

	if size == 0 {
		return fmt.Errorf("%w: %s", errZeroSize, name)
	}

	if len(m.Slots) >= int(m.MaxSlots) {
		return errNoSlotsAvail
	}

	as := NewAddressSpace(name, addr, size)
	if err := m.as.AddAddress(as); err != nil {
		return err
	}

	slot := &MemorySlot{
		Name: name,
		Addr: addr,
		Size: size,
		Type: typ,
		AS:   as,
	}

	slot.Buf, err = unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		m.as.Addresses = m.as.Addresses[:len(m.as.Addresses)-1]

		return fmt.Errorf("mmap %s (%#x bytes): %w", name, size, err)
	}

	for i := 0; i < len(slot.Buf); i += len(Poison) {
		copy(slot.Buf[i:], Poison)
	}

	m.Slots = append(m.Slots, slot)

	return nil
}

// FindSlot returns the slot mapped at exactly addr with the given size.
func (m *Memory) FindSlot(addr, size uint32) (*MemorySlot, error) {
	for _, slot := range m.Slots {
		if slot.Addr == addr && slot.Size == size {
			return slot, nil
		}
	}

	return nil, errSlotNotFound
}

// slotFor returns the slot holding [addr, addr+size).
func (m *Memory) slotFor(addr, size uint32) (*MemorySlot, error) {
	end := uint64(addr) + uint64(size)

	for _, slot := range m.Slots {
		if addr >= slot.Addr && end <= uint64(slot.Addr)+uint64(slot.Size) {
			return slot, nil
		}
	}

	return nil, fmt.Errorf("%w: [%#x,%#x)", ErrUnmapped, addr, end)
}

// IsValidRange reports whether [addr, addr+size) lies in one region.
func (m *Memory) IsValidRange(addr, size uint32) bool {
	_, err := m.slotFor(addr, size)

	return err == nil
}

// View returns the bytes backing [addr, addr+size). The slice aliases guest
// memory and is valid until Close.
func (m *Memory) View(addr, size uint32) ([]byte, error) {
	slot, err := m.slotFor(addr, size)
	if err != nil {
		return nil, err
	}

	off := addr - slot.Addr

	return slot.Buf[off : off+size : off+size], nil
}

// ReadBlock copies size bytes from guest address addr.
func (m *Memory) ReadBlock(addr, size uint32) ([]byte, error) {
	v, err := m.View(addr, size)
	if err != nil {
		return nil, err
	}

	b := make([]byte, size)
	copy(b, v)

	return b, nil
}

// WriteBlock copies data to guest address addr.
func (m *Memory) WriteBlock(addr uint32, data []byte) error {
	v, err := m.writableView(addr, uint32(len(data)))
	if err != nil {
		return err
	}

	copy(v, data)

	return nil
}

// ZeroBlock clears size bytes at guest address addr.
func (m *Memory) ZeroBlock(addr, size uint32) error {
	v, err := m.writableView(addr, size)
	if err != nil {
		return err
	}

	for i := range v {
		v[i] = 0
	}

	return nil
}

func (m *Memory) writableView(addr, size uint32) ([]byte, error) {
	slot, err := m.slotFor(addr, size)
	if err != nil {
		return nil, err
	}

	if slot.Type == ROM {
		return nil, fmt.Errorf("%w: %s at %#x", ErrReadOnly, slot.Name, addr)
	}

	off := addr - slot.Addr

	return slot.Buf[off : off+size], nil
}

// Close unmaps every region.
func (m *Memory) Close() error {
	var errs []error

	for _, slot := range m.Slots {
		if err := unix.Munmap(slot.Buf); err != nil {
			errs = append(errs, fmt.Errorf("munmap %s: %w", slot.Name, err))
		}
	}

	m.Slots = nil
	m.as.Addresses = nil

	return errors.Join(errs...)
}
