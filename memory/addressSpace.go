package memory

import (
	"errors"
	"fmt"
)

var errAddrSpaceOccupied = errors.New("address space occupied")

// AddressSpace is a named range of the guest virtual address space. The
// root space tracks the ranges carved out of it.
type AddressSpace struct {
	Name      string
	Start     uint32
	Size      uint32
	Addresses []*AddressSpace
}

func NewAddressSpace(name string, start, size uint32) *AddressSpace {
	return &AddressSpace{
		Name:  name,
		Start: start,
		Size:  size,
	}
}

// End returns the first address past the range.
func (a *AddressSpace) End() uint64 {
	return uint64(a.Start) + uint64(a.Size)
}

func (a *AddressSpace) AddAddress(addr *AddressSpace) error {
	if !a.InRange(addr) {
		return fmt.Errorf("%s [%#x,%#x) outside %s", addr.Name, addr.Start, addr.End(), a.Name)
	}

	if !a.IsFree(addr) {
		return fmt.Errorf("%w: %s [%#x,%#x)", errAddrSpaceOccupied, addr.Name, addr.Start, addr.End())
	}

	a.Addresses = append(a.Addresses, addr)

	return nil
}

// InRange reports whether addr lies entirely inside a.
func (a *AddressSpace) InRange(addr *AddressSpace) bool {
	return addr.Start >= a.Start && addr.End() <= a.End()
}

// Overlaps reports whether a and b share at least one address.
func (a *AddressSpace) Overlaps(b *AddressSpace) bool {
	return uint64(a.Start) < b.End() && uint64(b.Start) < a.End()
}

// IsFree reports whether ad overlaps none of the ranges already added.
func (a *AddressSpace) IsFree(ad *AddressSpace) bool {
	for _, addr := range a.Addresses {
		if addr.Overlaps(ad) {
			return false
		}
	}

	return true
}
