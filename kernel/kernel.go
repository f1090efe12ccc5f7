// Package kernel models the kernel objects HLE services hand to guest
// code: events with a reset policy, and the process handle table through
// which the guest refers to them.
package kernel

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Object is anything the kernel can hand out a handle to.
type Object interface {
	ObjectID() uint64
	Name() string
	TypeName() string
}

// Kernel owns every object it creates. Services keep references for as
// long as they need an object and give it back with Release; handles in the
// table are weak and stop resolving once the object is released.
type Kernel struct {
	mu      sync.Mutex
	nextID  uint64
	objects map[uint64]Object
	handles *HandleTable
	logger  *zap.Logger
}

// New returns a kernel whose process handle table holds maxHandles
// entries, or DefaultMaxHandles when maxHandles is 0.
func New(maxHandles int, logger *zap.Logger) (*Kernel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if maxHandles == 0 {
		maxHandles = DefaultMaxHandles
	}

	t, err := NewHandleTable(maxHandles)
	if err != nil {
		return nil, err
	}

	return &Kernel{
		objects: make(map[uint64]Object),
		handles: t,
		logger:  logger.Named("Kernel"),
	}, nil
}

// CreateEvent creates and registers an event.
func (k *Kernel) CreateEvent(reset ResetType, name string) *Event {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.nextID++
	e := &Event{id: k.nextID, name: name, reset: reset}
	k.objects[e.id] = e

	k.logger.Debug("created event",
		zap.String("name", name),
		zap.Stringer("reset", reset),
		zap.Uint64("id", e.id))

	return e
}

// CreateHandle allocates a process handle for obj.
func (k *Kernel) CreateHandle(obj Object) (Handle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.objects[obj.ObjectID()]; !ok {
		return InvalidHandle, fmt.Errorf("%w: %s %q was released", ErrInvalidHandle, obj.TypeName(), obj.Name())
	}

	h, err := k.handles.Create(obj.ObjectID())
	if err != nil {
		k.logger.Warn("handle allocation failed", zap.String("object", obj.Name()), zap.Error(err))

		return InvalidHandle, err
	}

	return h, nil
}

// CloseHandle frees a process handle.
func (k *Kernel) CloseHandle(h Handle) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.handles.Close(h)
}

// Lookup resolves a handle to the object it refers to.
func (k *Kernel) Lookup(h Handle) (Object, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	id, err := k.handles.Get(h)
	if err != nil {
		return nil, err
	}

	obj, ok := k.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v refers to a released object", ErrInvalidHandle, h)
	}

	return obj, nil
}

// LookupEvent resolves a handle that must refer to an event.
func (k *Kernel) LookupEvent(h Handle) (*Event, error) {
	obj, err := k.Lookup(h)
	if err != nil {
		return nil, err
	}

	e, ok := obj.(*Event)
	if !ok {
		return nil, fmt.Errorf("%w: %v is a %s, not an Event", ErrInvalidHandle, h, obj.TypeName())
	}

	return e, nil
}

// Release drops the kernel's ownership of obj and invalidates every handle
// that still refers to it.
func (k *Kernel) Release(obj Object) {
	if obj == nil {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.objects, obj.ObjectID())
	n := k.handles.Invalidate(obj.ObjectID())

	k.logger.Debug("released object", zap.String("name", obj.Name()), zap.Int("handles", n))
}

// Objects returns the number of live objects.
func (k *Kernel) Objects() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.objects)
}

// HandlesInUse returns the number of allocated process handles.
func (k *Kernel) HandlesInUse() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.handles.Len()
}
