package nfc

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// TagSource reports whether a figure is on the reader when scanning
// starts.
type TagSource interface {
	TagPresent() bool
}

// TagSourceFunc adapts a function to TagSource.
type TagSourceFunc func() bool

func (f TagSourceFunc) TagPresent() bool { return f() }

// AlwaysPresent finds a tag as soon as scanning starts.
var AlwaysPresent TagSource = TagSourceFunc(func() bool { return true })

// Simulated is a reader whose tag is placed and removed by the host.
// Attach it to a Module with WithTagSource and drive it through
// Module.PlaceTag and Module.RemoveTag.
type Simulated struct {
	present atomic.Bool
}

// NewSimulated returns a reader with or without a tag on it.
func NewSimulated(present bool) *Simulated {
	s := &Simulated{}
	s.present.Store(present)

	return s
}

func (s *Simulated) TagPresent() bool {
	return s.present.Load()
}

// PlaceTag puts a figure on the reader. A session that is scanning sees
// the tag come into range.
func (m *Module) PlaceTag() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.tags.(*Simulated); ok {
		s.present.Store(true)
	}

	if m.closed || m.tagState != TagScanning {
		return
	}

	m.tagState = TagInRange
	m.tagInRangeEvent.Signal()
	m.logger.Info("tag placed", zap.Stringer("tag_state", m.tagState))
}

// RemoveTag takes the figure off the reader. A session holding the tag
// sees it go out of range.
func (m *Module) RemoveTag() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.tags.(*Simulated); ok {
		s.present.Store(false)
	}

	if m.closed || (m.tagState != TagInRange && m.tagState != TagDataLoaded) {
		return
	}

	m.tagState = TagOutOfRange
	m.tagOutOfRangeEvent.Signal()
	m.logger.Info("tag removed", zap.Stringer("tag_state", m.tagState))
}
