package hle

import (
	"errors"
	"fmt"
	"io"

	"github.com/bobuhiro11/gohle/savestate"
	"go.uber.org/zap"
)

var errLayoutMismatch = errors.New("hle: save state memory layout differs")

// Save writes the service state and the contents of every memory region
// to w.
func (s *System) Save(w io.Writer) error {
	if s.Manager == nil {
		return errNotInitialized
	}

	img := &savestate.Image{
		Snapshot: &savestate.Snapshot{
			MaxHandles: s.cfg.Kernel.MaxHandles,
			NFC:        s.NFC.State(),
		},
	}

	for _, slot := range s.Memory.Slots {
		img.Snapshot.Regions = append(img.Snapshot.Regions, savestate.Region{
			Name: slot.Name,
			Base: slot.Addr,
			Size: slot.Size,
			Type: slot.Type.String(),
		})

		data, err := s.Memory.ReadBlock(slot.Addr, slot.Size)
		if err != nil {
			return err
		}

		img.Memory = append(img.Memory, savestate.Block{Base: slot.Addr, Data: data})
	}

	if err := savestate.Write(w, img); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	s.logger.Info("state saved", zap.Int("regions", len(img.Memory)))

	return nil
}

// Load restores a state written by Save into an initialized system with
// the same memory layout. Read-only regions are restored as well.
func (s *System) Load(r io.Reader) error {
	if s.Manager == nil {
		return errNotInitialized
	}

	img, err := savestate.Read(r)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	if err := s.checkLayout(img.Snapshot.Regions); err != nil {
		return err
	}

	for _, b := range img.Memory {
		if uint64(len(b.Data)) > 1<<32 || !s.Memory.IsValidRange(b.Base, uint32(len(b.Data))) {
			return fmt.Errorf("%w: block [%#x,+%#x) is not mapped", errLayoutMismatch, b.Base, len(b.Data))
		}
	}

	for _, b := range img.Memory {
		v, err := s.Memory.View(b.Base, uint32(len(b.Data)))
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}

		copy(v, b.Data)
	}

	if err := s.NFC.Restore(img.Snapshot.NFC); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	if img.Snapshot.MaxHandles != s.cfg.Kernel.MaxHandles {
		s.logger.Warn("handle limit differs from save state",
			zap.Int("saved", img.Snapshot.MaxHandles),
			zap.Int("configured", s.cfg.Kernel.MaxHandles))
	}

	s.logger.Info("state loaded", zap.Stringer("tag_state", img.Snapshot.NFC.TagState))

	return nil
}

func (s *System) checkLayout(regions []savestate.Region) error {
	if len(regions) != len(s.Memory.Slots) {
		return fmt.Errorf("%w: %d regions saved, %d mapped", errLayoutMismatch, len(regions), len(s.Memory.Slots))
	}

	for i, r := range regions {
		slot := s.Memory.Slots[i]
		if r.Name != slot.Name || r.Base != slot.Addr || r.Size != slot.Size {
			return fmt.Errorf("%w: saved %s [%#x,+%#x), mapped %s [%#x,+%#x)",
				errLayoutMismatch, r.Name, r.Base, r.Size, slot.Name, slot.Addr, slot.Size)
		}
	}

	return nil
}
