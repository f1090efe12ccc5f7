// Package hle assembles guest memory, the kernel object layer and the
// services into one system guest requests are issued against.
package hle

import (
	"errors"
	"fmt"

	"github.com/bobuhiro11/gohle/config"
	"github.com/bobuhiro11/gohle/ipc"
	"github.com/bobuhiro11/gohle/kernel"
	"github.com/bobuhiro11/gohle/memory"
	"github.com/bobuhiro11/gohle/service"
	"github.com/bobuhiro11/gohle/service/nfc"
	"go.uber.org/zap"
)

var errNotInitialized = errors.New("hle: system not initialized")

type System struct {
	cfg config.Config

	Memory  *memory.Memory
	Kernel  *kernel.Kernel
	Manager *service.Manager
	NFC     *nfc.Module

	logger *zap.Logger
}

func New(c config.Config, logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &System{
		cfg:    c,
		logger: logger,
	}
}

// Init maps guest memory, creates the kernel and registers the configured
// service ports.
func (s *System) Init() error {
	mem := memory.New(0)

	for _, r := range s.cfg.Memory.Regions {
		typ := memory.RAM
		if r.Type == "rom" {
			typ = memory.ROM
		}

		if err := mem.NewMemorySlot(r.Name, r.Base, uint32(r.Size), typ); err != nil {
			return errors.Join(err, mem.Close())
		}
	}

	k, err := kernel.New(s.cfg.Kernel.MaxHandles, s.logger)
	if err != nil {
		return errors.Join(err, mem.Close())
	}

	amiibo, err := s.cfg.Services.NFC.Amiibo.Amiibo()
	if err != nil {
		return errors.Join(err, mem.Close())
	}

	tag := nfc.NewSimulated(s.cfg.Services.NFC.TagPresent == nil || *s.cfg.Services.NFC.TagPresent)
	module := nfc.New(k, mem, nfc.WithLogger(s.logger), nfc.WithTagSource(tag), nfc.WithAmiibo(amiibo))

	ports, err := module.Ports()
	if err != nil {
		module.Close()

		return errors.Join(err, mem.Close())
	}

	sm := service.NewManager(s.logger)

	for _, p := range ports {
		if !enabled(s.cfg.Services.NFC.Ports, p.Name()) {
			continue
		}

		if err := sm.AddService(p); err != nil {
			module.Close()

			return errors.Join(err, mem.Close())
		}
	}

	s.Memory, s.Kernel, s.Manager, s.NFC = mem, k, sm, module

	s.logger.Info("system initialized",
		zap.Int("regions", len(mem.Slots)),
		zap.Int("max_handles", s.cfg.Kernel.MaxHandles),
		zap.Strings("ports", sm.Ports()))

	return nil
}

func enabled(ports []string, name string) bool {
	if len(ports) == 0 {
		return true
	}

	for _, p := range ports {
		if p == name {
			return true
		}
	}

	return false
}

// Call serves buf on port.
func (s *System) Call(port string, buf ipc.CommandBuffer) error {
	if s.Manager == nil {
		return errNotInitialized
	}

	return s.Manager.Call(port, buf)
}

// CallAt serves the command buffer a guest thread keeps at addr in guest
// memory and writes the response back there.
func (s *System) CallAt(port string, addr uint32) error {
	if s.Manager == nil {
		return errNotInitialized
	}

	buf, err := ipc.ReadCommandBuffer(s.Memory, addr)
	if err != nil {
		return err
	}

	callErr := s.Manager.Call(port, buf)

	if err := ipc.WriteCommandBuffer(s.Memory, addr, buf); err != nil {
		return errors.Join(callErr, fmt.Errorf("write back command buffer: %w", err))
	}

	return callErr
}

// PlaceTag and RemoveTag drive the simulated reader.
func (s *System) PlaceTag() {
	if s.NFC != nil {
		s.NFC.PlaceTag()
	}
}

func (s *System) RemoveTag() {
	if s.NFC != nil {
		s.NFC.RemoveTag()
	}
}

// Shutdown closes the services and unmaps guest memory.
func (s *System) Shutdown() error {
	if s.Manager == nil {
		return nil
	}

	for _, p := range s.Manager.Ports() {
		s.Manager.RemoveService(p)
	}

	s.NFC.Close()

	err := s.Memory.Close()

	s.Manager, s.NFC = nil, nil
	s.logger.Info("system shut down")

	return err
}

// Lookup resolves a command name on port to the header it is issued with.
func (s *System) Lookup(port, name string) (ipc.Header, error) {
	if s.Manager == nil {
		return 0, errNotInitialized
	}

	iface, err := s.Manager.Port(port)
	if err != nil {
		return 0, err
	}

	f, ok := iface.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("hle: %s has no command %q", port, name)
	}

	return f.Header, nil
}
