package service

import (
	"fmt"
	"sort"

	"github.com/bobuhiro11/gohle/ipc"
	"go.uber.org/zap"
)

// Manager is the port registry guest code connects through.
type Manager struct {
	ports  map[string]*Interface
	logger *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		ports:  make(map[string]*Interface),
		logger: logger.Named("Service"),
	}
}

// AddService registers each interface under its port name.
func (m *Manager) AddService(ifaces ...*Interface) error {
	for _, iface := range ifaces {
		if _, ok := m.ports[iface.Name()]; ok {
			return fmt.Errorf("service: port %q already registered", iface.Name())
		}

		m.ports[iface.Name()] = iface
		m.logger.Debug("registered port", zap.String("port", iface.Name()),
			zap.Int("functions", len(iface.functions)))
	}

	return nil
}

// RemoveService unregisters a port.
func (m *Manager) RemoveService(name string) {
	delete(m.ports, name)
}

// Port returns the interface registered as name.
func (m *Manager) Port(name string) (*Interface, error) {
	iface, ok := m.ports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchPort, name)
	}

	return iface, nil
}

// Ports returns the registered port names in order.
func (m *Manager) Ports() []string {
	names := make([]string, 0, len(m.ports))
	for name := range m.ports {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Call forwards a request to the named port.
func (m *Manager) Call(port string, buf ipc.CommandBuffer) error {
	iface, err := m.Port(port)
	if err != nil {
		return err
	}

	return iface.HandleSyncRequest(buf)
}
