// Package service dispatches IPC requests to HLE service handlers.
//
// A service module supplies a table of FunctionInfo entries; an Interface
// exposes that table under a port name. Several Interfaces may share one
// table and one lock when a module is reachable through more than one
// port.
package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bobuhiro11/gohle/ipc"
	"go.uber.org/zap"
)

// Handler serves one command. It parses the request from buf, applies its
// effect and writes the response into the same buffer. A returned error
// means the command had no effect.
type Handler func(buf ipc.CommandBuffer) error

// FunctionInfo describes one command of a service.
type FunctionInfo struct {
	// Header is the request header the command is issued with; it carries
	// both the command id and the expected parameter shape.
	Header  ipc.Header
	Handler Handler
	Name    string
}

// Interface is one named port of a service.
type Interface struct {
	name        string
	maxSessions uint32
	functions   map[uint16]FunctionInfo
	mu          *sync.Mutex
	logger      *zap.Logger
}

// NewInterface builds a port from a function table. mu serialises command
// handling; pass the same mutex to every Interface over the same module
// state. A nil mu gets a private one.
func NewInterface(name string, maxSessions uint32, functions []FunctionInfo, mu *sync.Mutex, logger *zap.Logger) (*Interface, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if mu == nil {
		mu = &sync.Mutex{}
	}

	table := make(map[uint16]FunctionInfo, len(functions))

	for _, f := range functions {
		id := f.Header.CommandID()
		if prev, ok := table[id]; ok {
			return nil, fmt.Errorf("service %s: command %#x registered as both %s and %s", name, id, prev.Name, f.Name)
		}

		table[id] = f
	}

	return &Interface{
		name:        name,
		maxSessions: maxSessions,
		functions:   table,
		mu:          mu,
		logger:      logger.With(zap.String("port", name)),
	}, nil
}

func (i *Interface) Name() string {
	return i.name
}

func (i *Interface) MaxSessions() uint32 {
	return i.maxSessions
}

// Functions returns the function table ordered by command id.
func (i *Interface) Functions() []FunctionInfo {
	fns := make([]FunctionInfo, 0, len(i.functions))
	for _, f := range i.functions {
		fns = append(fns, f)
	}

	sort.Slice(fns, func(a, b int) bool {
		return fns[a].Header.CommandID() < fns[b].Header.CommandID()
	})

	return fns
}

// Lookup finds a command by name.
func (i *Interface) Lookup(name string) (FunctionInfo, bool) {
	for _, f := range i.functions {
		if f.Name == name {
			return f, true
		}
	}

	return FunctionInfo{}, false
}

// HandleSyncRequest serves the request in buf. On failure the buffer holds
// a one-word error response and the typed error is returned.
func (i *Interface) HandleSyncRequest(buf ipc.CommandBuffer) error {
	if len(buf) == 0 {
		return fmt.Errorf("%w: empty command buffer", ipc.ErrReadOverrun)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	header := buf.Header()
	id := header.CommandID()

	f, ok := i.functions[id]
	if !ok {
		err := &UnknownCommandError{Port: i.name, Header: header}
		i.logger.Error("unknown command", zap.Stringer("header", header))

		return i.fail(buf, id, err)
	}

	if f.Handler == nil {
		err := &UnimplementedError{Port: i.name, Name: f.Name, Header: header}
		i.logger.Error("unimplemented function", zap.String("function", f.Name), zap.Stringer("header", header))

		return i.fail(buf, id, err)
	}

	if header != f.Header {
		err := &ipc.ShapeMismatchError{
			CommandID:  id,
			Stage:      "request",
			Normal:     header.NormalParams(),
			Translate:  header.TranslateParams(),
			WantNormal: f.Header.NormalParams(),
			WantTr:     f.Header.TranslateParams(),
		}
		i.logger.Error("malformed request", zap.String("function", f.Name), zap.Error(err))

		return i.fail(buf, id, err)
	}

	if err := f.Handler(buf); err != nil {
		i.logger.Error("command failed", zap.String("function", f.Name), zap.Error(err))

		return i.fail(buf, id, fmt.Errorf("%s: %w", f.Name, err))
	}

	return nil
}

func (i *Interface) fail(buf ipc.CommandBuffer, id uint16, err error) error {
	rb := ipc.NewResponseBuilder(buf, id, 1, 0)
	rb.PushResult(ResultFor(err))

	if ferr := rb.Finish(); ferr != nil {
		return errors.Join(err, ferr)
	}

	return err
}
