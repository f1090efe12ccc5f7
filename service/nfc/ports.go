package nfc

import (
	"github.com/bobuhiro11/gohle/ipc"
	"github.com/bobuhiro11/gohle/service"
)

const (
	// UserPort is the port applications use.
	UserPort = "nfc:u"
	// ManagerPort is the system port. It serves everything UserPort does.
	ManagerPort = "nfc:m"

	maxSessions = 1
)

// nfc:m only commands. None are served.
var managerOnly = []service.FunctionInfo{
	{Header: ipc.MakeHeader(0x0401, 0, 0), Name: "Format"},
	{Header: ipc.MakeHeader(0x0402, 0, 0), Name: "GetAdminInfo"},
	{Header: ipc.MakeHeader(0x0403, 0, 0), Name: "GetEmptyRegisterInfo"},
	{Header: ipc.MakeHeader(0x0404, 0, 0), Name: "SetRegisterInfo"},
	{Header: ipc.MakeHeader(0x0405, 0, 0), Name: "DeleteRegisterInfo"},
	{Header: ipc.MakeHeader(0x0406, 0, 0), Name: "DeleteApplicationArea"},
	{Header: ipc.MakeHeader(0x0407, 0, 0), Name: "ExistsApplicationArea"},
}

// Ports builds nfc:u and nfc:m over m. Both serialise on m's lock.
func (m *Module) Ports() ([]*service.Interface, error) {
	u, err := service.NewInterface(UserPort, maxSessions, m.functions(), &m.mu, m.logger)
	if err != nil {
		return nil, err
	}

	mgr, err := service.NewInterface(ManagerPort, maxSessions, append(m.functions(), managerOnly...), &m.mu, m.logger)
	if err != nil {
		return nil, err
	}

	return []*service.Interface{u, mgr}, nil
}
