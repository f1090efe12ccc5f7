// Package nfc implements the NFC service used by games to talk to amiibo
// figures. Tag detection and the figure data are simulated: the service
// keeps the session state guest code observes and answers with cached
// amiibo data, and real tag I/O is not performed.
package nfc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bobuhiro11/gohle/ipc"
	"github.com/bobuhiro11/gohle/kernel"
	"github.com/bobuhiro11/gohle/service"
	"go.uber.org/zap"
)

// Memory is the slice of guest memory access the service needs.
type Memory interface {
	ReadBlock(addr, size uint32) ([]byte, error)
	ZeroBlock(addr, size uint32) error
}

// Kernel creates the events the service signals and the handles guest code
// receives for them.
type Kernel interface {
	CreateEvent(reset kernel.ResetType, name string) *kernel.Event
	CreateHandle(obj kernel.Object) (kernel.Handle, error)
	CloseHandle(h kernel.Handle) error
	Release(obj kernel.Object)
}

var (
	// ErrSizeMismatch is returned when a declared data size disagrees
	// with the size of the buffer that carries the data.
	ErrSizeMismatch = errors.New("nfc: size mismatch")

	// ErrClosed is returned for commands issued after Close.
	ErrClosed = errors.New("nfc: service shut down")
)

// SizeMismatchError reports the declared and the buffer size of an app
// data transfer.
type SizeMismatchError struct {
	Function string
	Declared uint32
	Buffer   uint32
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("nfc: %s: declared size %#x, buffer size %#x", e.Function, e.Declared, e.Buffer)
}

func (e *SizeMismatchError) Unwrap() error {
	return ErrSizeMismatch
}

// Result is the result code the guest sees for the mismatch.
func (e *SizeMismatchError) Result() ipc.ResultCode {
	return ipc.MakeResult(ipc.DescriptionInvalidSize, ipc.ModuleNFC, ipc.SummaryInvalidArgument, ipc.LevelPermanent)
}

// Command ids.
const (
	cmdInitialize             = 0x01
	cmdShutdown               = 0x02
	cmdStartCommunication     = 0x03
	cmdStopCommunication      = 0x04
	cmdStartTagScanning       = 0x05
	cmdStopTagScanning        = 0x06
	cmdLoadAmiiboData         = 0x07
	cmdResetTagScanState      = 0x08
	cmdUpdateStoredAmiiboData = 0x09
	cmdGetTagInRangeEvent     = 0x0B
	cmdGetTagOutOfRangeEvent  = 0x0C
	cmdGetTagState            = 0x0D
	cmdCommunicationGetStatus = 0x0F
	cmdGetTagInfo2            = 0x10
	cmdGetTagInfo             = 0x11
	cmdCommunicationGetResult = 0x12
	cmdOpenAppData            = 0x13
	cmdInitializeWriteAppData = 0x14
	cmdReadAppData            = 0x15
	cmdWriteAppData           = 0x16
	cmdGetAmiiboSettings      = 0x17
	cmdGetAmiiboConfig        = 0x18
	cmdGetAppDataInitStruct   = 0x19
	cmdIsAvailableFontRegion  = 0x1E
)

const words = 4

// Module is one NFC session. Both NFC ports serve the same Module.
type Module struct {
	mu     sync.Mutex
	kernel Kernel
	memory Memory
	logger *zap.Logger
	tags   TagSource

	tagInRangeEvent    *kernel.Event
	tagOutOfRangeEvent *kernel.Event

	status      CommunicationStatus
	tagState    TagState
	settings    AmiiboSettings
	tagInfo     TagInfo
	config      AmiiboConfig
	appID       uint32
	appDataOpen bool
	closed      bool
}

// Option configures a Module.
type Option func(*Module)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTagSource replaces the tag presence simulation.
func WithTagSource(src TagSource) Option {
	return func(m *Module) {
		if src != nil {
			m.tags = src
		}
	}
}

// WithAmiibo seeds the cached figure data.
func WithAmiibo(a Amiibo) Option {
	return func(m *Module) {
		m.settings = a.Settings
		m.tagInfo = a.TagInfo
		m.config = a.Config
	}
}

// New creates the service events and puts the session in its initial
// state.
func New(k Kernel, mem Memory, opts ...Option) *Module {
	m := &Module{
		kernel: k,
		memory: mem,
		logger: zap.NewNop(),
		tags:   AlwaysPresent,
		config: NewAmiiboConfig(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.Named("Service_NFC")
	m.tagInRangeEvent = k.CreateEvent(kernel.OneShot, "NFC::tag_in_range_event")
	m.tagOutOfRangeEvent = k.CreateEvent(kernel.OneShot, "NFC::tag_out_range_event")
	m.status = CommunicationAttemptInitialize
	m.tagState = TagNotInitialized

	return m
}

// Close releases the events and resets the session. Guest handles to the
// events stop resolving.
func (m *Module) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.kernel.Release(m.tagInRangeEvent)
	m.kernel.Release(m.tagOutOfRangeEvent)
	m.tagInRangeEvent = nil
	m.tagOutOfRangeEvent = nil
	m.status = CommunicationAttemptInitialize
	m.tagState = TagNotInitialized
	m.appDataOpen = false
	m.closed = true
}

func (m *Module) stub(function string, fields ...zap.Field) {
	m.logger.Warn("(STUBBED) called", append([]zap.Field{zap.String("function", function)}, fields...)...)
}

// respond writes a result-only success response.
func respond(rp *ipc.RequestParser) error {
	rb := rp.MakeBuilder(1, 0)
	rb.PushResult(ipc.ResultSuccess)

	return rb.Finish()
}

// parse binds a parser and refuses service once the module is closed.
func (m *Module) parse(buf ipc.CommandBuffer, id uint16, normal, translate uint32) (*ipc.RequestParser, error) {
	if m.closed {
		return nil, ErrClosed
	}

	return ipc.NewRequestParser(buf, id, normal, translate)
}

// functions is the command table shared by nfc:u and nfc:m.
func (m *Module) functions() []service.FunctionInfo {
	return []service.FunctionInfo{
		{Header: ipc.MakeHeader(cmdInitialize, 1, 0), Handler: m.initialize, Name: "Initialize"},
		{Header: ipc.MakeHeader(cmdShutdown, 1, 0), Handler: m.shutdown, Name: "Shutdown"},
		{Header: ipc.MakeHeader(cmdStartCommunication, 0, 0), Handler: m.startCommunication, Name: "StartCommunication"},
		{Header: ipc.MakeHeader(cmdStopCommunication, 0, 0), Handler: m.stopCommunication, Name: "StopCommunication"},
		{Header: ipc.MakeHeader(cmdStartTagScanning, 1, 0), Handler: m.startTagScanning, Name: "StartTagScanning"},
		{Header: ipc.MakeHeader(cmdStopTagScanning, 0, 0), Handler: m.stopTagScanning, Name: "StopTagScanning"},
		{Header: ipc.MakeHeader(cmdLoadAmiiboData, 0, 0), Handler: m.loadAmiiboData, Name: "LoadAmiiboData"},
		{Header: ipc.MakeHeader(cmdResetTagScanState, 0, 0), Handler: m.resetTagScanState, Name: "ResetTagScanState"},
		{Header: ipc.MakeHeader(cmdUpdateStoredAmiiboData, 0, 2), Handler: m.updateStoredAmiiboData, Name: "UpdateStoredAmiiboData"},
		{Header: ipc.MakeHeader(cmdGetTagInRangeEvent, 0, 0), Handler: m.getTagInRangeEvent, Name: "GetTagInRangeEvent"},
		{Header: ipc.MakeHeader(cmdGetTagOutOfRangeEvent, 0, 0), Handler: m.getTagOutOfRangeEvent, Name: "GetTagOutOfRangeEvent"},
		{Header: ipc.MakeHeader(cmdGetTagState, 0, 0), Handler: m.getTagState, Name: "GetTagState"},
		{Header: ipc.MakeHeader(cmdCommunicationGetStatus, 0, 0), Handler: m.communicationGetStatus, Name: "CommunicationGetStatus"},
		{Header: ipc.MakeHeader(cmdGetTagInfo2, 0, 0), Handler: nil, Name: "GetTagInfo2"},
		{Header: ipc.MakeHeader(cmdGetTagInfo, 0, 0), Handler: m.getTagInfo, Name: "GetTagInfo"},
		{Header: ipc.MakeHeader(cmdCommunicationGetResult, 0, 0), Handler: nil, Name: "CommunicationGetResult"},
		{Header: ipc.MakeHeader(cmdOpenAppData, 1, 0), Handler: m.openAppData, Name: "OpenAppData"},
		{Header: ipc.MakeHeader(cmdInitializeWriteAppData, 14, 4), Handler: nil, Name: "InitializeWriteAppData"},
		{Header: ipc.MakeHeader(cmdReadAppData, 1, 0), Handler: m.readAppData, Name: "ReadAppData"},
		{Header: ipc.MakeHeader(cmdWriteAppData, 9, 2), Handler: m.writeAppData, Name: "WriteAppData"},
		{Header: ipc.MakeHeader(cmdGetAmiiboSettings, 0, 0), Handler: m.getAmiiboSettings, Name: "GetAmiiboSettings"},
		{Header: ipc.MakeHeader(cmdGetAmiiboConfig, 0, 0), Handler: m.getAmiiboConfig, Name: "GetAmiiboConfig"},
		{Header: ipc.MakeHeader(cmdGetAppDataInitStruct, 0, 0), Handler: nil, Name: "GetAppDataInitStruct"},
		{Header: ipc.MakeHeader(cmdIsAvailableFontRegion, 1, 0), Handler: m.isAvailableFontRegion, Name: "IsAvailableFontRegion"},
	}
}

func (m *Module) initialize(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdInitialize, 1, 0)
	if err != nil {
		return err
	}

	op := OperationType(rp.PopU8())
	if err := rp.Err(); err != nil {
		return err
	}

	m.tagState = TagNotScanning
	m.status = CommunicationInitialized

	m.stub("Initialize", zap.Uint8("operation_type", uint8(op)))

	return respond(rp)
}

func (m *Module) shutdown(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdShutdown, 1, 0)
	if err != nil {
		return err
	}

	op := OperationType(rp.PopU8())
	if err := rp.Err(); err != nil {
		return err
	}

	m.status = CommunicationAttemptInitialize
	m.tagState = TagNotInitialized

	m.stub("Shutdown", zap.Uint8("operation_type", uint8(op)))

	return respond(rp)
}

func (m *Module) startCommunication(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdStartCommunication, 0, 0)
	if err != nil {
		return err
	}

	m.stub("StartCommunication")

	return respond(rp)
}

func (m *Module) stopCommunication(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdStopCommunication, 0, 0)
	if err != nil {
		return err
	}

	m.stub("StopCommunication")

	return respond(rp)
}

func (m *Module) startTagScanning(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdStartTagScanning, 1, 0)
	if err != nil {
		return err
	}

	param := rp.PopU16()
	if err := rp.Err(); err != nil {
		return err
	}

	if m.tags.TagPresent() {
		m.tagState = TagInRange
		m.tagInRangeEvent.Signal()
	} else {
		m.tagState = TagScanning
	}

	m.stub("StartTagScanning", zap.Uint16("param", param), zap.Stringer("tag_state", m.tagState))

	return respond(rp)
}

func (m *Module) stopTagScanning(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdStopTagScanning, 0, 0)
	if err != nil {
		return err
	}

	m.tagState = TagNotScanning

	m.stub("StopTagScanning")

	return respond(rp)
}

func (m *Module) loadAmiiboData(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdLoadAmiiboData, 0, 0)
	if err != nil {
		return err
	}

	m.tagState = TagDataLoaded

	m.stub("LoadAmiiboData")

	return respond(rp)
}

func (m *Module) resetTagScanState(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdResetTagScanState, 0, 0)
	if err != nil {
		return err
	}

	m.tagState = TagNotScanning

	m.stub("ResetTagScanState")

	return respond(rp)
}

func (m *Module) updateStoredAmiiboData(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdUpdateStoredAmiiboData, 0, 2)
	if err != nil {
		return err
	}

	pid := rp.PopPID()
	if err := rp.Err(); err != nil {
		return err
	}

	m.stub("UpdateStoredAmiiboData", zap.Uint32("pid", pid))

	return respond(rp)
}

func (m *Module) getEvent(buf ipc.CommandBuffer, id uint16, name string, e *kernel.Event) error {
	rp, err := m.parse(buf, id, 0, 0)
	if err != nil {
		return err
	}

	// The handle is only handed out once the response is known to fit.
	rb := rp.MakeBuilder(1, 2)
	if err := rb.Err(); err != nil {
		return err
	}

	h, err := m.kernel.CreateHandle(e)
	if err != nil {
		return fmt.Errorf("handle for %s: %w", e.Name(), err)
	}

	rb.PushResult(ipc.ResultSuccess)
	rb.PushCopyHandles(uint32(h))

	if err := rb.Finish(); err != nil {
		return errors.Join(err, m.kernel.CloseHandle(h))
	}

	m.stub(name, zap.Stringer("handle", h))

	return nil
}

func (m *Module) getTagInRangeEvent(buf ipc.CommandBuffer) error {
	return m.getEvent(buf, cmdGetTagInRangeEvent, "GetTagInRangeEvent", m.tagInRangeEvent)
}

func (m *Module) getTagOutOfRangeEvent(buf ipc.CommandBuffer) error {
	return m.getEvent(buf, cmdGetTagOutOfRangeEvent, "GetTagOutOfRangeEvent", m.tagOutOfRangeEvent)
}

func (m *Module) getTagState(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdGetTagState, 0, 0)
	if err != nil {
		return err
	}

	m.logger.Debug("(STUBBED) called", zap.String("function", "GetTagState"), zap.Stringer("tag_state", m.tagState))

	rb := rp.MakeBuilder(2, 0)
	rb.PushResult(ipc.ResultSuccess)
	rb.PushU8(uint8(m.tagState))

	return rb.Finish()
}

func (m *Module) communicationGetStatus(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdCommunicationGetStatus, 0, 0)
	if err != nil {
		return err
	}

	m.stub("CommunicationGetStatus", zap.Stringer("status", m.status))

	rb := rp.MakeBuilder(2, 0)
	rb.PushResult(ipc.ResultSuccess)
	rb.PushU8(uint8(m.status))

	return rb.Finish()
}

// pushBlob answers with a result followed by a fixed-layout structure.
func pushBlob(rp *ipc.RequestParser, size int, marshal func() ([]byte, error)) error {
	b, err := marshal()
	if err != nil {
		return err
	}

	rb := rp.MakeBuilder(uint32(1+size/words), 0)
	rb.PushResult(ipc.ResultSuccess)
	rb.PushRaw(b)

	return rb.Finish()
}

func (m *Module) getTagInfo(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdGetTagInfo, 0, 0)
	if err != nil {
		return err
	}

	m.stub("GetTagInfo")

	return pushBlob(rp, TagInfoSize, m.tagInfo.MarshalBinary)
}

func (m *Module) openAppData(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdOpenAppData, 1, 0)
	if err != nil {
		return err
	}

	appID := rp.PopU32()
	if err := rp.Err(); err != nil {
		return err
	}

	m.appID = appID
	m.appDataOpen = true

	m.stub("OpenAppData", zap.Uint32("amiibo_appid", appID))

	return respond(rp)
}

func (m *Module) readAppData(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdReadAppData, 1, 0)
	if err != nil {
		return err
	}

	size := rp.PopU32()
	out := rp.PeekStaticBuffer(0)

	if err := rp.Err(); err != nil {
		return err
	}

	if size != out.Size {
		return &SizeMismatchError{Function: "ReadAppData", Declared: size, Buffer: out.Size}
	}

	// TODO: fill from the loaded figure's application area once tag data
	// is emulated.
	if size > 0 {
		if err := m.memory.ZeroBlock(out.Address, size); err != nil {
			return err
		}
	}

	m.stub("ReadAppData", zap.Uint32("size", size))

	return respond(rp)
}

func (m *Module) writeAppData(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdWriteAppData, 9, 2)
	if err != nil {
		return err
	}

	size := rp.PopU32()
	raw := rp.PopRaw(AppDataWriteStructSize)
	in := rp.PopStaticBuffer()

	if err := rp.Err(); err != nil {
		return err
	}

	var ws AppDataWriteStruct
	if err := ws.UnmarshalBinary(raw); err != nil {
		return err
	}

	if size != in.Size {
		return &SizeMismatchError{Function: "WriteAppData", Declared: size, Buffer: in.Size}
	}

	data, err := m.memory.ReadBlock(in.Address, size)
	if err != nil {
		return err
	}

	m.stub("WriteAppData", zap.Uint32("size", size), zap.Binary("tag_uid", ws.UID()), zap.Int("bytes", len(data)))

	return respond(rp)
}

func (m *Module) getAmiiboSettings(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdGetAmiiboSettings, 0, 0)
	if err != nil {
		return err
	}

	m.stub("GetAmiiboSettings")

	return pushBlob(rp, AmiiboSettingsSize, m.settings.MarshalBinary)
}

func (m *Module) getAmiiboConfig(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdGetAmiiboConfig, 0, 0)
	if err != nil {
		return err
	}

	m.stub("GetAmiiboConfig")

	return pushBlob(rp, AmiiboConfigSize, m.config.MarshalBinary)
}

func (m *Module) isAvailableFontRegion(buf ipc.CommandBuffer) error {
	rp, err := m.parse(buf, cmdIsAvailableFontRegion, 1, 0)
	if err != nil {
		return err
	}

	region := rp.PopU8()
	if err := rp.Err(); err != nil {
		return err
	}

	m.stub("IsAvailableFontRegion", zap.Uint8("region", region))

	rb := rp.MakeBuilder(2, 0)
	rb.PushResult(ipc.ResultSuccess)
	rb.PushBool(true)

	return rb.Finish()
}
