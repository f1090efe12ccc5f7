package ipc

// DescriptorType classifies a translate parameter descriptor word.
type DescriptorType uint32

const (
	DescCopyHandle   DescriptorType = 0x00
	DescMoveHandle   DescriptorType = 0x10
	DescCallingPID   DescriptorType = 0x20
	DescStaticBuffer DescriptorType = 0x02
	DescPXIBuffer    DescriptorType = 0x04
	DescMappedBuffer DescriptorType = 0x08
	DescUnknown      DescriptorType = 0xff
)

func (d DescriptorType) String() string {
	switch d {
	case DescCopyHandle:
		return "copy-handle"
	case DescMoveHandle:
		return "move-handle"
	case DescCallingPID:
		return "calling-pid"
	case DescStaticBuffer:
		return "static-buffer"
	case DescPXIBuffer:
		return "pxi-buffer"
	case DescMappedBuffer:
		return "mapped-buffer"
	}

	return "unknown"
}

// MappedBufferPermissions are the access rights carried by a mapped buffer
// descriptor, as seen from the service.
type MappedBufferPermissions uint32

const (
	MappedR  MappedBufferPermissions = 1
	MappedW  MappedBufferPermissions = 2
	MappedRW MappedBufferPermissions = MappedR | MappedW
)

const (
	handleCountShift   = 26
	staticSizeShift    = 14
	staticIDShift      = 10
	staticIDMask       = 0xf
	mappedSizeShift    = 4
	mappedPermShift    = 1
	mappedPermMask     = 0x3
	handleDescTypeMask = 0x30
)

// DescriptorTypeOf decodes the kind of a translate descriptor word.
func DescriptorTypeOf(desc uint32) DescriptorType {
	switch {
	case desc&0xf == 0:
		switch DescriptorType(desc & handleDescTypeMask) {
		case DescCopyHandle:
			return DescCopyHandle
		case DescMoveHandle:
			return DescMoveHandle
		case DescCallingPID:
			return DescCallingPID
		}

		return DescUnknown
	case desc&0x8 != 0:
		return DescMappedBuffer
	case desc&0xf == uint32(DescStaticBuffer):
		return DescStaticBuffer
	case desc&0xf == uint32(DescPXIBuffer):
		return DescPXIBuffer
	}

	return DescUnknown
}

// CopyHandleDesc describes n handles the kernel duplicates into the
// receiving process.
func CopyHandleDesc(n uint32) uint32 {
	return uint32(DescCopyHandle) | (n-1)<<handleCountShift
}

// MoveHandleDesc describes n handles whose ownership moves to the receiver.
func MoveHandleDesc(n uint32) uint32 {
	return uint32(DescMoveHandle) | (n-1)<<handleCountShift
}

// CallingPIDDesc asks the kernel to fill in the caller's process id.
func CallingPIDDesc() uint32 {
	return uint32(DescCallingPID)
}

func IsHandleDescriptor(desc uint32) bool {
	t := DescriptorTypeOf(desc)

	return t == DescCopyHandle || t == DescMoveHandle
}

// HandleCount returns the number of handle words following a handle
// descriptor.
func HandleCount(desc uint32) uint32 {
	return (desc >> handleCountShift) + 1
}

func StaticBufferDesc(size uint32, id uint8) uint32 {
	return uint32(DescStaticBuffer) | size<<staticSizeShift | (uint32(id)&staticIDMask)<<staticIDShift
}

// StaticBufferInfo unpacks a static buffer descriptor.
func StaticBufferInfo(desc uint32) (size uint32, id uint8) {
	return desc >> staticSizeShift, uint8((desc >> staticIDShift) & staticIDMask)
}

func MappedBufferDesc(size uint32, perms MappedBufferPermissions) uint32 {
	return uint32(DescMappedBuffer) | size<<mappedSizeShift | (uint32(perms)&mappedPermMask)<<mappedPermShift
}

// MappedBufferInfo unpacks a mapped buffer descriptor.
func MappedBufferInfo(desc uint32) (size uint32, perms MappedBufferPermissions) {
	return desc >> mappedSizeShift, MappedBufferPermissions((desc >> mappedPermShift) & mappedPermMask)
}

// StaticBuffer is a resolved static buffer: a window of guest memory the
// service reads from or fills. It carries no data itself.
type StaticBuffer struct {
	ID      uint8
	Address uint32
	Size    uint32
}

// MappedBuffer is a resolved mapped buffer descriptor.
type MappedBuffer struct {
	Address     uint32
	Size        uint32
	Permissions MappedBufferPermissions
}
