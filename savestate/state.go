// Package savestate stores and restores the state of an HLE system.
package savestate

import "github.com/bobuhiro11/gohle/service/nfc"

// Version is bumped whenever Snapshot changes incompatibly.
const Version = 1

// Region describes one guest memory region. Its contents travel
// separately as a MsgMemory message.
type Region struct {
	Name string
	Base uint32
	Size uint32
	Type string
}

// Snapshot is everything about a system except guest memory contents.
type Snapshot struct {
	Version    int
	MaxHandles int
	Regions    []Region
	NFC        nfc.State
}

// Block is the contents of guest memory starting at Base.
type Block struct {
	Base uint32
	Data []byte
}

// Image is a complete save state.
type Image struct {
	Snapshot *Snapshot
	Memory   []Block
}
