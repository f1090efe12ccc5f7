// Package script runs a YAML list of guest requests against a system and
// checks the responses.
//
//	steps:
//	  - port: nfc:u
//	    command: Initialize
//	    params: [2]
//	  - port: nfc:u
//	    command: ReadAppData
//	    params: [0xD8]
//	    static_buffers: [{id: 0, address: 0x08000100, size: 0xD8}]
//	  - action: remove_tag
//	  - port: nfc:u
//	    header: 0x000D0000
//	    expect: {words: [3]}
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bobuhiro11/gohle/ipc"
	"gopkg.in/yaml.v3"
)

const (
	ActionCall      = "call"
	ActionPlaceTag  = "place_tag"
	ActionRemoveTag = "remove_tag"
)

type Script struct {
	Steps []Step `yaml:"steps"`
}

type Step struct {
	// Action defaults to ActionCall.
	Action string `yaml:"action"`

	Port string `yaml:"port"`
	// Either Command names a function of Port or Header gives the raw
	// request header.
	Command       string         `yaml:"command"`
	Header        uint32         `yaml:"header"`
	Params        []uint32       `yaml:"params"`
	StaticBuffers []StaticBuffer `yaml:"static_buffers"`
	Expect        Expect         `yaml:"expect"`
}

// StaticBuffer is a receive buffer registered before the request.
type StaticBuffer struct {
	ID      uint8  `yaml:"id"`
	Address uint32 `yaml:"address"`
	Size    uint32 `yaml:"size"`
}

// Expect describes the response. Without a Result the call must succeed.
type Expect struct {
	Result *uint32 `yaml:"result"`
	// Words are compared against the response words following the result.
	Words []uint32 `yaml:"words"`
}

func (s Step) action() string {
	if s.Action == "" {
		return ActionCall
	}

	return s.Action
}

func (s Step) String() string {
	switch {
	case s.action() != ActionCall:
		return s.action()
	case s.Command != "":
		return s.Port + " " + s.Command
	}

	return fmt.Sprintf("%s %v", s.Port, ipc.Header(s.Header))
}

// Load reads a script from path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return s, nil
}

// Parse decodes and checks a script.
func Parse(data []byte) (*Script, error) {
	s := &Script{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	return s, nil
}

func (s Step) validate() error {
	switch s.action() {
	case ActionPlaceTag, ActionRemoveTag:
		return nil
	case ActionCall:
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}

	if s.Port == "" {
		return errors.New("port is required")
	}

	if (s.Command == "") == (s.Header == 0) {
		return errors.New("exactly one of command and header is required")
	}

	if len(s.Params) >= ipc.CommandWords {
		return fmt.Errorf("%d parameter words do not fit a command buffer", len(s.Params))
	}

	for _, b := range s.StaticBuffers {
		if b.ID >= ipc.StaticBufferDescriptors {
			return fmt.Errorf("static buffer id %d out of range", b.ID)
		}
	}

	return nil
}
