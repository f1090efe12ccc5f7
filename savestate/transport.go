// This file implements the framed binary format save states are written in.
//
// Wire format for each message:
//
//	[4-byte big-endian type][8-byte big-endian payload length][payload bytes]
//
// A save state is one MsgSnapshot, any number of MsgMemory and a final
// MsgDone.
package savestate

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

// MsgType identifies a save state message.
type MsgType uint32

const (
	MsgSnapshot MsgType = 1 // gob-encoded Snapshot
	MsgMemory   MsgType = 2 // 4-byte big-endian base address, then raw bytes
	MsgDone     MsgType = 3 // end of the save state
)

func (t MsgType) String() string {
	switch t {
	case MsgSnapshot:
		return "snapshot"
	case MsgMemory:
		return "memory"
	case MsgDone:
		return "done"
	}

	return fmt.Sprintf("MsgType(%d)", uint32(t))
}

const (
	headerSize = 12

	// maxPayload bounds a single message; a 32-bit guest cannot need more.
	maxPayload = 1 << 32
)

var (
	ErrVersion = errors.New("savestate: unsupported version")

	errUnexpectedMessage = errors.New("savestate: unexpected message type")
	errMemoryTooShort    = errors.New("savestate: memory payload too short")
	errPayloadTooLarge   = errors.New("savestate: payload too large")
	errNoSnapshot        = errors.New("savestate: done before snapshot")
)

// Sender writes framed messages to an underlying writer.
type Sender struct {
	w io.Writer
}

func NewSender(w io.Writer) *Sender { return &Sender{w: w} }

func (s *Sender) send(t MsgType, payload []byte) error {
	hdr := make([]byte, headerSize)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(t))
	binary.BigEndian.PutUint64(hdr[4:12], uint64(len(payload)))

	if _, err := s.w.Write(hdr); err != nil {
		return fmt.Errorf("send %v header: %w", t, err)
	}

	if len(payload) > 0 {
		if _, err := s.w.Write(payload); err != nil {
			return fmt.Errorf("send %v payload: %w", t, err)
		}
	}

	return nil
}

// SendSnapshot encodes snap with gob and sends it as a MsgSnapshot.
func (s *Sender) SendSnapshot(snap *Snapshot) error {
	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return s.send(MsgSnapshot, buf.Bytes())
}

// SendMemory sends the contents of guest memory at base.
func (s *Sender) SendMemory(base uint32, data []byte) error {
	payload := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(payload, base)
	copy(payload[4:], data)

	return s.send(MsgMemory, payload)
}

// SendDone ends the save state.
func (s *Sender) SendDone() error { return s.send(MsgDone, nil) }

// Receiver reads framed messages from an underlying reader.
type Receiver struct {
	r io.Reader
}

func NewReceiver(r io.Reader) *Receiver { return &Receiver{r: r} }

// Next reads the next message header and returns the type and full payload.
func (r *Receiver) Next() (MsgType, []byte, error) {
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(r.r, hdr); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	t := MsgType(binary.BigEndian.Uint32(hdr[0:4]))
	length := binary.BigEndian.Uint64(hdr[4:12])

	if length == 0 {
		return t, nil, nil
	}

	if length > maxPayload+4 {
		return 0, nil, fmt.Errorf("%w: %v carries %d bytes", errPayloadTooLarge, t, length)
	}

	// The buffer grows with the bytes actually read, so a corrupt length
	// cannot force a large allocation up front.
	var payload bytes.Buffer
	if _, err := io.CopyN(&payload, r.r, int64(length)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return 0, nil, fmt.Errorf("read payload (type=%v len=%d): %w", t, length, err)
	}

	return t, payload.Bytes(), nil
}

// DecodeSnapshot decodes a gob-encoded Snapshot from payload bytes.
func DecodeSnapshot(payload []byte) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	if snap.Version != Version {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrVersion, snap.Version, Version)
	}

	return snap, nil
}

// DecodeMemory splits a MsgMemory payload into its base address and data.
func DecodeMemory(payload []byte) (Block, error) {
	if len(payload) < 4 {
		return Block{}, fmt.Errorf("%w: %d bytes", errMemoryTooShort, len(payload))
	}

	return Block{Base: binary.BigEndian.Uint32(payload), Data: payload[4:]}, nil
}

// Write stores img as a complete save state.
func Write(w io.Writer, img *Image) error {
	s := NewSender(w)

	snap := *img.Snapshot
	snap.Version = Version

	if err := s.SendSnapshot(&snap); err != nil {
		return err
	}

	for _, b := range img.Memory {
		if err := s.SendMemory(b.Base, b.Data); err != nil {
			return err
		}
	}

	return s.SendDone()
}

// Read loads a save state written by Write.
func Read(r io.Reader) (*Image, error) {
	recv := NewReceiver(r)
	img := &Image{}

	for {
		t, payload, err := recv.Next()
		if err != nil {
			return nil, err
		}

		switch t {
		case MsgSnapshot:
			if img.Snapshot, err = DecodeSnapshot(payload); err != nil {
				return nil, err
			}
		case MsgMemory:
			b, err := DecodeMemory(payload)
			if err != nil {
				return nil, err
			}

			img.Memory = append(img.Memory, b)
		case MsgDone:
			if img.Snapshot == nil {
				return nil, errNoSnapshot
			}

			return img, nil
		default:
			return nil, fmt.Errorf("%w: %v", errUnexpectedMessage, t)
		}
	}
}
