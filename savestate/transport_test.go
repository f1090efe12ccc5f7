package savestate_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/bobuhiro11/gohle/savestate"
	"github.com/bobuhiro11/gohle/service/nfc"
	"github.com/google/go-cmp/cmp"
)

// pipe returns a connected (Sender, Receiver) pair backed by an in-memory pipe.
func pipe() (*savestate.Sender, *savestate.Receiver) {
	pr, pw := io.Pipe()

	return savestate.NewSender(pw), savestate.NewReceiver(pr)
}

func TestSendReceiveMemory(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 251)
	}

	sender, recv := pipe()

	go func() {
		if err := sender.SendMemory(0x08000000, data); err != nil {
			t.Errorf("SendMemory: %v", err)
		}
	}()

	msgType, payload, err := recv.Next()
	if err != nil {
		t.Fatal(err)
	}

	if msgType != savestate.MsgMemory {
		t.Fatalf("got type %v, want memory", msgType)
	}

	b, err := savestate.DecodeMemory(payload)
	if err != nil {
		t.Fatal(err)
	}

	if b.Base != 0x08000000 || !bytes.Equal(b.Data, data) {
		t.Fatalf("block at %#x with %d bytes", b.Base, len(b.Data))
	}
}

func TestSendReceiveDone(t *testing.T) {
	t.Parallel()

	sender, recv := pipe()

	go func() {
		if err := sender.SendDone(); err != nil {
			t.Errorf("SendDone: %v", err)
		}
	}()

	msgType, payload, err := recv.Next()
	if err != nil {
		t.Fatal(err)
	}

	if msgType != savestate.MsgDone || len(payload) != 0 {
		t.Fatalf("got %v with %d bytes", msgType, len(payload))
	}
}

func image() *savestate.Image {
	st := nfc.State{
		Status:             nfc.CommunicationInitialized,
		TagState:           nfc.TagInRange,
		AppID:              0x10110E00,
		AppDataOpen:        true,
		TagInRangeSignaled: true,
	}
	st.Amiibo.Settings.SetNickname("Zelda")
	st.Amiibo.Config = nfc.NewAmiiboConfig()

	return &savestate.Image{
		Snapshot: &savestate.Snapshot{
			MaxHandles: 4096,
			Regions:    []savestate.Region{{Name: "heap", Base: 0x08000000, Size: 0x1000, Type: "ram"}},
			NFC:        st,
		},
		Memory: []savestate.Block{{Base: 0x08000000, Data: bytes.Repeat([]byte{0xab}, 0x1000)}},
	}
}

func TestWriteRead(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	want := image()
	if err := savestate.Write(&buf, want); err != nil {
		t.Fatal(err)
	}

	got, err := savestate.Read(&buf)
	if err != nil {
		t.Fatal(err)
	}

	want.Snapshot.Version = savestate.Version

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("image (-want +got):\n%s", diff)
	}
}

func TestReadErrors(t *testing.T) {
	t.Parallel()

	frame := func(typ uint32, payload []byte) []byte {
		hdr := make([]byte, 12)
		binary.BigEndian.PutUint32(hdr, typ)
		binary.BigEndian.PutUint64(hdr[4:], uint64(len(payload)))

		return append(hdr, payload...)
	}

	var future bytes.Buffer
	if err := savestate.NewSender(&future).SendSnapshot(&savestate.Snapshot{Version: savestate.Version + 1}); err != nil {
		t.Fatal(err)
	}

	if _, err := savestate.Read(&future); !errors.Is(err, savestate.ErrVersion) {
		t.Fatalf("future version: %v", err)
	}

	huge := frame(uint32(savestate.MsgMemory), []byte{0, 0, 0, 0, 1, 2})
	binary.BigEndian.PutUint64(huge[4:], 1<<32)

	if _, err := savestate.Read(bytes.NewReader(huge)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("oversized length: got %v, want io.ErrUnexpectedEOF", err)
	}

	for name, in := range map[string][]byte{
		"truncated":     frame(uint32(savestate.MsgMemory), []byte{1, 2, 3, 4, 5})[:14],
		"short memory":  frame(uint32(savestate.MsgMemory), []byte{1, 2}),
		"unknown type":  frame(9, nil),
		"done too soon": frame(uint32(savestate.MsgDone), nil),
		"empty":         nil,
	} {
		if _, err := savestate.Read(bytes.NewReader(in)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}
