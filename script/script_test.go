package script_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bobuhiro11/gohle/config"
	"github.com/bobuhiro11/gohle/hle"
	"github.com/bobuhiro11/gohle/ipc"
	"github.com/bobuhiro11/gohle/script"
	"go.uber.org/zap/zaptest"
)

const session = `
steps:
  - port: nfc:u
    command: GetTagInRangeEvent
  - port: nfc:u
    command: Initialize
    params: [2]
  - port: nfc:u
    command: StartTagScanning
    params: [0]
  - port: nfc:u
    command: GetTagState
    expect: {words: [3]}
  - port: nfc:u
    command: LoadAmiiboData
  - port: nfc:u
    command: ReadAppData
    params: [0xD8]
    static_buffers: [{id: 0, address: 0x08000100, size: 0xD8}]
  - action: remove_tag
  - port: nfc:m
    header: 0x000D0000
    expect: {words: [4]}
  - port: nfc:u
    command: ReadAppData
    params: [0xD8]
    static_buffers: [{id: 0, address: 0x08000100, size: 0x10}]
    expect: {result: 0xD8E153F8}
`

func newSystem(t *testing.T) *hle.System {
	t.Helper()

	s := hle.New(*config.Default(), zaptest.NewLogger(t))
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := s.Shutdown(); err != nil {
			t.Error(err)
		}
	})

	return s
}

func TestRun(t *testing.T) {
	t.Parallel()

	sc, err := script.Parse([]byte(session))
	if err != nil {
		t.Fatal(err)
	}

	results, err := script.Run(context.Background(), newSystem(t), sc, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != len(sc.Steps) {
		t.Fatalf("%d results for %d steps", len(results), len(sc.Steps))
	}

	if h := ipc.Header(results[0].Response[0]); h != ipc.MakeHeader(0x0B, 1, 2) {
		t.Fatalf("event response header = %v", h)
	}
}

func TestRunStopsAtMismatch(t *testing.T) {
	t.Parallel()

	sc, err := script.Parse([]byte(`
steps:
  - {port: "nfc:u", command: GetTagState, expect: {words: [5]}}
  - {port: "nfc:u", command: Initialize, params: [2]}
`))
	if err != nil {
		t.Fatal(err)
	}

	results, err := script.Run(context.Background(), newSystem(t), sc, nil)
	if !errors.Is(err, script.ErrExpectation) {
		t.Fatalf("got %v, want ErrExpectation", err)
	}

	var se *script.StepError
	if !errors.As(err, &se) || se.Index != 0 || len(results) != 1 {
		t.Fatalf("stopped at %v after %d results", err, len(results))
	}
}

func TestRunReportsCallErrors(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"unimplemented": `steps: [{port: "nfc:u", command: GetTagInfo2}]`,
		"unknown name":  `steps: [{port: "nfc:u", command: Format}]`,
		"no port":       `steps: [{port: "nfc:x", header: 0x00010040, params: [2]}]`,
	} {
		sc, err := script.Parse([]byte(body))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}

		if _, err := script.Run(context.Background(), newSystem(t), sc, nil); err == nil {
			t.Errorf("%s: script passed", name)
		}
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	sc, err := script.Parse([]byte(session))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := script.Run(ctx, newSystem(t), sc, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"no port":      `steps: [{command: Initialize}]`,
		"both":         `steps: [{port: "nfc:u", command: Initialize, header: 0x00010040}]`,
		"neither":      `steps: [{port: "nfc:u"}]`,
		"action":       `steps: [{action: shake}]`,
		"buffer id":    `steps: [{port: "nfc:u", command: ReadAppData, static_buffers: [{id: 16}]}]`,
		"unknown key":  `steps: [{port: "nfc:u", command: Initialize, args: [1]}]`,
		"not a script": `steps: 3`,
	} {
		if _, err := script.Parse([]byte(body)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}
