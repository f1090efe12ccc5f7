package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobuhiro11/gohle/ipc"
	"go.uber.org/zap"
)

// ErrExpectation is returned when a response differs from the step's
// expectation.
var ErrExpectation = errors.New("script: unexpected response")

// Target is what a script drives.
type Target interface {
	Call(port string, buf ipc.CommandBuffer) error
	Lookup(port, name string) (ipc.Header, error)
	PlaceTag()
	RemoveTag()
}

// StepError reports the step a script stopped at.
type StepError struct {
	Index int
	Step  Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%v): %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one step.
type Result struct {
	Step     Step
	Response []uint32
	Err      error
}

// Run executes the script's steps in order and stops at the first one whose
// response does not match. The results of all executed steps are returned.
func Run(ctx context.Context, t Target, s *Script, logger *zap.Logger) ([]Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	results := make([]Result, 0, len(s.Steps))

	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		r, err := runStep(t, st)
		results = append(results, r)

		logger.Debug("step",
			zap.Int("index", i),
			zap.Stringer("step", st),
			zap.Uint32s("response", r.Response),
			zap.NamedError("call_error", r.Err))

		if err != nil {
			return results, &StepError{Index: i, Step: st, Err: err}
		}
	}

	return results, nil
}

func runStep(t Target, st Step) (Result, error) {
	r := Result{Step: st}

	switch st.action() {
	case ActionPlaceTag:
		t.PlaceTag()

		return r, nil
	case ActionRemoveTag:
		t.RemoveTag()

		return r, nil
	}

	h := ipc.Header(st.Header)
	if st.Command != "" {
		var err error
		if h, err = t.Lookup(st.Port, st.Command); err != nil {
			return r, err
		}
	}

	buf := ipc.NewRequest(h, st.Params...)
	for _, b := range st.StaticBuffers {
		buf.SetStaticBuffer(b.ID, b.Address, b.Size)
	}

	r.Err = t.Call(st.Port, buf)
	r.Response = append([]uint32(nil), buf.Message()...)

	return r, check(st.Expect, r)
}

func check(want Expect, r Result) error {
	if len(r.Response) < 2 {
		return fmt.Errorf("%w: %d-word response", ErrExpectation, len(r.Response))
	}

	got := ipc.ResultCode(r.Response[1])

	if want.Result == nil {
		if r.Err != nil {
			return r.Err
		}
	} else if got != ipc.ResultCode(*want.Result) {
		return fmt.Errorf("%w: result %v, want %v", ErrExpectation, got, ipc.ResultCode(*want.Result))
	}

	body := r.Response[2:]
	if len(want.Words) > len(body) {
		return fmt.Errorf("%w: %d words after the result, want at least %d", ErrExpectation, len(body), len(want.Words))
	}

	for i, w := range want.Words {
		if body[i] != w {
			return fmt.Errorf("%w: word %d is %#x, want %#x", ErrExpectation, i+2, body[i], w)
		}
	}

	return nil
}
