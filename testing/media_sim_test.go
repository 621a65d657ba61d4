package testing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/opd-ai/peercall/call"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []call.MediaState
}

func (r *stateRecorder) record(s call.MediaState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []call.MediaState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call.MediaState(nil), r.states...)
}

func negotiate(t *testing.T, e *SimulatedMediaEngine) (call.MediaSession, call.MediaSession) {
	t.Helper()
	ctx := context.Background()

	offerer, err := e.NewSession(call.SessionConfig{Offerer: true})
	if err != nil {
		t.Fatalf("offerer session: %v", err)
	}
	answerer, err := e.NewSession(call.SessionConfig{})
	if err != nil {
		t.Fatalf("answerer session: %v", err)
	}

	offer, err := offerer.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	answer, err := answerer.CreateAnswer(ctx, offer)
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := offerer.SetAnswer(answer); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	return offerer, answerer
}

func TestNewSimulatedMediaEngine(t *testing.T) {
	e := NewSimulatedMediaEngine()
	if e == nil {
		t.Fatal("expected non-nil engine")
	}
	if len(e.Sessions()) != 0 || len(e.Operations()) != 0 {
		t.Error("new engine should have no sessions and an empty log")
	}
}

func TestNegotiationConnectsBothSides(t *testing.T) {
	e := NewSimulatedMediaEngine()
	offerer, answerer := negotiate(t, e)

	a := offerer.(*SimulatedSession)
	b := answerer.(*SimulatedSession)
	if a.State() != call.MediaStateConnected {
		t.Errorf("offerer state = %v, want connected", a.State())
	}
	if b.State() != call.MediaStateConnected {
		t.Errorf("answerer state = %v, want connected", b.State())
	}
	if !a.Offerer() || b.Offerer() {
		t.Error("offerer flags not preserved")
	}

	want := []string{OpNewSession, OpNewSession, OpCreateOffer, OpCreateAnswer, OpSetAnswer}
	ops := e.Operations()
	if len(ops) != len(want) {
		t.Fatalf("expected %d operations, got %d", len(want), len(ops))
	}
	for i, op := range ops {
		if op.Op != want[i] {
			t.Errorf("op %d = %s, want %s", i, op.Op, want[i])
		}
		if op.Timestamp == 0 {
			t.Errorf("op %d has zero timestamp", i)
		}
	}
}

func TestStateHandlersObserveTransitions(t *testing.T) {
	e := NewSimulatedMediaEngine()
	ctx := context.Background()

	offerer, _ := e.NewSession(call.SessionConfig{Offerer: true})
	answerer, _ := e.NewSession(call.SessionConfig{})

	var offererStates, answererStates stateRecorder
	offerer.OnStateChange(offererStates.record)
	answerer.OnStateChange(answererStates.record)

	offer, _ := offerer.CreateOffer(ctx)
	answer, _ := answerer.CreateAnswer(ctx, offer)
	if err := offerer.SetAnswer(answer); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if err := answerer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	gotA := answererStates.snapshot()
	wantA := []call.MediaState{call.MediaStateConnecting, call.MediaStateConnected, call.MediaStateClosed}
	if len(gotA) != len(wantA) {
		t.Fatalf("answerer states = %v, want %v", gotA, wantA)
	}
	for i := range wantA {
		if gotA[i] != wantA[i] {
			t.Errorf("answerer state %d = %v, want %v", i, gotA[i], wantA[i])
		}
	}

	gotO := offererStates.snapshot()
	if len(gotO) != 2 || gotO[0] != call.MediaStateConnected || gotO[1] != call.MediaStateClosed {
		t.Errorf("offerer states = %v, want [connected closed]", gotO)
	}
}

func TestSendDataDeliversToPeer(t *testing.T) {
	e := NewSimulatedMediaEngine()
	offerer, answerer := negotiate(t, e)

	received := make(chan []byte, 1)
	answerer.OnData(func(data []byte) { received <- data })

	if err := offerer.SendData([]byte("hello")); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if got := string(<-received); got != "hello" {
		t.Errorf("received %q, want hello", got)
	}
	if n := e.CountOps(OpSendData); n != 1 {
		t.Errorf("expected 1 send_data op, got %d", n)
	}
}

func TestSendDataBeforeConnect(t *testing.T) {
	e := NewSimulatedMediaEngine()
	s, _ := e.NewSession(call.SessionConfig{Offerer: true})

	if err := s.SendData([]byte("x")); !errors.Is(err, ErrNoPeer) {
		t.Errorf("expected ErrNoPeer, got %v", err)
	}
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	e := NewSimulatedMediaEngine()
	offerer, answerer := negotiate(t, e)

	if err := offerer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := offerer.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if err := offerer.SendData([]byte("x")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if err := answerer.SendData([]byte("x")); !errors.Is(err, ErrNoPeer) {
		t.Errorf("expected ErrNoPeer after peer closed, got %v", err)
	}
	if n := e.CountOps(OpClose); n != 1 {
		t.Errorf("expected 1 close op, got %d", n)
	}
}

func TestUnknownTokens(t *testing.T) {
	e := NewSimulatedMediaEngine()
	ctx := context.Background()
	s, _ := e.NewSession(call.SessionConfig{})

	if _, err := s.CreateAnswer(ctx, "v=0 not a token"); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
	if _, err := s.CreateAnswer(ctx, e.token(offerPrefix, "s99")); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken for missing session, got %v", err)
	}
	if err := s.SetAnswer(e.token(answerPrefix, "s1")); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken for unpaired answer, got %v", err)
	}
}

func TestFailureInjection(t *testing.T) {
	e := NewSimulatedMediaEngine()
	boom := errors.New("boom")

	e.FailNextSession(boom)
	if _, err := e.NewSession(call.SessionConfig{}); !errors.Is(err, boom) {
		t.Errorf("expected injected session error, got %v", err)
	}
	if _, err := e.NewSession(call.SessionConfig{}); err != nil {
		t.Errorf("injection should apply once, got %v", err)
	}

	s, _ := e.NewSession(call.SessionConfig{Offerer: true})
	e.FailNextOffer(boom)
	if _, err := s.CreateOffer(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected injected offer error, got %v", err)
	}
	if _, err := s.CreateOffer(context.Background()); err != nil {
		t.Errorf("offer injection should apply once, got %v", err)
	}
}

func TestCreateOfferCancelledContext(t *testing.T) {
	e := NewSimulatedMediaEngine()
	s, _ := e.NewSession(call.SessionConfig{Offerer: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.CreateOffer(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSimulateStateAndClearOperations(t *testing.T) {
	e := NewSimulatedMediaEngine()
	offerer, _ := negotiate(t, e)

	var states stateRecorder
	offerer.OnStateChange(states.record)
	offerer.(*SimulatedSession).SimulateState(call.MediaStateDisconnected)
	if got := states.snapshot(); len(got) != 1 || got[0] != call.MediaStateDisconnected {
		t.Errorf("states = %v, want [disconnected]", got)
	}

	if len(e.Sessions()) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(e.Sessions()))
	}
	e.ClearOperations()
	if len(e.Operations()) != 0 {
		t.Error("expected empty log after ClearOperations")
	}
}
