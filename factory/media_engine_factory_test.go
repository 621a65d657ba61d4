package factory

import (
	"context"
	"errors"
	"testing"

	"github.com/opd-ai/peercall/call"
	"github.com/opd-ai/peercall/media"
	simtest "github.com/opd-ai/peercall/testing"
)

func TestNewMediaEngineFactoryDefaults(t *testing.T) {
	t.Setenv(EnvUseSimulation, "")
	t.Setenv(EnvICEServers, "")

	f := NewMediaEngineFactory()
	if f.IsUsingSimulation() {
		t.Error("default should be the real engine")
	}

	engine, err := f.CreateMediaEngine(nil)
	if err != nil {
		t.Fatalf("CreateMediaEngine: %v", err)
	}
	if _, ok := engine.(*media.Engine); !ok {
		t.Errorf("expected *media.Engine, got %T", engine)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvUseSimulation, "true")
	t.Setenv(EnvICEServers, "stun:a.example:3478, ,stun:b.example")

	f := NewMediaEngineFactory()
	if !f.IsUsingSimulation() {
		t.Error("expected simulation mode from environment")
	}
	cfg := f.Config()
	if len(cfg.ICEServers) != 2 || cfg.ICEServers[1] != "stun:b.example" {
		t.Errorf("unexpected ICE servers %v", cfg.ICEServers)
	}

	engine, err := f.CreateMediaEngine(nil)
	if err != nil {
		t.Fatalf("CreateMediaEngine: %v", err)
	}
	if _, ok := engine.(*simtest.SimulatedMediaEngine); !ok {
		t.Errorf("expected simulated engine, got %T", engine)
	}
}

func TestInvalidSimulationValueIgnored(t *testing.T) {
	t.Setenv(EnvUseSimulation, "sometimes")
	t.Setenv(EnvICEServers, "")

	if NewMediaEngineFactory().IsUsingSimulation() {
		t.Error("unparsable value should keep the default")
	}
}

func TestModeSwitching(t *testing.T) {
	t.Setenv(EnvUseSimulation, "")
	t.Setenv(EnvICEServers, "")
	f := NewMediaEngineFactory()

	f.SwitchToSimulation()
	if !f.IsUsingSimulation() {
		t.Error("SwitchToSimulation had no effect")
	}
	f.SwitchToReal()
	if f.IsUsingSimulation() {
		t.Error("SwitchToReal had no effect")
	}
}

func TestExplicitConfig(t *testing.T) {
	t.Setenv(EnvUseSimulation, "")
	t.Setenv(EnvICEServers, "")
	f := NewMediaEngineFactory()

	if _, err := f.CreateMediaEngine(&MediaEngineConfig{ICEServers: []string{"gopher://x"}}); err == nil {
		t.Error("expected invalid ICE server error")
	}

	engine, err := f.CreateMediaEngine(&MediaEngineConfig{UseSimulation: true})
	if err != nil || engine == nil {
		t.Fatalf("CreateMediaEngine: %v", err)
	}
	if f.CreateSimulationForTesting() == nil {
		t.Error("expected simulated engine")
	}
}

func TestSimulatedEnginesDoNotPairAcrossInstances(t *testing.T) {
	t.Setenv(EnvUseSimulation, "true")
	f := NewMediaEngineFactory()

	first, err := f.CreateMediaEngine(nil)
	if err != nil {
		t.Fatalf("CreateMediaEngine() error = %v", err)
	}
	second, err := f.CreateMediaEngine(nil)
	if err != nil {
		t.Fatalf("CreateMediaEngine() error = %v", err)
	}

	ctx := context.Background()
	caller, err := first.NewSession(call.SessionConfig{Offerer: true})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	offer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}

	foreign, err := second.NewSession(call.SessionConfig{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if _, err := foreign.CreateAnswer(ctx, offer); !errors.Is(err, simtest.ErrUnknownToken) {
		t.Errorf("CreateAnswer() on another engine error = %v, want ErrUnknownToken", err)
	}

	local, err := first.NewSession(call.SessionConfig{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if _, err := local.CreateAnswer(ctx, offer); err != nil {
		t.Errorf("CreateAnswer() on the same engine error = %v", err)
	}
}
