package factory

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/opd-ai/peercall/call"
	"github.com/opd-ai/peercall/media"
	"github.com/opd-ai/peercall/testing"
	"github.com/sirupsen/logrus"
)

// Environment variables read by NewMediaEngineFactory.
const (
	EnvUseSimulation = "PEERCALL_MEDIA_SIMULATION"
	EnvICEServers    = "PEERCALL_ICE_SERVERS"
)

// MediaEngineConfig selects and configures a media engine.
type MediaEngineConfig struct {
	UseSimulation bool
	ICEServers    []string
}

// MediaEngineFactory creates media engines based on configuration.
// It is safe for concurrent use.
type MediaEngineFactory struct {
	mu            sync.RWMutex
	defaultConfig MediaEngineConfig
}

// NewMediaEngineFactory creates a factory whose defaults come from the
// environment.
func NewMediaEngineFactory() *MediaEngineFactory {
	config := MediaEngineConfig{}
	applyEnvironmentOverrides(&config)

	logrus.WithFields(logrus.Fields{
		"function":       "NewMediaEngineFactory",
		"use_simulation": config.UseSimulation,
		"ice_servers":    len(config.ICEServers),
	}).Debug("Created media engine factory")

	return &MediaEngineFactory{defaultConfig: config}
}

func applyEnvironmentOverrides(config *MediaEngineConfig) {
	if useSimStr := os.Getenv(EnvUseSimulation); useSimStr != "" {
		useSim, err := strconv.ParseBool(useSimStr)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "applyEnvironmentOverrides",
				"env_var":     EnvUseSimulation,
				"value":       useSimStr,
				"error":       err.Error(),
				"using_value": config.UseSimulation,
			}).Warn("Failed to parse environment variable, using default")
		} else {
			config.UseSimulation = useSim
		}
	}

	if servers := os.Getenv(EnvICEServers); servers != "" {
		for _, s := range strings.Split(servers, ",") {
			if s = strings.TrimSpace(s); s != "" {
				config.ICEServers = append(config.ICEServers, s)
			}
		}
	}
}

// Config returns a copy of the default configuration.
func (f *MediaEngineFactory) Config() MediaEngineConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c := f.defaultConfig
	c.ICEServers = append([]string(nil), c.ICEServers...)
	return c
}

// CreateMediaEngine creates an engine from config, or from the defaults
// when config is nil. ICE servers from the environment are used when
// config lists none. Each simulated engine pairs only its own sessions.
func (f *MediaEngineFactory) CreateMediaEngine(config *MediaEngineConfig) (call.MediaEngine, error) {
	defaults := f.Config()
	if config == nil {
		config = &defaults
	} else if len(config.ICEServers) == 0 {
		c := *config
		c.ICEServers = defaults.ICEServers
		config = &c
	}

	if config.UseSimulation {
		logrus.WithFields(logrus.Fields{
			"function": "CreateMediaEngine",
			"type":     "simulation",
		}).Info("Creating simulated media engine")
		return testing.NewSimulatedMediaEngine(), nil
	}

	logrus.WithFields(logrus.Fields{
		"function":    "CreateMediaEngine",
		"type":        "webrtc",
		"ice_servers": len(config.ICEServers),
	}).Debug("Creating WebRTC media engine")
	return media.NewEngine(media.EngineConfig{ICEServers: config.ICEServers})
}

// CreateSimulationForTesting returns a new simulated engine.
func (f *MediaEngineFactory) CreateSimulationForTesting() *testing.SimulatedMediaEngine {
	return testing.NewSimulatedMediaEngine()
}

// SwitchToSimulation makes CreateMediaEngine(nil) return simulated engines.
func (f *MediaEngineFactory) SwitchToSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultConfig.UseSimulation = true
}

// SwitchToReal makes CreateMediaEngine(nil) return WebRTC engines.
func (f *MediaEngineFactory) SwitchToReal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultConfig.UseSimulation = false
}

// IsUsingSimulation reports the current default mode.
func (f *MediaEngineFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultConfig.UseSimulation
}
