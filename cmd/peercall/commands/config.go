package commands

import (
	"os"
	"path/filepath"
	"time"

	"github.com/opd-ai/peercall"
	"github.com/opd-ai/peercall/call"
	"github.com/opd-ai/peercall/transport"
)

// CLIConfig contains the configuration shared by all commands.
type CLIConfig struct {
	DataDir        string        `mapstructure:"datadir"`
	Password       string        `mapstructure:"password"`
	Listen         string        `mapstructure:"listen"`
	Port           int           `mapstructure:"port"`
	RingTimeout    time.Duration `mapstructure:"ring-timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
	RateLimit      uint64        `mapstructure:"rate-limit"`
	ICEServers     []string      `mapstructure:"ice-server"`
	LogLevel       string        `mapstructure:"log-level"`
	LogFile        string        `mapstructure:"log-file"`
}

// NewDefaultCLIConfig creates a CLIConfig with default values.
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		DataDir:     defaultDataDir(),
		Listen:      ":10001",
		Port:        transport.DefaultPort,
		RingTimeout: call.DefaultRingTimeout,
		RateLimit:   10,
		LogLevel:    "warn",
	}
}

// Options converts the CLI configuration to library options.
func (c *CLIConfig) Options() *peercall.Options {
	opts := peercall.NewOptions()
	opts.DataDir = c.DataDir
	opts.ListenAddr = c.Listen
	opts.Port = c.Port
	opts.RingTimeout = c.RingTimeout
	opts.ConnectTimeout = c.ConnectTimeout
	opts.RateLimit = c.RateLimit
	opts.ICEServers = c.ICEServers
	if c.Password != "" {
		opts.Password = []byte(c.Password)
	}
	return opts
}

// defaultDataDir places the data folder in the user's config dir when
// one is known.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "peercall")
	}
	return ".peercall"
}
