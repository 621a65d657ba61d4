package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opd-ai/peercall"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// EnvPrefix is the prefix of environment variables overriding flags.
const EnvPrefix = "PEERCALL"

var config = NewDefaultCLIConfig()

// NewRootCmd returns the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	config = NewDefaultCLIConfig()

	root := &cobra.Command{
		Use:               "peercall",
		Short:             "Encrypted peer-to-peer voice calls",
		PersistentPreRunE: loadConfig,
	}

	flags := root.PersistentFlags()
	flags.String("datadir", config.DataDir, "Directory holding the database and config file")
	flags.String("password", config.Password, "Database password (empty stores the database unencrypted)")
	flags.String("listen", config.Listen, "Listen IP:Port for incoming calls")
	flags.Int("port", config.Port, "Port assumed for contact addresses without one")
	flags.Duration("ring-timeout", config.RingTimeout, "How long incoming calls ring")
	flags.Duration("connect-timeout", config.ConnectTimeout, "Per-address connect timeout (0 uses the database setting)")
	flags.Uint64("rate-limit", config.RateLimit, "Connections accepted per IP per minute (0 disables)")
	flags.StringSlice("ice-server", config.ICEServers, "STUN/TURN server URL, repeatable")
	flags.String("log-level", config.LogLevel, "debug, info, warn, error")
	flags.String("log-file", config.LogFile, "Also write logs to this file")

	root.AddCommand(
		newInitCmd(),
		newIDCmd(),
		newContactCmd(),
		newListenCmd(),
		newCallCmd(),
		newPingCmd(),
		newEventsCmd(),
	)
	return root
}

// loadConfig binds flags, environment and the optional config file
// [datadir]/peercall.{toml,yaml,json}, then configures logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// first unmarshal to learn the data directory
	if err := v.Unmarshal(config); err != nil {
		return err
	}

	v.SetConfigName("peercall")
	v.AddConfigPath(config.DataDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	// second unmarshal picks up the config file
	if err := v.Unmarshal(config); err != nil {
		return err
	}

	configureLogger(logrus.StandardLogger(), config)

	logrus.WithFields(logrus.Fields{
		"function":    "loadConfig",
		"datadir":     config.DataDir,
		"listen":      config.Listen,
		"port":        config.Port,
		"config_file": v.ConfigFileUsed(),
		"encrypted":   config.Password != "",
	}).Debug("Configuration loaded")

	return nil
}

func configureLogger(logger *logrus.Logger, c *CLIConfig) {
	logger.SetLevel(logLevel(c.LogLevel))
	logger.SetFormatter(&prefixed.TextFormatter{FullTimestamp: true})

	if c.LogFile != "" {
		logger.AddHook(lfshook.NewHook(c.LogFile, &logrus.JSONFormatter{}))
	}
}

func logLevel(l string) logrus.Level {
	switch strings.ToLower(l) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

// openInstance creates the library instance for the configured data dir.
func openInstance() (*peercall.PeerCall, error) {
	return peercall.New(config.Options())
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
