package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "SKS"

// serverConfig holds the server settings. Values come from SKS_* environment
// variables first and are then overridden by command-line flags. Field names
// are split into words for the variable name, e.g. TLSSelfSigned reads
// SKS_TLS_SELF_SIGNED.
type serverConfig struct {
	Listen          string
	Port            int
	DB              string
	PostgresDSN     string `split_words:"true"`
	Fsync           bool
	SerializeUsers  bool `split_words:"true"`
	Credentials     string
	TLSCert         string `split_words:"true"`
	TLSKey          string `split_words:"true"`
	TLSSelfSigned   bool   `split_words:"true"`
	LogFormat       string `split_words:"true"`
	LogLevel        string `split_words:"true"`
	MaxAuthFailures int    `split_words:"true"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Port:            4431,
		LogFormat:       "json",
		LogLevel:        "info",
		MaxAuthFailures: 5,
	}
}

// loadServerEnv applies SKS_* variables over the defaults. A variable that
// does not parse is an error; the defaults are returned alongside it.
func loadServerEnv() (serverConfig, error) {
	cfg := defaultServerConfig()
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return defaultServerConfig(), err
	}
	return cfg, nil
}

// newLogger builds the process logger from --log-format and --log-level.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want json or text)", format)
	}
}
