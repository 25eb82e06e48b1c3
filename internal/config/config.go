// Package config loads the server and client binaries' settings from
// flags, environment variables, and an optional TOML file, layered
// flag > env > file > default.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "VERIS"

// Server holds everything verisd needs to start listening.
type Server struct {
	ListenAddr string `mapstructure:"listen_addr"`
	DataDir    string `mapstructure:"data_dir"`
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`
}

// DefaultServer returns the settings verisd starts with absent any flag,
// env var, or config file entry.
func DefaultServer() Server {
	return Server{
		ListenAddr: "127.0.0.1:1234",
		DataDir:    "./veris-data",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Client holds everything the veris REPL needs to connect.
type Client struct {
	ServerAddr           string        `mapstructure:"server_addr"`
	HistoryPath          string        `mapstructure:"history_path"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// DefaultClient returns the settings veris starts with absent any flag, env
// var, or config file entry.
func DefaultClient() Client {
	return Client{
		ServerAddr:           "127.0.0.1:1234",
		HistoryPath:          ".veris_history",
		ConnectTimeout:       5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// newViper builds a viper.Viper reading configFile (if non-empty and
// present; a missing file is not an error) with VERIS_-prefixed
// environment variables bound over it, and flags bound over that.
func newViper(configFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
		// Command-line flags are spelled with dashes (--listen-addr); bind
		// each one under its underscore key as well, the key the file and
		// environment layers use.
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil {
				bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}
	return v, nil
}

// LoadServer layers flags, environment variables, and configFile over
// DefaultServer.
func LoadServer(configFile string, flags *pflag.FlagSet) (Server, error) {
	v, err := newViper(configFile, flags)
	if err != nil {
		return Server{}, err
	}

	cfg := DefaultServer()
	if v.IsSet("listen_addr") {
		cfg.ListenAddr = v.GetString("listen_addr")
	}
	if v.IsSet("data_dir") {
		cfg.DataDir = v.GetString("data_dir")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("log_format") {
		cfg.LogFormat = v.GetString("log_format")
	}
	return cfg, nil
}

// LoadClient layers flags, environment variables, and configFile over
// DefaultClient.
func LoadClient(configFile string, flags *pflag.FlagSet) (Client, error) {
	v, err := newViper(configFile, flags)
	if err != nil {
		return Client{}, err
	}

	cfg := DefaultClient()
	if v.IsSet("server_addr") {
		cfg.ServerAddr = v.GetString("server_addr")
	}
	if v.IsSet("history_path") {
		cfg.HistoryPath = v.GetString("history_path")
	}
	if v.IsSet("connect_timeout") {
		cfg.ConnectTimeout = v.GetDuration("connect_timeout")
	}
	if v.IsSet("max_reconnect_attempts") {
		cfg.MaxReconnectAttempts = v.GetInt("max_reconnect_attempts")
	}
	return cfg, nil
}
