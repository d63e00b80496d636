package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

const (
	driverBluez = "bluez"
	driverStub  = "stub"
)

// Config holds deployment settings read from the environment. The control
// behaviour itself is fixed at build time.
type Config struct {
	Adapter  string `env:"DUPLOCTL_ADAPTER" envDefault:"hci0"`
	Hub      string `env:"DUPLOCTL_HUB"`
	Driver   string `env:"DUPLOCTL_DRIVER" envDefault:"bluez"`
	TTY      string `env:"DUPLOCTL_TTY" envDefault:"/dev/tty"`
	Socket   string `env:"DUPLOCTL_SOCKET"`
	LogLevel string `env:"DUPLOCTL_LOG_LEVEL" envDefault:"info"`
}

func socketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "duploctl.sock")
}

func loadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Socket == "" {
		cfg.Socket = socketPath()
	}
	switch cfg.Driver {
	case driverBluez, driverStub:
	default:
		return Config{}, fmt.Errorf("unknown driver %q, want %q or %q", cfg.Driver, driverBluez, driverStub)
	}
	return cfg, nil
}
