package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mil-ad/duploctl/controller"
	"github.com/mil-ad/duploctl/driver/bluez"
	"github.com/mil-ad/duploctl/driver/stub"
	"github.com/mil-ad/duploctl/input/terminal"
	"github.com/mil-ad/duploctl/link"
)

// daemon serves the controller's latest snapshot to `duploctl status`.
type daemon struct {
	l hclog.Logger

	mu   sync.Mutex
	last controller.Snapshot
	seen bool
}

// observe is called from the dispatch loop after every tick.
func (d *daemon) observe(s controller.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = s
	d.seen = true
}

func (d *daemon) handleRequest(req IPCRequest) IPCResponse {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch req.Command {
	case "status":
		if !d.seen {
			return IPCResponse{Link: link.Disconnected.String()}
		}
		return statusResponse(d.last)

	default:
		return IPCResponse{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
}

func (d *daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	var req IPCRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		resp := IPCResponse{Error: "invalid request: " + err.Error()}
		json.NewEncoder(conn).Encode(resp)
		return
	}

	resp := d.handleRequest(req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		d.l.Debug("write response", "error", err)
	}
}

func (d *daemon) serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed on shutdown.
			return
		}
		go d.handleConn(conn)
	}
}

func newLogger(level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "duploctl",
		Level: hclog.LevelFromString(level),
	})
}

// openDriver returns the configured link driver and a function releasing it.
func openDriver(cfg Config, l hclog.Logger) (link.Driver, func(), error) {
	if cfg.Driver == driverStub {
		l.Info("using simulated hub")
		return stub.NewSimulated(), func() {}, nil
	}
	d, err := bluez.New(bluez.Options{
		Adapter: cfg.Adapter,
		Hub:     cfg.Hub,
		Logger:  l,
	})
	if err != nil {
		return nil, nil, err
	}
	return d, d.Close, nil
}

func runDaemon() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l := newLogger(cfg.LogLevel)

	drv, closeDriver, err := openDriver(cfg, l)
	if err != nil {
		return err
	}
	defer closeDriver()

	pins, closeTTY, err := terminal.Open(cfg.TTY)
	if err != nil {
		return err
	}
	defer closeTTY()

	os.Remove(cfg.Socket) // remove stale socket
	ln, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Socket, err)
	}
	os.Chmod(cfg.Socket, 0700)
	defer os.Remove(cfg.Socket)
	defer ln.Close()

	d := &daemon{l: l.Named("ipc")}
	go d.serve(ln)
	l.Info("listening", "socket", cfg.Socket)

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-pins.Quit():
			stop()
		case <-ctx.Done():
		}
	}()

	ctrl := controller.New(pins, drv, time.Now(), l, controller.WithObserver(d.observe))
	l.Info("press the green button on the DUPLO hub to pair; keys: arrows/a/d speed, s stop, 1-4 buttons, q quit")
	err = ctrl.Run(ctx)
	l.Info("shutting down")
	return err
}
