package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
)

func ipcCall(sock string, req IPCRequest) (IPCResponse, error) {
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to daemon: %w (is `duploctl run` running?)", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resp, err := ipcCall(cfg.Socket, IPCRequest{Command: "status"})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	return json.NewEncoder(os.Stdout).Encode(resp)
}
