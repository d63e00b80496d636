package main

import (
	"time"

	"github.com/mil-ad/duploctl/controller"
)

// IPCRequest is sent from the CLI client to the daemon.
type IPCRequest struct {
	Command string `json:"command"` // "status"
}

// IPCResponse is sent from the daemon back to the CLI client.
type IPCResponse struct {
	Link    string         `json:"link,omitempty"` // "disconnected", "scanning", "connecting", "connected"
	Speed   int8           `json:"speed"`
	Color   string         `json:"color,omitempty"`
	Sound   string         `json:"pending_sound,omitempty"`
	Sensors map[string]int `json:"sensors,omitempty"`
	Updated string         `json:"updated,omitempty"` // RFC 3339 time of the last tick
	Error   string         `json:"error,omitempty"`
}

func statusResponse(s controller.Snapshot) IPCResponse {
	resp := IPCResponse{
		Link:    s.Link.String(),
		Speed:   s.Command.Speed,
		Color:   s.Command.Color.String(),
		Updated: s.Time.Format(time.RFC3339Nano),
	}
	if s.Command.SoundDirty {
		resp.Sound = s.Command.Sound.String()
	}
	if len(s.Sensors) > 0 {
		resp.Sensors = make(map[string]int, len(s.Sensors))
		for k, v := range s.Sensors {
			resp.Sensors[k.String()] = v
		}
	}
	return resp
}
