// Package proxy is the Terminal & Socket Proxy (spec component F): it
// bridges a browser-attached PTY and an ad hoc TCP connection to jobs
// running on a connected agent, using the Host Session Layer's job
// multiplexing (component D) underneath.
package proxy

import (
	"encoding/base64"
	"fmt"
)

// Terminal wire frame kinds. A frame is "<kind><NUL><base64 payload>":
// 'd' carries raw PTY bytes in either direction, 'r' carries a resize
// control (spec §4.F).
const (
	FrameKindData   byte = 'd'
	FrameKindResize byte = 'r'
)

// EncodeTerminalFrame builds a "<kind>\x00<base64>" wire frame.
func EncodeTerminalFrame(kind byte, payload []byte) string {
	return string(kind) + "\x00" + base64.StdEncoding.EncodeToString(payload)
}

// DecodeTerminalFrame parses a frame produced by EncodeTerminalFrame.
func DecodeTerminalFrame(wire string) (kind byte, payload []byte, err error) {
	if len(wire) < 2 {
		return 0, nil, fmt.Errorf("proxy: terminal frame too short")
	}
	kind = wire[0]
	if wire[1] != 0 {
		return 0, nil, fmt.Errorf("proxy: terminal frame missing NUL separator")
	}
	payload, err = base64.StdEncoding.DecodeString(wire[2:])
	if err != nil {
		return 0, nil, fmt.Errorf("proxy: decode terminal frame: %w", err)
	}
	return kind, payload, nil
}
