// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Robotics

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is the byte channel the commands speak Cyphal/serial over,
// either a local UART or a WebSocket bridge in front of the target.
type Connection interface {
	io.ReadWriteCloser
}

// ErrConnectionClosed is returned by reads on a WebSocket whose peer went away.
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// serialConn promotes the serial.Port methods to satisfy Connection.
type serialConn struct {
	serial.Port
}

func openSerial(device string, baud int) (Connection, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", device, err)
	}
	return &serialConn{Port: port}, nil
}

// wsConn presents a message-based WebSocket as a byte stream. Text and
// control messages are skipped; the transport travels in binary messages.
type wsConn struct {
	conn    *websocket.Conn
	pending []byte // unread tail of the last binary message
	dead    bool
}

func (w *wsConn) Read(p []byte) (int, error) {
	if w.dead {
		return 0, ErrConnectionClosed
	}
	for len(w.pending) == 0 {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			w.dead = true
			return 0, err
		}
		if kind == websocket.BinaryMessage {
			w.pending = data
		}
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

func openWebSocket(rawURL, username, password string, skipVerify bool) (Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipVerify}
	}

	headers := http.Header{}
	if username != "" {
		// gorilla/websocket has no SetBasicAuth; borrow net/http's encoder.
		req, _ := http.NewRequest(http.MethodGet, "http://bridge", nil)
		req.SetBasicAuth(username, password)
		headers.Set("Authorization", req.Header.Get("Authorization"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}
	return &wsConn{conn: conn}, nil
}

// GetPassword resolves the WebSocket password: BOOTSCOPE_PASSWORD if set,
// otherwise a hidden prompt on a terminal, otherwise one line from stdin
// (for piped invocations).
func GetPassword() (string, error) {
	if pw := os.Getenv("BOOTSCOPE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %v", err)
	}
	return strings.TrimSpace(line), nil
}

// OpenConnection opens the channel selected by the persistent flags and
// returns it with a description for the command banner.
func OpenConnection() (Connection, string, error) {
	switch {
	case wsURL != "":
		password := ""
		if wsUsername != "" {
			var err error
			if password, err = GetPassword(); err != nil {
				return nil, "", err
			}
		}
		conn, err := openWebSocket(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil

	case portName != "":
		conn, err := openSerial(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}
	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// IOPort adapts a blocking Connection to the transport's non-blocking Port
// contract. A reader goroutine drains the connection into a buffered channel;
// Receive never blocks, Send writes through directly.
type IOPort struct {
	conn Connection
	rx   chan byte

	mu      sync.Mutex
	readErr error
}

// NewIOPort starts the reader goroutine and returns the adapter.
func NewIOPort(conn Connection) *IOPort {
	p := &IOPort{
		conn: conn,
		rx:   make(chan byte, 8192),
	}
	go p.readLoop()
	return p
}

func (p *IOPort) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := p.conn.Read(buf)
		for i := 0; i < n; i++ {
			p.rx <- buf[i]
		}
		if err != nil {
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			close(p.rx)
			return
		}
	}
}

// Receive polls the next inbound byte without blocking.
func (p *IOPort) Receive() (byte, bool) {
	select {
	case b, ok := <-p.rx:
		if !ok {
			return 0, false
		}
		return b, true
	default:
		return 0, false
	}
}

// Send enqueues one byte for transmission.
func (p *IOPort) Send(b byte) bool {
	_, err := p.conn.Write([]byte{b})
	return err == nil
}

// Err returns the error that terminated the reader goroutine, if any.
func (p *IOPort) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readErr
}
