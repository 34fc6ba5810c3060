package server

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const maxLineBytes = 64 * 1024

// Conn is a line-oriented client connection. ReadLine and WriteLine may
// be called from different goroutines; Close may be called from any.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

type tcpConn struct {
	c            net.Conn
	sc           *bufio.Scanner
	writeTimeout time.Duration
}

// NewTCPConn wraps a stream connection speaking newline-delimited lines.
func NewTCPConn(c net.Conn, writeTimeout time.Duration) Conn {
	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	return &tcpConn{c: c, sc: sc, writeTimeout: writeTimeout}
}

func (t *tcpConn) ReadLine() (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(t.sc.Text(), "\r"), nil
}

func (t *tcpConn) WriteLine(line string) error {
	if t.writeTimeout > 0 {
		if err := t.c.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(t.c, line+"\n")
	return err
}

func (t *tcpConn) Close() error       { return t.c.Close() }
func (t *tcpConn) RemoteAddr() string { return t.c.RemoteAddr().String() }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn carries one protocol line per text frame.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

// NewWSConn wraps an upgraded WebSocket connection.
func NewWSConn(ws *websocket.Conn, writeTimeout time.Duration) Conn {
	ws.SetReadLimit(maxLineBytes)
	return &wsConn{ws: ws, writeTimeout: writeTimeout}
}

func (w *wsConn) ReadLine() (string, error) {
	for {
		mt, data, err := w.ws.ReadMessage()
		if err != nil {
			return "", err
		}
		if mt != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (w *wsConn) WriteLine(line string) error {
	if w.writeTimeout > 0 {
		if err := w.ws.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return err
		}
	}
	return w.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

func (w *wsConn) Close() error       { return w.ws.Close() }
func (w *wsConn) RemoteAddr() string { return w.ws.RemoteAddr().String() }
