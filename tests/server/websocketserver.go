// Package server provides a scriptable websocket server for exercising the
// transport adapters: it records what the client sends and lets tests push
// frames, close cleanly with a chosen code, or tear the socket down abruptly.
package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/beacondeck/realtime/logger"
	"github.com/gorilla/websocket"
)

// CloseInfo captures the close frame a client sent us.
type CloseInfo struct {
	Code   int
	Reason string
}

type WebsocketServer struct {
	logger   *logger.Logger
	listener net.Listener

	mu   sync.Mutex
	conn *websocket.Conn

	Addr string

	// Signaled once per accepted connection
	Connected chan struct{}

	// Handshake request headers, one entry per accepted connection
	ReceivedHeaders chan http.Header

	// Text and binary payloads received from the client
	ReceivedBytes chan []byte

	// Close frames received from the client
	ReceivedClose chan CloseInfo
}

// Adapted from: https://golangdocs.com/golang-gorilla-websockets
func NewWebsocketServer(logger *logger.Logger) *WebsocketServer {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		// No socket means no test; fail loudly instead of limping on
		panic(fmt.Sprintf("failed to setup listener: %s", err))
	}

	server := &WebsocketServer{
		logger:          logger,
		listener:        listener,
		Addr:            fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port),
		Connected:       make(chan struct{}, 1),
		ReceivedHeaders: make(chan http.Header, 1),
		ReceivedBytes:   make(chan []byte, 10),
		ReceivedClose:   make(chan CloseInfo, 1),
	}

	go func() {
		http.Serve(server.listener, server)
	}()

	return server
}

func (w *WebsocketServer) Shutdown() {
	w.listener.Close()
}

func (w *WebsocketServer) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		w.logger.Errorf("error during connection upgrade: %s", err)
		return
	}
	defer conn.Close()

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	select {
	case w.ReceivedHeaders <- request.Header:
	default:
	}

	select {
	case w.Connected <- struct{}{}:
	default:
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				w.ReceivedClose <- CloseInfo{Code: closeErr.Code, Reason: closeErr.Text}
			}
			return
		}
		w.ReceivedBytes <- message
	}
}

// SendText pushes a text frame to the connected client.
func (w *WebsocketServer) SendText(message string) error {
	return w.write(websocket.TextMessage, []byte(message))
}

// SendBinary pushes a binary frame to the connected client.
func (w *WebsocketServer) SendBinary(data []byte) error {
	return w.write(websocket.BinaryMessage, data)
}

// Close performs a clean close handshake with the given code and reason.
func (w *WebsocketServer) Close(code int, reason string) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("no client connected")
	}

	message := websocket.FormatCloseMessage(code, reason)
	return conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
}

// ForceClose tears the underlying socket down without a close frame, so the
// client observes an abnormal termination.
func (w *WebsocketServer) ForceClose() {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (w *WebsocketServer) write(messageType int, data []byte) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("no client connected")
	}
	return conn.WriteMessage(messageType, data)
}
