// Package websocket adapts gorilla/websocket connections to observer.Transport.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskstream/internal/observer"
)

const inboundBuffer = 16

var ErrNotAccepted = errors.New("websocket not accepted")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Conn is one observer connection. A single read pump owns the socket's read
// side and feeds inbound text to ReceiveText, so a receive timeout never
// interrupts an in-flight read and leaves the connection intact.
type Conn struct {
	w http.ResponseWriter
	r *http.Request

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	inbound  chan string
	readDone chan struct{}
	readErr  error

	closeOnce sync.Once
}

var _ observer.Transport = (*Conn)(nil)

// NewConn wraps an upgrade request. The handshake happens on Accept.
func NewConn(w http.ResponseWriter, r *http.Request) *Conn {
	return &Conn{
		w:        w,
		r:        r,
		inbound:  make(chan string, inboundBuffer),
		readDone: make(chan struct{}),
	}
}

func (c *Conn) Accepted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Conn) Accept(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	conn, err := upgrader.Upgrade(c.w, c.r, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	go c.readPump(conn)
	return nil
}

func (c *Conn) readPump(conn *websocket.Conn) {
	defer close(c.readDone)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		// Inbound text only signals liveness; drop it when nobody is reading.
		select {
		case c.inbound <- string(data):
		default:
		}
	}
}

func (c *Conn) ReceiveText(ctx context.Context, timeout time.Duration) (string, error) {
	if !c.Accepted() {
		return "", ErrNotAccepted
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case text := <-c.inbound:
		return text, nil
	case <-c.readDone:
		return "", c.readErr
	case <-timer.C:
		return "", observer.ErrReceiveTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Conn) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotAccepted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a normal close frame and releases the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = conn.Close()
	})
	return err
}
