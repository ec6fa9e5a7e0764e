package tcpserver

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/iwtcode/grblService/internal/services/broadcast"
	"github.com/iwtcode/grblService/models"
)

const (
	writeTimeout   = 10 * time.Second
	maxRequestSize = 16 << 20
	replyQueueSize = 64
)

// clientConn - одно клиентское соединение с собственной очередью ответов и подпиской на события.
type clientConn struct {
	id      string
	conn    net.Conn
	server  *Server
	sub     *broadcast.Subscription
	replies chan []byte
	done    chan struct{}
	once    sync.Once
}

func newClientConn(id string, nc net.Conn, s *Server) *clientConn {
	return &clientConn{
		id:      id,
		conn:    nc,
		server:  s,
		sub:     s.broadcaster.Subscribe(id),
		replies: make(chan []byte, replyQueueSize),
		done:    make(chan struct{}),
	}
}

func (c *clientConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *clientConn) readLoop() {
	defer c.server.wg.Done()
	defer c.server.removeConn(c)
	defer c.close()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), maxRequestSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		reply := c.server.dispatch(c.id, line)
		data, err := json.Marshal(reply)
		if err != nil {
			c.server.logger.Error("Failed to encode reply", "client_id", c.id, "error", err)
			continue
		}
		select {
		case c.replies <- data:
		case <-c.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.server.logger.Warn("Client read failed", "client_id", c.id, "error", err)
	}
}

// writeLoop - единственный писатель в соединение: ответы и события не перемешиваются внутри строки.
func (c *clientConn) writeLoop() {
	defer c.server.wg.Done()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.replies:
			if err := c.write(data); err != nil {
				return
			}
		case evt, ok := <-c.sub.Events:
			if !ok {
				c.server.logger.Warn("Client event queue dropped", "client_id", c.id)
				return
			}
			data, err := json.Marshal(models.NewEventEnvelope(string(evt.Kind), evt.Data, evt.Timestamp))
			if err != nil {
				c.server.logger.Error("Failed to encode event", "event", evt.Kind, "error", err)
				continue
			}
			if err := c.write(data); err != nil {
				return
			}
		}
	}
}

func (c *clientConn) write(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		c.server.logger.Debug("Client write failed", "client_id", c.id, "error", err)
		return err
	}
	return nil
}
