package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/internal/metrics"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	"github.com/iwtcode/grblService/internal/services/broadcast"
)

// Server - JSON-over-TCP сервер протокола. На каждое соединение запускаются
// горутина чтения запросов и горутина записи ответов и событий.
type Server struct {
	addr        string
	usecase     interfaces.Usecases
	broadcaster *broadcast.Broadcaster
	logger      *logging.Logger
	metrics     *metrics.Metrics
	handlers    map[string]handlerFunc

	listener net.Listener
	mu       sync.Mutex
	conns    map[string]*clientConn
	wg       sync.WaitGroup
}

func NewServer(
	addr string,
	usecase interfaces.Usecases,
	b *broadcast.Broadcaster,
	logger *logging.Logger,
	m *metrics.Metrics,
) *Server {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	s := &Server{
		addr:        addr,
		usecase:     usecase,
		broadcaster: b,
		logger:      logger.WithPrefix("TCP"),
		metrics:     m,
		conns:       make(map[string]*clientConn),
	}
	s.handlers = s.routes()
	return s
}

// Start открывает listener и начинает принимать соединения.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("Protocol server is listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr возвращает фактический адрес listener (полезно при порте 0).
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop закрывает listener и все соединения, ожидая завершения горутин.
func (s *Server) Stop(ctx context.Context) error {
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	for _, c := range s.conns {
		c.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Protocol server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Accept failed", "error", err)
			continue
		}

		id := uuid.New().String()
		c := newClientConn(id, nc, s)

		s.mu.Lock()
		s.conns[id] = c
		count := len(s.conns)
		s.mu.Unlock()

		s.metrics.ClientsConnected.Set(float64(count))
		s.logger.Info("Client connected", "client_id", id, "remote_addr", nc.RemoteAddr().String(), "clients", count)

		s.wg.Add(2)
		go c.readLoop()
		go c.writeLoop()
	}
}

// removeConn освобождает ресурсы только этого соединения.
func (s *Server) removeConn(c *clientConn) {
	s.broadcaster.Unsubscribe(c.id)

	s.mu.Lock()
	delete(s.conns, c.id)
	count := len(s.conns)
	s.mu.Unlock()

	s.metrics.ClientsConnected.Set(float64(count))
	s.logger.Info("Client disconnected", "client_id", c.id, "clients", count)
}

// ClientCount возвращает число подключенных клиентов.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
