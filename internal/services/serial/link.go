package serial

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	apperrors "github.com/iwtcode/grblService/pkg/errors"
)

const maxBackoff = 30 * time.Second

// Link - построчный канал к контроллеру с автоматическим переподключением.
// Записи сериализуются writeMu: одна строка за одну запись.
type Link struct {
	open    Opener
	backoff time.Duration
	logger  *logging.Logger

	writeMu sync.Mutex
	conn    io.ReadWriteCloser

	handlerMu sync.RWMutex
	handler   interfaces.LinkHandler

	connected atomic.Bool
}

var _ interfaces.SerialLink = (*Link)(nil)

func NewLink(open Opener, backoff time.Duration, logger *logging.Logger) *Link {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Link{
		open:    open,
		backoff: backoff,
		logger:  logger.WithPrefix("SERIAL"),
	}
}

func (l *Link) SetHandler(h interfaces.LinkHandler) {
	l.handlerMu.Lock()
	defer l.handlerMu.Unlock()
	l.handler = h
}

func (l *Link) Connected() bool {
	return l.connected.Load()
}

// Send записывает строку с завершающим переводом строки.
func (l *Link) Send(line string) error {
	return l.write([]byte(line + "\n"))
}

// SendRealtime записывает один real-time байт вне очереди строк.
func (l *Link) SendRealtime(b byte) error {
	return l.write([]byte{b})
}

func (l *Link) write(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.conn == nil {
		return apperrors.ErrLinkDown
	}
	if _, err := l.conn.Write(data); err != nil {
		l.logger.Error("Write failed, closing link", "error", err)
		// Чтение завершится с ошибкой, и Run выполнит переподключение.
		_ = l.conn.Close()
		l.conn = nil
		l.connected.Store(false)
		return fmt.Errorf("%w: %v", apperrors.ErrLinkDown, err)
	}
	return nil
}

// Run подключается к контроллеру и читает строки до отмены ctx.
// При обрыве связи переподключается с экспоненциальной задержкой.
// Возвращает канал, который закрывается после завершения.
func (l *Link) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		l.closeConn()
	}()

	go func() {
		defer close(done)
		wait := l.backoff

		for ctx.Err() == nil {
			conn, err := l.open()
			if err != nil {
				l.logger.Warn("Failed to open link, retrying", "error", err, "retry_in", wait)
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
				wait *= 2
				if wait > maxBackoff {
					wait = maxBackoff
				}
				continue
			}
			wait = l.backoff

			l.writeMu.Lock()
			l.conn = conn
			l.writeMu.Unlock()
			if ctx.Err() != nil {
				l.closeConn()
				return
			}

			l.logger.Info("Link opened")
			if h := l.getHandler(); h != nil {
				h.HandleConnect()
			}
			// Задания принимаются только после сброса учета буфера в HandleConnect
			l.connected.Store(true)

			err = l.readLoop(conn)
			l.closeConn()
			if h := l.getHandler(); h != nil {
				h.HandleDisconnect(err)
			}
		}
	}()

	return done
}

func (l *Link) readLoop(conn io.Reader) error {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if h := l.getHandler(); h != nil {
			h.HandleLine(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (l *Link) closeConn() {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.connected.Store(false)
}

func (l *Link) getHandler() interfaces.LinkHandler {
	l.handlerMu.RLock()
	defer l.handlerMu.RUnlock()
	return l.handler
}
