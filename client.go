package grbl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/iwtcode/grblService/models"
	"github.com/sirupsen/logrus"
)

const eventBuffer = 1024

var (
	// ErrClosed возвращается после закрытия соединения с сервером.
	ErrClosed = errors.New("connection closed")
	// ErrTimeout возвращается, если сервер не ответил за Config.Timeout. Соединение при этом закрывается.
	ErrTimeout = errors.New("request timed out")
)

// ServerError - отказ сервера в выполнении команды.
type ServerError struct {
	Command string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// Client является основной точкой входа для взаимодействия с сервером.
// Запросы выполняются последовательно, события доступны через Events.
type Client struct {
	conn    net.Conn
	config  *Config
	logger  *logrus.Logger
	mu      sync.Mutex
	replies chan models.Reply
	events  chan models.EventEnvelope
	done    chan struct{}
	once    sync.Once
}

// New создает клиента и подключается к серверу.
func New(cfg *Config) (*Client, error) {
	logger := logrus.New()

	if cfg.LogLevel == "off" || cfg.LogLevel == "none" {
		logger.SetOutput(io.Discard)
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
		logger.SetOutput(os.Stdout)
	}

	// Настраиваем форматтер с понятным форматом времени
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		ForceColors:     true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	conn, err := net.DialTimeout("tcp", cfg.Addr, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Addr, err)
	}
	logger.WithField("addr", cfg.Addr).Debug("Connected to GRBL server")

	c := &Client{
		conn:    conn,
		config:  cfg,
		logger:  logger,
		replies: make(chan models.Reply, 1),
		events:  make(chan models.EventEnvelope, eventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close закрывает соединение. Канал Events закрывается после остановки чтения.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// GetLogger возвращает используемый логгер.
func (c *Client) GetLogger() *logrus.Logger {
	return c.logger
}

// Events возвращает поток событий сервера. При переполнении буфера старые события не вытесняются,
// новые отбрасываются с предупреждением в логе.
func (c *Client) Events() <-chan models.EventEnvelope {
	return c.events
}

// SendProgram загружает или перезаписывает программу.
func (c *Client) SendProgram(name, content string) error {
	_, err := c.call(models.Request{Command: models.CmdSendProgram, Name: name, Content: content})
	return err
}

// StartProgram запускает загруженную программу.
func (c *Client) StartProgram(name string) error {
	_, err := c.call(models.Request{Command: models.CmdStartProgram, Name: name})
	return err
}

// StopProgram останавливает текущее задание.
func (c *Client) StopProgram() error {
	_, err := c.call(models.Request{Command: models.CmdStopProgram})
	return err
}

// PauseProgram приостанавливает текущее задание.
func (c *Client) PauseProgram() error {
	_, err := c.call(models.Request{Command: models.CmdPauseProgram})
	return err
}

// ResumeProgram продолжает приостановленное задание.
func (c *Client) ResumeProgram() error {
	_, err := c.call(models.Request{Command: models.CmdResumeProgram})
	return err
}

// AdjustFeedRate устанавливает коррекцию подачи в процентах (10..200).
func (c *Client) AdjustFeedRate(percentage int) error {
	p := float64(percentage)
	_, err := c.call(models.Request{Command: models.CmdAdjustFeedRate, Percentage: &p})
	return err
}

// TerminalCommand отправляет в контроллер одну строку или real-time символ.
func (c *Client) TerminalCommand(gcode string) error {
	_, err := c.call(models.Request{Command: models.CmdTerminal, GCode: gcode})
	return err
}

// ClearErrors очищает историю ошибок контроллера.
func (c *Client) ClearErrors() error {
	_, err := c.call(models.Request{Command: models.CmdClearErrors})
	return err
}

// DeleteProgram удаляет программу.
func (c *Client) DeleteProgram(name string) error {
	_, err := c.call(models.Request{Command: models.CmdDeleteProgram, Name: name})
	return err
}

// GetStatus возвращает состояние контроллера и задания.
func (c *Client) GetStatus() (*models.Status, error) {
	raw, err := c.call(models.Request{Command: models.CmdGetStatus})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Status models.Status `json:"status"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &resp.Status, nil
}

// ListPrograms возвращает имена загруженных программ.
func (c *Client) ListPrograms() ([]string, error) {
	raw, err := c.call(models.Request{Command: models.CmdListPrograms})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Programs []string `json:"programs"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode programs: %w", err)
	}
	return resp.Programs, nil
}

// GetProgram возвращает исходный текст программы.
func (c *Client) GetProgram(name string) (*models.ProgramInfo, error) {
	raw, err := c.call(models.Request{Command: models.CmdGetProgram, Name: name})
	if err != nil {
		return nil, err
	}
	var info models.ProgramInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode program: %w", err)
	}
	return &info, nil
}

func (c *Client) call(req models.Request) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.Timeout))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		c.Close()
		return nil, fmt.Errorf("%s: %w", req.Command, err)
	}
	c.logger.WithField("command", req.Command).Debug("Request sent")

	timer := time.NewTimer(c.config.Timeout)
	defer timer.Stop()

	select {
	case reply := <-c.replies:
		if reply.Error != "" {
			return nil, &ServerError{Command: req.Command, Message: reply.Error}
		}
		return reply.Raw, nil
	case <-timer.C:
		// Ответ мог прийти позже и был бы принят за ответ на следующий запрос
		c.Close()
		return nil, fmt.Errorf("%s: %w", req.Command, ErrTimeout)
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer c.Close()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		var reply models.Reply
		if err := json.Unmarshal(line, &reply); err != nil {
			c.logger.WithError(err).Warn("Skipping malformed server message")
			continue
		}
		reply.Raw = line

		if reply.IsEvent() {
			var evt models.EventEnvelope
			if err := json.Unmarshal(line, &evt); err != nil {
				c.logger.WithError(err).Warn("Skipping malformed event")
				continue
			}
			select {
			case c.events <- evt:
			default:
				c.logger.WithField("event", evt.Event).Warn("Event buffer full, dropping event")
			}
			continue
		}

		select {
		case c.replies <- reply:
		case <-c.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-c.done:
		default:
			c.logger.WithError(err).Warn("Connection read failed")
		}
	}
}
