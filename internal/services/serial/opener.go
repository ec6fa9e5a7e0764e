package serial

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/iwtcode/grblService/internal/config"
	"go.bug.st/serial"
)

// Opener открывает новое соединение с контроллером.
type Opener func() (io.ReadWriteCloser, error)

// PortOpener открывает последовательный порт 8N1.
func PortOpener(port string, baudRate int) Opener {
	return func() (io.ReadWriteCloser, error) {
		mode := &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		p, err := serial.Open(port, mode)
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", port, err)
		}
		return p, nil
	}
}

// TCPOpener подключается к сетевому мосту (ser2net, ESP3D и т.п.).
func TCPOpener(addr string, timeout time.Duration) Opener {
	return func() (io.ReadWriteCloser, error) {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn, nil
	}
}

// NewOpener выбирает способ подключения по SERIAL_PORT: "sim", "tcp://host:port" или имя порта.
func NewOpener(cfg config.SerialConfig, sim *Simulator) Opener {
	switch {
	case cfg.Port == SimulatorPort:
		return sim.Open
	case strings.HasPrefix(cfg.Port, "tcp://"):
		return TCPOpener(strings.TrimPrefix(cfg.Port, "tcp://"), 5*time.Second)
	default:
		return PortOpener(cfg.Port, cfg.BaudRate)
	}
}

// ListPorts возвращает доступные последовательные порты.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
