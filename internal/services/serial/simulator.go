package serial

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// SimulatorPort - значение SERIAL_PORT для встроенного симулятора.
const SimulatorPort = "sim"

const simBanner = "Grbl 1.1h ['$' for help]"

// plannerDepth - число блоков в планировщике GRBL.
const plannerDepth = 15

// Simulator эмулирует контроллер GRBL на другом конце net.Pipe.
// Строки подтверждаются "ok" сразу. В режиме feed hold строки подтверждаются, пока есть место
// в планировщике, остальные ждут в приемном буфере до '~'.
// На '?' отвечает отчетом о статусе со свободными блоками планировщика и байтами буфера.
type Simulator struct {
	rxSize int

	mu       sync.Mutex
	pos      [3]float64
	feed     float64
	override int
	held     bool
	planned  []string
	pending  []string
	received []string
}

func NewSimulator(rxSize int) *Simulator {
	return &Simulator{rxSize: rxSize, override: 100}
}

// Open создает новое соединение с симулятором. Подходит в качестве Opener.
func (s *Simulator) Open() (io.ReadWriteCloser, error) {
	client, device := net.Pipe()

	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()

	out := make(chan string, 1024)
	out <- simBanner
	go s.writeLoop(device, out)
	go s.readLoop(device, out)
	return client, nil
}

// Received возвращает строки, принятые симулятором.
func (s *Simulator) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// Ответы пишутся отдельной горутиной: чтение не должно ждать, пока клиент заберет ответ.
func (s *Simulator) writeLoop(w io.Writer, out <-chan string) {
	for line := range out {
		if _, err := io.WriteString(w, line+"\r\n"); err != nil {
			return
		}
	}
}

func (s *Simulator) readLoop(device net.Conn, out chan string) {
	defer close(out)
	defer device.Close()

	r := bufio.NewReader(device)
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if s.realtime(b, out) {
			continue
		}
		switch b {
		case '\r':
		case '\n':
			s.execute(strings.TrimSpace(string(line)), out)
			line = line[:0]
		default:
			line = append(line, b)
		}
	}
}

func (s *Simulator) realtime(b byte, out chan<- string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch b {
	case '?':
		out <- s.statusLocked()
	case '!':
		s.held = true
	case '~':
		s.held = false
		for _, l := range s.planned {
			s.applyLocked(l)
		}
		for _, l := range s.pending {
			s.applyLocked(l)
			out <- "ok"
		}
		s.planned, s.pending = nil, nil
	case 0x18:
		// Soft reset сбрасывает планировщик и приемный буфер, движение не выполняется.
		s.resetLocked()
		out <- simBanner
	case 0x90:
		s.override = 100
	case 0x91:
		s.override += 10
	case 0x92:
		s.override -= 10
	case 0x93:
		s.override++
	case 0x94:
		s.override--
	default:
		return false
	}
	return true
}

func (s *Simulator) execute(line string, out chan<- string) {
	if line == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.received = append(s.received, line)
	if first := unicode.ToUpper(rune(line[0])); first != '$' && (first < 'A' || first > 'Z') {
		out <- "error:1"
		return
	}
	switch {
	case !s.held:
		s.applyLocked(line)
	case len(s.pending) == 0 && len(s.planned) < plannerDepth:
		s.planned = append(s.planned, line)
	default:
		s.pending = append(s.pending, line)
		return
	}
	out <- "ok"
}

func (s *Simulator) resetLocked() {
	s.held = false
	s.planned = nil
	s.pending = nil
}

// applyLocked обновляет позицию по словам X/Y/Z и F. Интерполяция не моделируется.
func (s *Simulator) applyLocked(line string) {
	for _, word := range strings.Fields(strings.ToUpper(line)) {
		if len(word) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(word[1:], 64)
		if err != nil {
			continue
		}
		switch word[0] {
		case 'X':
			s.pos[0] = v
		case 'Y':
			s.pos[1] = v
		case 'Z':
			s.pos[2] = v
		case 'F':
			s.feed = v
		}
	}
}

func (s *Simulator) statusLocked() string {
	state := "Idle"
	if s.held {
		state = "Hold:0"
	}
	used := 0
	for _, l := range s.pending {
		used += len(l) + 1
	}
	return fmt.Sprintf("<%s|MPos:%.3f,%.3f,%.3f|Bf:%d,%d|FS:%.0f,0|Ov:%d,100,100>",
		state, s.pos[0], s.pos[1], s.pos[2], plannerDepth-len(s.planned), s.rxSize-used, s.feed, s.override)
}
